// Package builtin installs the built-in module kinds into a factory.
package builtin

import (
	"github.com/GoCodeAlone/blueprint"
	"github.com/GoCodeAlone/blueprint/modules/acceptance"
	"github.com/GoCodeAlone/blueprint/modules/cloud"
	"github.com/GoCodeAlone/blueprint/modules/contract"
	"github.com/GoCodeAlone/blueprint/modules/finance"
	"github.com/GoCodeAlone/blueprint/modules/safety"
	"github.com/GoCodeAlone/blueprint/modules/workflow"
)

// Register installs every built-in module kind.
func Register(f *blueprint.Factory) {
	f.Register(acceptance.Type, acceptance.New)
	f.Register(cloud.Type, cloud.New)
	f.Register(contract.Type, contract.New)
	f.Register(finance.Type, finance.New)
	f.Register(safety.Type, safety.New)
	f.Register(workflow.Type, workflow.New)
}

// NewFactory returns a factory with every built-in module kind.
func NewFactory() *blueprint.Factory {
	f := blueprint.NewFactory()
	Register(f)
	return f
}
