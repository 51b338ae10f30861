package health

import (
	"context"
	"fmt"

	"github.com/GoCodeAlone/blueprint"
)

// ModuleSource exposes the module list of a Blueprint.
type ModuleSource interface {
	Modules() blueprint.View[[]blueprint.ModuleDescriptor]
}

// ModuleChecker reports on the live status of enabled modules. Any module in
// ERROR is critical. Enabled modules that are not RUNNING are a warning.
// Disabled modules are ignored.
type ModuleChecker struct {
	source ModuleSource
}

// NewModuleChecker creates a checker over a module source.
func NewModuleChecker(source ModuleSource) *ModuleChecker {
	return &ModuleChecker{source: source}
}

func (c *ModuleChecker) Name() string { return "modules" }

func (c *ModuleChecker) Description() string {
	return "Enabled Blueprint modules are running"
}

// Check implements HealthChecker.
func (c *ModuleChecker) Check(context.Context) (*CheckResult, error) {
	result := &CheckResult{
		Name:    c.Name(),
		Status:  StatusHealthy,
		Details: make(map[string]interface{}),
	}

	var running, failed, pending int
	for _, d := range c.source.Modules().Get() {
		if !d.Enabled {
			continue
		}
		result.Details[d.ID] = string(d.Status)
		switch d.Status {
		case blueprint.StatusRunning:
			running++
		case blueprint.StatusError:
			failed++
		default:
			pending++
		}
	}

	switch {
	case failed > 0:
		result.Status = StatusCritical
	case pending > 0:
		result.Status = StatusWarning
	}
	result.Message = fmt.Sprintf("%d running, %d failed, %d not running", running, failed, pending)
	return result, nil
}
