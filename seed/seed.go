// Package seed applies YAML files of module descriptors to a Blueprint and
// can watch such a file for changes.
package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"

	"gopkg.in/yaml.v3"

	"github.com/GoCodeAlone/blueprint"
)

// ErrModuleIDRequired is returned for seed entries without an id.
var ErrModuleIDRequired = errors.New("seed module id is required")

// File is the seed file layout.
type File struct {
	Blueprint string                       `yaml:"blueprint"`
	Modules   []blueprint.CreateModuleData `yaml:"modules"`
}

// Registrar is the part of the module manager a seed is applied through.
type Registrar interface {
	LookupModule(id string) (blueprint.ModuleDescriptor, bool)
	RegisterModule(ctx context.Context, data blueprint.CreateModuleData) (blueprint.ModuleDescriptor, error)
	EnableModule(ctx context.Context, id string) error
	DisableModule(ctx context.Context, id string) error
	UpdateModuleConfig(ctx context.Context, id string, cfg blueprint.ModuleConfig) error
}

// Report lists what Apply did per module id.
type Report struct {
	Registered []string
	Updated    []string
	Unchanged  []string
	Failed     map[string]error
}

// Load reads and parses a seed file.
func Load(path string) (File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("failed to read seed file: %w", err)
	}
	return Parse(raw)
}

// Parse decodes seed YAML.
func Parse(raw []byte) (File, error) {
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return File{}, fmt.Errorf("failed to parse seed file: %w", err)
	}
	for i, m := range f.Modules {
		if m.ID == "" {
			return File{}, fmt.Errorf("%w: entry %d (%s)", ErrModuleIDRequired, i, m.Name)
		}
	}
	return f, nil
}

// Apply registers missing modules and reconciles the enabled flag and
// config of existing ones. Applying the same file twice changes nothing.
// One failing module never stops the rest.
func Apply(ctx context.Context, r Registrar, f File) Report {
	report := Report{Failed: make(map[string]error)}
	for _, m := range f.Modules {
		existing, ok := r.LookupModule(m.ID)
		if !ok {
			if _, err := r.RegisterModule(ctx, m); err != nil {
				report.Failed[m.ID] = err
				continue
			}
			report.Registered = append(report.Registered, m.ID)
			continue
		}

		changed, err := reconcile(ctx, r, existing, m)
		switch {
		case err != nil:
			report.Failed[m.ID] = err
		case changed:
			report.Updated = append(report.Updated, m.ID)
		default:
			report.Unchanged = append(report.Unchanged, m.ID)
		}
	}
	return report
}

func reconcile(ctx context.Context, r Registrar, existing blueprint.ModuleDescriptor, want blueprint.CreateModuleData) (bool, error) {
	changed := false
	if existing.Enabled != want.Enabled {
		var err error
		if want.Enabled {
			err = r.EnableModule(ctx, want.ID)
		} else {
			err = r.DisableModule(ctx, want.ID)
		}
		if err != nil {
			return false, err
		}
		changed = true
	}
	if !reflect.DeepEqual(normalize(existing.DefaultConfig), normalize(want.DefaultConfig)) {
		if err := r.UpdateModuleConfig(ctx, want.ID, want.DefaultConfig); err != nil {
			return changed, err
		}
		changed = true
	}
	return changed, nil
}

// normalize treats empty and nil collections alike.
func normalize(cfg blueprint.ModuleConfig) blueprint.ModuleConfig {
	out := cfg.Clone()
	if len(out.Features) == 0 {
		out.Features = nil
	}
	if len(out.Settings) == 0 {
		out.Settings = nil
	}
	if len(out.Permissions.RequiredRoles) == 0 {
		out.Permissions.RequiredRoles = nil
	}
	if len(out.Permissions.AllowedActions) == 0 {
		out.Permissions.AllowedActions = nil
	}
	return out
}
