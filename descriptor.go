package blueprint

import (
	"maps"
	"slices"
	"time"
)

// ModuleDescriptor is the persisted, data-only representation of a module.
type ModuleDescriptor struct {
	ID            string       `json:"id" yaml:"id" db:"id"`
	BlueprintID   string       `json:"blueprintId" yaml:"blueprintId" db:"blueprint_id"`
	Name          string       `json:"name" yaml:"name" db:"name"`
	Version       string       `json:"version" yaml:"version" db:"version"`
	ModuleType    ModuleType   `json:"moduleType" yaml:"moduleType" db:"module_type"`
	Dependencies  []string     `json:"dependencies" yaml:"dependencies"`
	DefaultConfig ModuleConfig `json:"defaultConfig" yaml:"defaultConfig"`
	Enabled       bool         `json:"enabled" yaml:"enabled" db:"enabled"`
	Status        ModuleStatus `json:"status" yaml:"status" db:"status"`
	CreatedAt     time.Time    `json:"createdAt" yaml:"createdAt" db:"created_at"`
	UpdatedAt     time.Time    `json:"updatedAt" yaml:"updatedAt" db:"updated_at"`
}

// Clone returns a deep copy so callers never share slices or maps.
func (d ModuleDescriptor) Clone() ModuleDescriptor {
	out := d
	out.Dependencies = slices.Clone(d.Dependencies)
	out.DefaultConfig = d.DefaultConfig.Clone()
	return out
}

// ModuleConfig is the opaque configuration bag persisted with a module.
type ModuleConfig struct {
	Features    map[string]bool   `json:"features,omitempty" yaml:"features,omitempty"`
	Settings    map[string]any    `json:"settings,omitempty" yaml:"settings,omitempty"`
	UI          UIConfig          `json:"ui" yaml:"ui"`
	Permissions PermissionsConfig `json:"permissions" yaml:"permissions"`
	Limits      LimitsConfig      `json:"limits" yaml:"limits"`
}

// UIConfig holds presentation hints. The core never interprets them.
type UIConfig struct {
	Icon       string `json:"icon,omitempty" yaml:"icon,omitempty"`
	Color      string `json:"color,omitempty" yaml:"color,omitempty"`
	Position   int    `json:"position" yaml:"position"`
	Visibility string `json:"visibility,omitempty" yaml:"visibility,omitempty"`
}

// PermissionsConfig lists roles and actions for a module.
type PermissionsConfig struct {
	RequiredRoles  []string `json:"requiredRoles,omitempty" yaml:"requiredRoles,omitempty"`
	AllowedActions []string `json:"allowedActions,omitempty" yaml:"allowedActions,omitempty"`
}

// LimitsConfig caps module usage. Zero means unlimited.
type LimitsConfig struct {
	MaxItems    int   `json:"maxItems" yaml:"maxItems"`
	MaxStorage  int64 `json:"maxStorage" yaml:"maxStorage"`
	MaxRequests int   `json:"maxRequests" yaml:"maxRequests"`
}

// Clone returns a deep copy of the config. Nested setting values are copied
// one level deep.
func (c ModuleConfig) Clone() ModuleConfig {
	out := c
	out.Features = maps.Clone(c.Features)
	out.Settings = maps.Clone(c.Settings)
	out.Permissions.RequiredRoles = slices.Clone(c.Permissions.RequiredRoles)
	out.Permissions.AllowedActions = slices.Clone(c.Permissions.AllowedActions)
	return out
}

// FeatureEnabled reports whether a feature flag is set.
func (c ModuleConfig) FeatureEnabled(name string) bool {
	return c.Features[name]
}

// CreateModuleData is the input of RegisterModule.
type CreateModuleData struct {
	ID            string       `json:"id,omitempty" yaml:"id,omitempty"`
	Name          string       `json:"name" yaml:"name"`
	Version       string       `json:"version" yaml:"version"`
	ModuleType    ModuleType   `json:"moduleType" yaml:"moduleType"`
	Dependencies  []string     `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	DefaultConfig ModuleConfig `json:"defaultConfig" yaml:"defaultConfig"`
	Enabled       bool         `json:"enabled" yaml:"enabled"`
}

// DescriptorPatch lists the fields an update changes. Nil fields are left
// untouched.
type DescriptorPatch struct {
	Name         *string
	Version      *string
	Enabled      *bool
	Config       *ModuleConfig
	Dependencies []string
	UpdatedAt    time.Time
}

// Apply returns a copy of d with the patch applied.
func (p DescriptorPatch) Apply(d ModuleDescriptor) ModuleDescriptor {
	out := d.Clone()
	if p.Name != nil {
		out.Name = *p.Name
	}
	if p.Version != nil {
		out.Version = *p.Version
	}
	if p.Enabled != nil {
		out.Enabled = *p.Enabled
	}
	if p.Config != nil {
		out.DefaultConfig = p.Config.Clone()
	}
	if p.Dependencies != nil {
		out.Dependencies = slices.Clone(p.Dependencies)
	}
	if !p.UpdatedAt.IsZero() {
		out.UpdatedAt = p.UpdatedAt
	}
	return out
}
