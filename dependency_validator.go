package blueprint

import (
	"fmt"
	"slices"
	"sort"
)

// ModuleDirectory answers which modules are registered for a Blueprint.
type ModuleDirectory interface {
	LookupModule(id string) (ModuleDescriptor, bool)
}

// DependencyPolicy controls what counts as a satisfied dependency.
type DependencyPolicy string

const (
	// RequireRegistered only requires dependencies to be registered.
	RequireRegistered DependencyPolicy = "registered"

	// RequireEnabled also requires dependencies to be enabled.
	RequireEnabled DependencyPolicy = "enabled"
)

// Valid reports whether p is a known policy.
func (p DependencyPolicy) Valid() bool {
	return p == RequireRegistered || p == RequireEnabled
}

// DependencyValidator checks a module's declared dependencies against the
// modules currently registered for its Blueprint.
type DependencyValidator struct {
	directory ModuleDirectory
	policy    DependencyPolicy
}

// NewDependencyValidator creates a validator. An unknown policy falls back
// to RequireEnabled.
func NewDependencyValidator(dir ModuleDirectory, policy DependencyPolicy) *DependencyValidator {
	if !policy.Valid() {
		policy = RequireEnabled
	}
	return &DependencyValidator{directory: dir, policy: policy}
}

// Validate returns a *DependencyError naming every unavailable dependency.
func (v *DependencyValidator) Validate(moduleID string, deps []string) error {
	if len(deps) == 0 {
		return nil
	}

	depErr := &DependencyError{ModuleID: moduleID}
	for _, dep := range deps {
		var (
			desc ModuleDescriptor
			ok   bool
		)
		if v.directory != nil {
			desc, ok = v.directory.LookupModule(dep)
		}
		switch {
		case !ok:
			depErr.Missing = append(depErr.Missing, dep)
		case v.policy == RequireEnabled && !desc.Enabled:
			depErr.Disabled = append(depErr.Disabled, dep)
		}
	}

	if len(depErr.Missing) > 0 || len(depErr.Disabled) > 0 {
		return depErr
	}
	return nil
}

// ResolveOrder returns descriptor ids ordered so that dependencies come
// before their dependents. Ties keep the input order. Dependencies outside
// the given set are ignored here; Init reports them through the validator.
func ResolveOrder(descriptors []ModuleDescriptor) ([]string, error) {
	index := make(map[string]int, len(descriptors))
	graph := make(map[string][]string, len(descriptors))
	for i, d := range descriptors {
		index[d.ID] = i
		graph[d.ID] = d.Dependencies
	}

	var (
		result  = make([]string, 0, len(descriptors))
		visited = make(map[string]bool, len(descriptors))
		temp    = make(map[string]bool)
		visit   func(string, []string) error
	)

	visit = func(node string, path []string) error {
		if temp[node] {
			return fmt.Errorf("%w: %v", ErrCircularDependency, append(slices.Clone(path), node))
		}
		if visited[node] {
			return nil
		}
		temp[node] = true

		deps := append([]string(nil), graph[node]...)
		sort.SliceStable(deps, func(i, j int) bool { return index[deps[i]] < index[deps[j]] })
		for _, dep := range deps {
			if _, exists := index[dep]; !exists {
				continue
			}
			if err := visit(dep, append(slices.Clone(path), node)); err != nil {
				return err
			}
		}

		visited[node] = true
		temp[node] = false
		result = append(result, node)
		return nil
	}

	for _, d := range descriptors {
		if !visited[d.ID] {
			if err := visit(d.ID, nil); err != nil {
				return nil, err
			}
		}
	}
	return result, nil
}
