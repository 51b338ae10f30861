package blueprint

import (
	"fmt"
	"sort"
	"sync"
)

// Constructor builds a module instance from its descriptor.
type Constructor func(desc ModuleDescriptor) (Module, error)

// Factory maps module types to their constructors.
type Factory struct {
	mu           sync.RWMutex
	constructors map[ModuleType]Constructor
}

// NewFactory creates an empty factory.
func NewFactory() *Factory {
	return &Factory{constructors: make(map[ModuleType]Constructor)}
}

// Register installs the constructor for a module type, replacing any
// previous one.
func (f *Factory) Register(moduleType ModuleType, ctor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[moduleType] = ctor
}

// Has reports whether a module type is known.
func (f *Factory) Has(moduleType ModuleType) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.constructors[moduleType]
	return ok
}

// Types lists the known module types, sorted.
func (f *Factory) Types() []ModuleType {
	f.mu.RLock()
	defer f.mu.RUnlock()
	types := make([]ModuleType, 0, len(f.constructors))
	for t := range f.constructors {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// New constructs a fresh module for the descriptor.
func (f *Factory) New(desc ModuleDescriptor) (Module, error) {
	f.mu.RLock()
	ctor, ok := f.constructors[desc.ModuleType]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModuleType, desc.ModuleType)
	}

	module, err := ctor(desc.Clone())
	if err != nil {
		return nil, fmt.Errorf("failed to construct module '%s': %w", desc.ID, err)
	}
	return module, nil
}
