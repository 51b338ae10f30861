// Package memory provides in-process descriptor and audit repositories.
// Failures can be injected per operation and module id, which makes the
// store suitable for exercising partial-failure paths.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/GoCodeAlone/blueprint"
)

// Op names a repository operation for failure injection.
type Op string

const (
	OpFind         Op = "find"
	OpCreate       Op = "create"
	OpUpdate       Op = "update"
	OpUpdateStatus Op = "update_status"
	OpDelete       Op = "delete"
	OpBatch        Op = "batch"
)

// AnyID matches every module id in FailOn.
const AnyID = "*"

// Store is a DescriptorRepository kept in memory.
type Store struct {
	mu       sync.RWMutex
	modules  map[string][]blueprint.ModuleDescriptor
	failures map[Op]map[string]error
}

// New creates an empty store.
func New() *Store {
	return &Store{
		modules:  make(map[string][]blueprint.ModuleDescriptor),
		failures: make(map[Op]map[string]error),
	}
}

// FailOn makes op fail with err for the module id. OpBatch with an id fails
// that item of a batch; with AnyID it fails the whole batch call.
func (s *Store) FailOn(op Op, id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures[op] == nil {
		s.failures[op] = make(map[string]error)
	}
	s.failures[op][id] = err
}

// ClearFailures removes every injected failure.
func (s *Store) ClearFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = make(map[Op]map[string]error)
}

// Seed stores descriptors directly, bypassing failure injection.
func (s *Store) Seed(blueprintID string, descriptors ...blueprint.ModuleDescriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range descriptors {
		d = d.Clone()
		d.BlueprintID = blueprintID
		s.modules[blueprintID] = append(s.modules[blueprintID], d)
	}
}

// Get returns a stored descriptor.
func (s *Store) Get(blueprintID, id string) (blueprint.ModuleDescriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(blueprintID, id); i >= 0 {
		return s.modules[blueprintID][i].Clone(), true
	}
	return blueprint.ModuleDescriptor{}, false
}

// FindByBlueprintID implements blueprint.DescriptorRepository.
func (s *Store) FindByBlueprintID(_ context.Context, blueprintID string) ([]blueprint.ModuleDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure(OpFind, AnyID); err != nil {
		return nil, err
	}
	out := make([]blueprint.ModuleDescriptor, 0, len(s.modules[blueprintID]))
	for _, d := range s.modules[blueprintID] {
		out = append(out, d.Clone())
	}
	return out, nil
}

// Create implements blueprint.DescriptorRepository.
func (s *Store) Create(_ context.Context, blueprintID string, data blueprint.ModuleDescriptor) (blueprint.ModuleDescriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(OpCreate, data.ID); err != nil {
		return blueprint.ModuleDescriptor{}, err
	}
	if s.indexOf(blueprintID, data.ID) >= 0 {
		return blueprint.ModuleDescriptor{}, fmt.Errorf("%w: %s", blueprint.ErrModuleAlreadyRegistered, data.ID)
	}
	stored := data.Clone()
	stored.BlueprintID = blueprintID
	s.modules[blueprintID] = append(s.modules[blueprintID], stored)
	return stored.Clone(), nil
}

// Update implements blueprint.DescriptorRepository.
func (s *Store) Update(_ context.Context, blueprintID, id string, patch blueprint.DescriptorPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(OpUpdate, id); err != nil {
		return err
	}
	i := s.indexOf(blueprintID, id)
	if i < 0 {
		return fmt.Errorf("%w: module %s", blueprint.ErrNotFound, id)
	}
	s.modules[blueprintID][i] = patch.Apply(s.modules[blueprintID][i])
	return nil
}

// UpdateStatus implements blueprint.DescriptorRepository.
func (s *Store) UpdateStatus(_ context.Context, blueprintID, id string, status blueprint.ModuleStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(OpUpdateStatus, id); err != nil {
		return err
	}
	i := s.indexOf(blueprintID, id)
	if i < 0 {
		return fmt.Errorf("%w: module %s", blueprint.ErrNotFound, id)
	}
	s.modules[blueprintID][i].Status = status
	return nil
}

// Delete implements blueprint.DescriptorRepository.
func (s *Store) Delete(_ context.Context, blueprintID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(OpDelete, id); err != nil {
		return err
	}
	i := s.indexOf(blueprintID, id)
	if i < 0 {
		return fmt.Errorf("%w: module %s", blueprint.ErrNotFound, id)
	}
	s.modules[blueprintID] = slices.Delete(s.modules[blueprintID], i, i+1)
	return nil
}

// BatchUpdateEnabled implements blueprint.DescriptorRepository. Each id is
// applied on its own; unknown ids and injected item failures are reported
// as failed.
func (s *Store) BatchUpdateEnabled(_ context.Context, blueprintID string, ids []string, enabled bool) (blueprint.BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(OpBatch, AnyID); err != nil {
		return blueprint.BatchResult{}, err
	}

	result := blueprint.BatchResult{Success: []string{}, Failed: []string{}}
	for _, id := range ids {
		i := s.indexOf(blueprintID, id)
		if i < 0 || s.failures[OpBatch][id] != nil {
			result.Failed = append(result.Failed, id)
			continue
		}
		s.modules[blueprintID][i].Enabled = enabled
		result.Success = append(result.Success, id)
	}
	return result, nil
}

func (s *Store) indexOf(blueprintID, id string) int {
	return slices.IndexFunc(s.modules[blueprintID], func(d blueprint.ModuleDescriptor) bool { return d.ID == id })
}

func (s *Store) failure(op Op, id string) error {
	byID := s.failures[op]
	if err := byID[id]; err != nil {
		return err
	}
	return byID[AnyID]
}

// AuditLog is an AuditLogRepository kept in memory.
type AuditLog struct {
	mu      sync.RWMutex
	entries []blueprint.AuditEntry
	err     error
}

// NewAuditLog creates an empty audit log.
func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

// FailWith makes every Create fail with err. A nil err restores writes.
func (a *AuditLog) FailWith(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
}

// Create implements blueprint.AuditLogRepository.
func (a *AuditLog) Create(_ context.Context, entry blueprint.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.entries = append(a.entries, entry)
	return nil
}

// Entries returns the recorded entries in write order.
func (a *AuditLog) Entries() []blueprint.AuditEntry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Clone(a.entries)
}

// Last returns the most recent entry.
func (a *AuditLog) Last() (blueprint.AuditEntry, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if len(a.entries) == 0 {
		return blueprint.AuditEntry{}, false
	}
	return a.entries[len(a.entries)-1], true
}
