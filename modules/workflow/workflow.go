// Package workflow provides the workflow module, which observes every event
// on the Blueprint bus and keeps an activity counter per event type.
package workflow

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/GoCodeAlone/blueprint"
)

// Type is the module type of the workflow module.
const Type blueprint.ModuleType = "workflow"

// Activity is the counter snapshot of one event type.
type Activity struct {
	Count  int       `json:"count"`
	LastAt time.Time `json:"lastAt"`
}

// Service is exported as "service" while the module runs.
type Service struct {
	mu     sync.RWMutex
	counts map[string]Activity
}

func (s *Service) record(event blueprint.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.counts[event.Type]
	a.Count++
	a.LastAt = event.Timestamp
	s.counts[event.Type] = a
}

// Count returns how many events of a type were observed.
func (s *Service) Count(eventType string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counts[eventType].Count
}

// Activity returns a snapshot of every counter.
func (s *Service) Activity() map[string]Activity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.counts)
}

// Module is the workflow module.
type Module struct {
	*blueprint.Lifecycle
	svc *Service
}

// New builds a workflow module.
func New(desc blueprint.ModuleDescriptor) (blueprint.Module, error) {
	m := &Module{}
	m.Lifecycle = blueprint.NewLifecycle(desc, m)
	return m, nil
}

// Setup implements blueprint.Behavior.
func (m *Module) Setup(_ context.Context, _ *blueprint.ExecutionContext, b *blueprint.Binder) error {
	m.svc = &Service{counts: make(map[string]Activity)}
	b.On(blueprint.WildcardType, func(_ context.Context, event blueprint.Event) error {
		m.svc.record(event)
		return nil
	})
	b.Export("service", m.svc)
	return nil
}

// OnStop implements blueprint.Stopper.
func (m *Module) OnStop(context.Context) error {
	total := 0
	for _, a := range m.svc.Activity() {
		total += a.Count
	}
	m.Logger().Info("Workflow activity", "types", len(m.svc.Activity()), "events", total)
	return nil
}
