// Package acceptance provides the acceptance module. A checklist is opened
// for every new contract; inspections close it and emit acceptance.passed
// or acceptance.failed.
package acceptance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/GoCodeAlone/blueprint"
	"github.com/GoCodeAlone/blueprint/modules/events"
)

// Type is the module type of the acceptance module.
const Type blueprint.ModuleType = "acceptance"

// Errors
var (
	ErrChecklistNotFound = errors.New("checklist not found")
	ErrChecklistClosed   = errors.New("checklist already inspected")
)

// Outcome of an inspection.
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomePassed  Outcome = "passed"
	OutcomeFailed  Outcome = "failed"
)

// Checklist tracks the acceptance of one contract.
type Checklist struct {
	ID         string  `json:"id"`
	ContractID string  `json:"contractId"`
	Title      string  `json:"title"`
	Outcome    Outcome `json:"outcome"`
	Inspector  string  `json:"inspector,omitempty"`
	Notes      string  `json:"notes,omitempty"`
}

// Service is exported as "service" while the module runs.
type Service struct {
	emitter blueprint.Emitter

	mu         sync.RWMutex
	checklists map[string]*Checklist
}

func newService(emitter blueprint.Emitter) *Service {
	return &Service{emitter: emitter, checklists: make(map[string]*Checklist)}
}

// Open creates a pending checklist.
func (s *Service) Open(contractID, title string) Checklist {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &Checklist{ID: uuid.NewString(), ContractID: contractID, Title: title, Outcome: OutcomePending}
	s.checklists[c.ID] = c
	return *c
}

// Inspect records the outcome of a pending checklist and announces it.
func (s *Service) Inspect(ctx context.Context, checklistID, inspector string, passed bool, notes string) (Checklist, error) {
	s.mu.Lock()
	c, ok := s.checklists[checklistID]
	if !ok {
		s.mu.Unlock()
		return Checklist{}, fmt.Errorf("%w: %s", ErrChecklistNotFound, checklistID)
	}
	if c.Outcome != OutcomePending {
		s.mu.Unlock()
		return Checklist{}, fmt.Errorf("%w: %s", ErrChecklistClosed, checklistID)
	}
	c.Outcome = OutcomeFailed
	eventType := events.AcceptanceFailed
	if passed {
		c.Outcome = OutcomePassed
		eventType = events.AcceptancePassed
	}
	c.Inspector = inspector
	c.Notes = notes
	result := *c
	s.mu.Unlock()

	err := s.emitter.Emit(ctx, eventType, events.InspectionPayload{
		ChecklistID: result.ID,
		ContractID:  result.ContractID,
		Inspector:   inspector,
		Notes:       notes,
	})
	return result, err
}

// Checklists returns every checklist ordered by title then id.
func (s *Service) Checklists() []Checklist {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Checklist, 0, len(s.checklists))
	for _, c := range s.checklists {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ForContract returns the checklists opened for a contract.
func (s *Service) ForContract(contractID string) []Checklist {
	var out []Checklist
	for _, c := range s.Checklists() {
		if c.ContractID == contractID {
			out = append(out, c)
		}
	}
	return out
}

// Module is the acceptance module.
type Module struct {
	*blueprint.Lifecycle
}

// New builds an acceptance module.
func New(desc blueprint.ModuleDescriptor) (blueprint.Module, error) {
	m := &Module{}
	m.Lifecycle = blueprint.NewLifecycle(desc, m)
	return m, nil
}

// Setup implements blueprint.Behavior.
func (m *Module) Setup(_ context.Context, _ *blueprint.ExecutionContext, b *blueprint.Binder) error {
	svc := newService(b.Emitter())
	blueprint.BindTyped(b, events.ContractCreated, func(_ context.Context, _ blueprint.Event, p events.ContractCreatedPayload) error {
		svc.Open(p.ContractID, p.Title)
		return nil
	})
	b.Export("service", svc)
	return nil
}
