// Package contract provides the contract module. It records contracts and
// announces each one with a contract.created event.
package contract

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GoCodeAlone/blueprint"
	"github.com/GoCodeAlone/blueprint/modules/events"
)

// Type is the module type of the contract module.
const Type blueprint.ModuleType = "contract"

// Errors
var (
	ErrTitleEmpty    = errors.New("contract title is empty")
	ErrNegativeValue = errors.New("contract value is negative")
	ErrLimitReached  = errors.New("contract limit reached")
)

// Contract is a recorded contract.
type Contract struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Value     float64   `json:"value"`
	CreatedAt time.Time `json:"createdAt"`
}

// Service is exported as "service" while the module runs.
type Service struct {
	emitter  blueprint.Emitter
	maxItems int

	mu        sync.RWMutex
	contracts []Contract
}

// Create records a contract and emits contract.created.
func (s *Service) Create(ctx context.Context, title string, value float64) (Contract, error) {
	if title == "" {
		return Contract{}, ErrTitleEmpty
	}
	if value < 0 {
		return Contract{}, fmt.Errorf("%w: %v", ErrNegativeValue, value)
	}

	s.mu.Lock()
	if s.maxItems > 0 && len(s.contracts) >= s.maxItems {
		s.mu.Unlock()
		return Contract{}, fmt.Errorf("%w: %d", ErrLimitReached, s.maxItems)
	}
	c := Contract{ID: uuid.NewString(), Title: title, Value: value, CreatedAt: time.Now()}
	s.contracts = append(s.contracts, c)
	s.mu.Unlock()

	err := s.emitter.Emit(ctx, events.ContractCreated, events.ContractCreatedPayload{
		ContractID: c.ID,
		Title:      c.Title,
		Value:      c.Value,
		CreatedAt:  c.CreatedAt,
	})
	return c, err
}

// List returns the recorded contracts in creation order.
func (s *Service) List() []Contract {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.contracts)
}

// Module is the contract module.
type Module struct {
	*blueprint.Lifecycle
}

// New builds a contract module. It satisfies blueprint.Constructor.
func New(desc blueprint.ModuleDescriptor) (blueprint.Module, error) {
	m := &Module{}
	m.Lifecycle = blueprint.NewLifecycle(desc, m)
	return m, nil
}

// Setup implements blueprint.Behavior.
func (m *Module) Setup(_ context.Context, _ *blueprint.ExecutionContext, b *blueprint.Binder) error {
	b.Export("service", &Service{
		emitter:  b.Emitter(),
		maxItems: b.Config().Limits.MaxItems,
	})
	return nil
}
