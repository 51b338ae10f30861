// Package finance provides the finance module. It tracks budget lines and
// books the value of every new contract as committed cost.
package finance

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/GoCodeAlone/blueprint"
	"github.com/GoCodeAlone/blueprint/modules/events"
)

// Type is the module type of the finance module.
const Type blueprint.ModuleType = "finance"

// Line kinds
const (
	KindBudget    = "budget"
	KindCommitted = "committed"
)

// Errors
var (
	ErrLabelEmpty   = errors.New("budget line label is empty")
	ErrLimitReached = errors.New("budget line limit reached")
)

// Line is one budget entry.
type Line struct {
	ID         string  `json:"id"`
	Label      string  `json:"label"`
	Kind       string  `json:"kind"`
	Amount     float64 `json:"amount"`
	ContractID string  `json:"contractId,omitempty"`
}

// Service is exported as "service" while the module runs.
type Service struct {
	emitter  blueprint.Emitter
	logger   blueprint.Logger
	maxItems int

	mu    sync.RWMutex
	lines []Line
}

// AddBudget records a planned budget line.
func (s *Service) AddBudget(ctx context.Context, label string, amount float64) (Line, error) {
	return s.add(ctx, Line{Label: label, Kind: KindBudget, Amount: amount})
}

func (s *Service) add(ctx context.Context, line Line) (Line, error) {
	if line.Label == "" {
		return Line{}, ErrLabelEmpty
	}

	s.mu.Lock()
	if s.maxItems > 0 && len(s.lines) >= s.maxItems {
		s.mu.Unlock()
		return Line{}, fmt.Errorf("%w: %d", ErrLimitReached, s.maxItems)
	}
	line.ID = uuid.NewString()
	s.lines = append(s.lines, line)
	s.mu.Unlock()

	err := s.emitter.Emit(ctx, events.FinanceLineAdded, events.BudgetLinePayload{
		LineID: line.ID,
		Label:  line.Label,
		Amount: line.Amount,
	})
	return line, err
}

// Lines returns every line in insertion order.
func (s *Service) Lines() []Line {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.lines)
}

// Total sums the amounts of one kind.
func (s *Service) Total(kind string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total float64
	for _, l := range s.lines {
		if l.Kind == kind {
			total += l.Amount
		}
	}
	return total
}

// Remaining is the budget left after committed costs.
func (s *Service) Remaining() float64 {
	return s.Total(KindBudget) - s.Total(KindCommitted)
}

func (s *Service) commit(ctx context.Context, p events.ContractCreatedPayload) error {
	_, err := s.add(ctx, Line{Label: p.Title, Kind: KindCommitted, Amount: p.Value, ContractID: p.ContractID})
	if errors.Is(err, ErrLimitReached) {
		s.logger.Warn("Contract not booked, line limit reached", "contract", p.ContractID, "maxItems", s.maxItems)
	}
	return err
}

// Module is the finance module.
type Module struct {
	*blueprint.Lifecycle
}

// New builds a finance module.
func New(desc blueprint.ModuleDescriptor) (blueprint.Module, error) {
	m := &Module{}
	m.Lifecycle = blueprint.NewLifecycle(desc, m)
	return m, nil
}

// Setup implements blueprint.Behavior.
func (m *Module) Setup(_ context.Context, _ *blueprint.ExecutionContext, b *blueprint.Binder) error {
	svc := &Service{
		emitter:  b.Emitter(),
		logger:   m.Logger(),
		maxItems: b.Config().Limits.MaxItems,
	}
	blueprint.BindTyped(b, events.ContractCreated, func(ctx context.Context, _ blueprint.Event, p events.ContractCreatedPayload) error {
		return svc.commit(ctx, p)
	})
	b.Export("service", svc)
	return nil
}
