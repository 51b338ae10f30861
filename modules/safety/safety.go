// Package safety provides the safety module. It records incidents and
// raises a review whenever an acceptance inspection fails.
package safety

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GoCodeAlone/blueprint"
	"github.com/GoCodeAlone/blueprint/modules/events"
)

// Type is the module type of the safety module.
const Type blueprint.ModuleType = "safety"

// FeatureAutoReview toggles reviews raised from failed inspections. It is
// on unless explicitly disabled.
const FeatureAutoReview = "autoReview"

// Severities
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// ErrTitleEmpty is returned for incidents without a title.
var ErrTitleEmpty = errors.New("incident title is empty")

// Incident is a recorded safety incident.
type Incident struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Severity   string    `json:"severity"`
	Source     string    `json:"source,omitempty"`
	ReportedAt time.Time `json:"reportedAt"`
}

// Service is exported as "service" while the module runs.
type Service struct {
	emitter blueprint.Emitter

	mu        sync.RWMutex
	incidents []Incident
}

// Report records an incident and emits safety.incident.reported.
func (s *Service) Report(ctx context.Context, title, severity, source string) (Incident, error) {
	if title == "" {
		return Incident{}, ErrTitleEmpty
	}
	if severity == "" {
		severity = SeverityMedium
	}
	inc := Incident{ID: uuid.NewString(), Title: title, Severity: severity, Source: source, ReportedAt: time.Now()}

	s.mu.Lock()
	s.incidents = append(s.incidents, inc)
	s.mu.Unlock()

	err := s.emitter.Emit(ctx, events.SafetyIncidentReported, events.IncidentPayload{
		IncidentID: inc.ID,
		Title:      inc.Title,
		Severity:   inc.Severity,
		Source:     inc.Source,
	})
	return inc, err
}

// Incidents returns the recorded incidents in report order.
func (s *Service) Incidents() []Incident {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.incidents)
}

// Module is the safety module.
type Module struct {
	*blueprint.Lifecycle
}

// New builds a safety module.
func New(desc blueprint.ModuleDescriptor) (blueprint.Module, error) {
	m := &Module{}
	m.Lifecycle = blueprint.NewLifecycle(desc, m)
	return m, nil
}

// Setup implements blueprint.Behavior.
func (m *Module) Setup(_ context.Context, _ *blueprint.ExecutionContext, b *blueprint.Binder) error {
	svc := &Service{emitter: b.Emitter()}

	cfg := b.Config()
	if enabled, set := cfg.Features[FeatureAutoReview]; !set || enabled {
		blueprint.BindTyped(b, events.AcceptanceFailed, func(ctx context.Context, _ blueprint.Event, p events.InspectionPayload) error {
			_, err := svc.Report(ctx, "Review failed acceptance "+p.ChecklistID, SeverityHigh, events.AcceptanceFailed)
			return err
		})
	}
	b.Export("service", svc)
	return nil
}
