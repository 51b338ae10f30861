package health

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/GoCodeAlone/blueprint"
)

// Monitor runs an aggregator on a cron schedule and reports overall status
// changes to its callbacks.
type Monitor struct {
	aggregator *Aggregator
	schedule   string
	logger     blueprint.Logger

	mu        sync.Mutex
	cron      *cron.Cron
	callbacks []StatusChangeCallback
	previous  *AggregatedStatus
}

// NewMonitor creates a monitor. schedule uses the standard cron syntax and
// descriptors such as "@every 30s".
func NewMonitor(aggregator *Aggregator, schedule string, logger blueprint.Logger) *Monitor {
	return &Monitor{
		aggregator: aggregator,
		schedule:   schedule,
		logger:     blueprint.WithSource(logger, "health"),
	}
}

// OnChange registers a callback for overall status changes.
func (m *Monitor) OnChange(callback StatusChangeCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

// Start schedules the checks. The context is handed to every run.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cron != nil {
		return ErrMonitoringAlreadyActive
	}

	c := cron.New()
	if _, err := c.AddFunc(m.schedule, func() { m.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("invalid health schedule %q: %w", m.schedule, err)
	}
	c.Start()
	m.cron = c
	m.logger.Info("Health monitoring started", "schedule", m.schedule)
	return nil
}

// Stop unschedules the checks and waits for a running check to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	c := m.cron
	m.cron = nil
	m.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	m.logger.Info("Health monitoring stopped")
}

// IsMonitoring reports whether checks are scheduled.
func (m *Monitor) IsMonitoring() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cron != nil
}

// RunOnce runs every check immediately and notifies callbacks when the
// overall status changed since the previous run.
func (m *Monitor) RunOnce(ctx context.Context) *AggregatedStatus {
	current := m.aggregator.CheckAll(ctx)

	m.mu.Lock()
	previous := m.previous
	m.previous = current
	callbacks := append([]StatusChangeCallback(nil), m.callbacks...)
	m.mu.Unlock()

	if previous != nil && previous.OverallStatus == current.OverallStatus {
		return current
	}

	from := StatusUnknown
	if previous != nil {
		from = previous.OverallStatus
	}
	m.logger.Info("Health status changed", "from", from, "to", current.OverallStatus)
	for _, cb := range callbacks {
		cb(ctx, previous, current)
	}
	return current
}
