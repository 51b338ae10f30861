package health

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"
)

// Static errors for health package
var (
	ErrHealthCheckNotFound     = errors.New("health check not found")
	ErrHealthCheckExists       = errors.New("health check already registered")
	ErrHealthCheckNil          = errors.New("health check is nil")
	ErrMonitoringAlreadyActive = errors.New("monitoring is already running")
)

// Aggregator runs registered checks and combines them with worst-state
// logic: the overall status is the worst individual status.
type Aggregator struct {
	mu          sync.RWMutex
	checkers    map[string]HealthChecker
	lastResults map[string]*CheckResult
	last        *AggregatedStatus
	now         func() time.Time
}

// NewAggregator creates a new health aggregator
func NewAggregator() *Aggregator {
	return &Aggregator{
		checkers:    make(map[string]HealthChecker),
		lastResults: make(map[string]*CheckResult),
		now:         time.Now,
	}
}

// RegisterCheck registers a health check with the aggregator
func (a *Aggregator) RegisterCheck(checker HealthChecker) error {
	if checker == nil {
		return ErrHealthCheckNil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.checkers[checker.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrHealthCheckExists, checker.Name())
	}
	a.checkers[checker.Name()] = checker
	return nil
}

// UnregisterCheck removes a health check from the aggregator
func (a *Aggregator) UnregisterCheck(name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.checkers[name]; !exists {
		return fmt.Errorf("%w: %s", ErrHealthCheckNotFound, name)
	}
	delete(a.checkers, name)
	delete(a.lastResults, name)
	return nil
}

// Names lists the registered checks, sorted.
func (a *Aggregator) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, 0, len(a.checkers))
	for name := range a.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckAll runs every registered check and returns the aggregated status.
func (a *Aggregator) CheckAll(ctx context.Context) *AggregatedStatus {
	a.mu.RLock()
	checkers := maps.Clone(a.checkers)
	a.mu.RUnlock()

	results := make(map[string]*CheckResult, len(checkers))
	for name, checker := range checkers {
		results[name] = a.run(ctx, name, checker)
	}

	a.mu.Lock()
	for name, result := range results {
		prev, ok := a.lastResults[name]
		if !ok {
			prev = &CheckResult{}
		}
		trend(prev, result)
		a.lastResults[name] = result
	}
	status := aggregate(results, a.now())
	a.last = status
	a.mu.Unlock()

	return status
}

// CheckOne runs a specific health check by name
func (a *Aggregator) CheckOne(ctx context.Context, name string) (*CheckResult, error) {
	a.mu.RLock()
	checker, exists := a.checkers[name]
	a.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrHealthCheckNotFound, name)
	}

	result := a.run(ctx, name, checker)
	a.mu.Lock()
	prev, ok := a.lastResults[name]
	if !ok {
		prev = &CheckResult{}
	}
	trend(prev, result)
	a.lastResults[name] = result
	a.mu.Unlock()
	return result, nil
}

// GetStatus returns the status of the last CheckAll without running checks.
// Before any run every check reports unknown.
func (a *Aggregator) GetStatus() *AggregatedStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.last != nil {
		return a.last
	}
	results := make(map[string]*CheckResult, len(a.checkers))
	for name := range a.checkers {
		results[name] = &CheckResult{Name: name, Status: StatusUnknown}
	}
	return aggregate(results, a.now())
}

func (a *Aggregator) run(ctx context.Context, name string, checker HealthChecker) *CheckResult {
	start := a.now()
	result, err := checker.Check(ctx)
	if err != nil || result == nil {
		result = &CheckResult{Name: name, Status: StatusCritical}
		if err != nil {
			result.Error = err.Error()
		}
	}
	result.Name = name
	if result.Timestamp.IsZero() {
		result.Timestamp = a.now()
	}
	result.Duration = a.now().Sub(start)
	return result
}

func trend(prev, current *CheckResult) {
	if current.Status == StatusHealthy {
		current.ConsecutiveSuccesses = prev.ConsecutiveSuccesses + 1
		current.ConsecutiveFailures = 0
		return
	}
	current.ConsecutiveFailures = prev.ConsecutiveFailures + 1
	current.ConsecutiveSuccesses = 0
}

func aggregate(results map[string]*CheckResult, at time.Time) *AggregatedStatus {
	status := &AggregatedStatus{
		OverallStatus: StatusHealthy,
		Timestamp:     at,
		CheckResults:  results,
	}
	if len(results) == 0 {
		status.OverallStatus = StatusUnknown
	}
	for _, r := range results {
		status.Summary.TotalChecks++
		switch r.Status {
		case StatusHealthy:
			status.Summary.PassingChecks++
		case StatusWarning:
			status.Summary.WarningChecks++
		case StatusCritical:
			status.Summary.CriticalChecks++
		default:
			status.Summary.UnknownChecks++
		}
		status.OverallStatus = Worse(status.OverallStatus, r.Status)
	}
	return status
}
