package blueprint

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// ActivationReport summarizes one Activate call.
type ActivationReport struct {
	Running []string         `json:"running"`
	Failed  map[string]error `json:"-"`
	Skipped []string         `json:"skipped"`
}

// FailedIDs returns the ids that failed to activate, sorted.
func (r ActivationReport) FailedIDs() []string {
	ids := make([]string, 0, len(r.Failed))
	for id := range r.Failed {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Activate drives every enabled module through init, start and ready in
// dependency order. A module failure never stops the others; it is
// collected in the report. Disabled modules are skipped.
func (m *ModuleManager) Activate(ctx context.Context) (ActivationReport, error) {
	if _, err := m.requireBlueprint(); err != nil {
		return ActivationReport{}, err
	}

	descriptors := m.modules.Get()
	order, err := ResolveOrder(descriptors)
	if err != nil {
		m.reportError("Failed to resolve module order", err)
		return ActivationReport{}, err
	}

	byID := make(map[string]ModuleDescriptor, len(descriptors))
	for _, d := range descriptors {
		byID[d.ID] = d
	}

	ec := m.executionContext()
	report := ActivationReport{Running: []string{}, Failed: make(map[string]error), Skipped: []string{}}
	for _, id := range order {
		desc := byID[id]
		if !desc.Enabled {
			report.Skipped = append(report.Skipped, id)
			continue
		}
		if err := m.drive(ctx, ec, desc); err != nil {
			report.Failed[id] = err
			continue
		}
		report.Running = append(report.Running, id)
	}

	m.logger.Info("Activation completed", "blueprint", ec.BlueprintID(),
		"running", len(report.Running), "failed", len(report.Failed), "skipped", len(report.Skipped))
	return report, nil
}

// ActivateModule drives a single module to RUNNING. An instance left in
// ERROR, STOPPED or DISPOSED is disposed and replaced by a fresh one, which
// is how a failed module is retried.
func (m *ModuleManager) ActivateModule(ctx context.Context, id string) error {
	_, desc, err := m.requireModule(id)
	if err != nil {
		return err
	}
	if !desc.Enabled {
		return fmt.Errorf("%w: %s", ErrModuleDisabled, id)
	}
	return m.drive(ctx, m.executionContext(), desc)
}

// DeactivateModule stops a live instance and disposes it.
func (m *ModuleManager) DeactivateModule(ctx context.Context, id string) error {
	m.mu.Lock()
	inst := m.instances[id]
	m.mu.Unlock()

	if inst == nil {
		if _, ok := m.LookupModule(id); !ok {
			return fmt.Errorf("%w: %s", ErrModuleNotFound, id)
		}
		return nil
	}

	var stopErr error
	if inst.module.Status().IsActive() {
		stopErr = inst.module.Stop(ctx)
	}
	m.retire(id)
	m.persistStatus(ctx, id, StatusDisposed)

	if stopErr != nil {
		m.reportError("Failed to stop module "+inst.module.Name(), stopErr, "module", id)
		return stopErr
	}
	m.logger.Info("Deactivated module", "module", id)
	return nil
}

// Deactivate stops and disposes every live instance, dependents first, and
// drops the execution context so the next activation starts clean.
func (m *ModuleManager) Deactivate(ctx context.Context) error {
	descriptors := m.modules.Get()
	order, err := ResolveOrder(descriptors)
	if err != nil {
		order = make([]string, 0, len(descriptors))
		for _, d := range descriptors {
			order = append(order, d.ID)
		}
	}
	slices.Reverse(order)

	var errs []error
	for _, id := range order {
		m.mu.Lock()
		_, live := m.instances[id]
		m.mu.Unlock()
		if !live {
			continue
		}
		if err := m.DeactivateModule(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}

	m.mu.Lock()
	orphans := m.instances
	m.instances = make(map[string]*managedInstance)
	m.bus = nil
	m.ec = nil
	m.mu.Unlock()
	for _, inst := range orphans {
		inst.module.Dispose()
		inst.unwatch()
	}

	return errors.Join(errs...)
}

// Instance returns the live instance of a module.
func (m *ModuleManager) Instance(id string) (Module, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[id]
	if !ok {
		return nil, false
	}
	return inst.module, true
}

// Exports returns the capabilities of a RUNNING module.
func (m *ModuleManager) Exports(id string) (map[string]any, bool) {
	module, ok := m.Instance(id)
	if !ok || module.Status() != StatusRunning {
		return nil, false
	}
	return module.Exports(), true
}

// EventBus returns the bus of the current activation, or nil.
func (m *ModuleManager) EventBus() *EventBus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bus
}

// executionContext returns the context of the current activation, building
// it on first use.
func (m *ModuleManager) executionContext() *ExecutionContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ec != nil {
		return m.ec
	}
	m.bus = NewEventBus(m.blueprintID, WithBusLogger(m.base), WithBusMetrics(m.metrics))
	m.ec = NewExecutionContext(m.blueprintID, m.bus,
		WithContextLogger(m.base),
		WithDirectory(m),
		WithValidationPolicy(m.policy),
		WithServices(m.extra),
	)
	return m.ec
}

func (m *ModuleManager) drive(ctx context.Context, ec *ExecutionContext, desc ModuleDescriptor) error {
	m.mu.Lock()
	existing := m.instances[desc.ID]
	m.mu.Unlock()

	if existing != nil {
		switch status := existing.module.Status(); {
		case status == StatusRunning:
			return nil
		case status.IsTerminal():
			m.retire(desc.ID)
		default:
			return fmt.Errorf("%w: module %s is %s", ErrInvalidTransition, desc.ID, status)
		}
	}

	module, err := m.factory.New(desc)
	if err != nil {
		m.setStatus(desc.ID, StatusError)
		m.persistStatus(ctx, desc.ID, StatusError)
		m.reportError("Failed to create module "+desc.Name, err, "module", desc.ID)
		return err
	}
	m.track(module)

	phases := []func(context.Context) error{
		func(ctx context.Context) error { return module.Init(ctx, ec) },
		module.Start,
		module.Ready,
	}
	for _, phase := range phases {
		if err := phase(ctx); err != nil {
			m.persistStatus(ctx, desc.ID, module.Status())
			m.reportError("Failed to activate module "+desc.Name, err, "module", desc.ID)
			return err
		}
	}

	m.persistStatus(ctx, desc.ID, StatusRunning)
	m.logger.Info("Module running", "module", desc.ID, "type", desc.ModuleType)
	return nil
}

// track mirrors the instance status into the module list and metrics.
func (m *ModuleManager) track(module Module) {
	id, moduleType := module.ID(), module.Type()
	unwatch := module.StatusView().Subscribe(func(status ModuleStatus) {
		m.setStatus(id, status)
		m.metrics.ModuleTransition(moduleType, status)
	})

	m.mu.Lock()
	m.instances[id] = &managedInstance{module: module, unwatch: unwatch}
	m.mu.Unlock()
}

// retire disposes and forgets the instance of id, if any.
func (m *ModuleManager) retire(id string) {
	m.mu.Lock()
	inst, ok := m.instances[id]
	delete(m.instances, id)
	m.mu.Unlock()
	if !ok {
		return
	}
	inst.module.Dispose()
	inst.unwatch()
}

func (m *ModuleManager) persistStatus(ctx context.Context, id string, status ModuleStatus) {
	if err := m.repo.UpdateStatus(ctx, m.BlueprintID(), id, status); err != nil {
		m.logger.Warn("Failed to persist module status", "module", id, "status", status, "error", err)
	}
}
