package blueprint

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Lifecycle is the reusable module state machine. Concrete modules embed a
// *Lifecycle built from their descriptor and a Behavior, which makes them
// satisfy Module.
type Lifecycle struct {
	descriptor ModuleDescriptor
	behavior   Behavior
	status     *Cell[ModuleStatus]

	mu      sync.RWMutex
	ec      *ExecutionContext
	logger  Logger
	exports map[string]any
	unsubs  []Unsubscribe
}

// NewLifecycle creates a lifecycle in UNINITIALIZED for the descriptor.
// A nil behavior is treated as one with no setup work.
func NewLifecycle(desc ModuleDescriptor, behavior Behavior) *Lifecycle {
	if behavior == nil {
		behavior = BehaviorFunc(func(context.Context, *ExecutionContext, *Binder) error { return nil })
	}
	return &Lifecycle{
		descriptor: desc.Clone(),
		behavior:   behavior,
		status:     NewCell(StatusUninitialized),
		logger:     NopLogger{},
		exports:    make(map[string]any),
	}
}

func (l *Lifecycle) ID() string             { return l.descriptor.ID }
func (l *Lifecycle) Name() string           { return l.descriptor.Name }
func (l *Lifecycle) Version() string        { return l.descriptor.Version }
func (l *Lifecycle) Type() ModuleType       { return l.descriptor.ModuleType }
func (l *Lifecycle) Dependencies() []string { return slices.Clone(l.descriptor.Dependencies) }

// Config returns the module's configuration bag.
func (l *Lifecycle) Config() ModuleConfig { return l.descriptor.DefaultConfig.Clone() }

// Status returns the current status.
func (l *Lifecycle) Status() ModuleStatus { return l.status.Get() }

// StatusView returns the observable status.
func (l *Lifecycle) StatusView() View[ModuleStatus] { return l.status.ReadOnly() }

// Exports returns a copy of the exported capabilities.
func (l *Lifecycle) Exports() map[string]any {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return maps.Clone(l.exports)
}

// Context returns the execution context, nil before Init and after Dispose.
func (l *Lifecycle) Context() *ExecutionContext {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ec
}

// Logger returns the module's logger, tagged with its id.
func (l *Lifecycle) Logger() Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.logger
}

// Emit publishes an event on the Blueprint bus with this module as source.
func (l *Lifecycle) Emit(ctx context.Context, eventType string, payload any) error {
	ec := l.Context()
	if ec == nil || ec.EventBus() == nil {
		return fmt.Errorf("module %s: %w", l.ID(), ErrContextNil)
	}
	return ec.EventBus().Emit(ctx, eventType, payload, l.ID())
}

// Init implements Module.
func (l *Lifecycle) Init(ctx context.Context, ec *ExecutionContext) error {
	if err := l.transition("init", StatusInitializing, StatusUninitialized); err != nil {
		return err
	}

	if ec == nil {
		return l.fail(ctx, "init", &ValidationError{Field: "context", Reason: "must not be nil", Err: ErrContextNil})
	}
	if ec.BlueprintID() == "" {
		return l.fail(ctx, "init", &ValidationError{Field: "blueprintId", Reason: "must not be empty", Err: ErrBlueprintIDMissing})
	}

	l.mu.Lock()
	l.ec = ec
	l.logger = WithSource(ec.Logger(), "module:"+l.ID())
	l.mu.Unlock()

	validator := NewDependencyValidator(ec.Directory(), ec.DependencyPolicy())
	if err := validator.Validate(l.ID(), l.descriptor.Dependencies); err != nil {
		return l.fail(ctx, "init", err)
	}

	if ec.EventBus() == nil {
		return l.fail(ctx, "init", &ValidationError{Field: "eventBus", Reason: "must not be nil", Err: ErrEventBusNotFound})
	}

	if err := l.behavior.Setup(ctx, ec, &Binder{l: l}); err != nil {
		return l.fail(ctx, "init", err)
	}

	if err := l.transition("init", StatusInitialized); err != nil {
		return &LifecycleError{ModuleID: l.ID(), Phase: "init", Err: err}
	}
	return nil
}

// Start implements Module.
func (l *Lifecycle) Start(ctx context.Context) error {
	if err := l.transition("start", StatusStarting, StatusInitialized); err != nil {
		return err
	}

	if ec := l.Context(); ec == nil || ec.BlueprintID() == "" {
		return l.fail(ctx, "start", &ValidationError{Field: "blueprintId", Reason: "module was not initialized", Err: ErrBlueprintIDMissing})
	}

	if starter, ok := l.behavior.(Starter); ok {
		if err := starter.OnStart(ctx); err != nil {
			return l.fail(ctx, "start", err)
		}
	}

	if err := l.transition("start", StatusStarted); err != nil {
		return &LifecycleError{ModuleID: l.ID(), Phase: "start", Err: err}
	}
	return nil
}

// Ready implements Module.
func (l *Lifecycle) Ready(ctx context.Context) error {
	if err := l.transition("ready", StatusReady, StatusStarted); err != nil {
		return err
	}

	if err := l.Emit(ctx, EventModuleStarted, l.payload(StatusRunning, nil)); err != nil {
		return l.fail(ctx, "ready", err)
	}

	// A MODULE_STARTED handler may have stopped or disposed the module.
	if err := l.transition("ready", StatusRunning); err != nil {
		return &LifecycleError{ModuleID: l.ID(), Phase: "ready", Err: err}
	}
	return nil
}

// Stop implements Module.
func (l *Lifecycle) Stop(ctx context.Context) error {
	if err := l.transition("stop", StatusStopping, StatusInitialized, StatusStarted, StatusReady, StatusRunning); err != nil {
		return err
	}

	if stopper, ok := l.behavior.(Stopper); ok {
		if err := stopper.OnStop(ctx); err != nil {
			return l.fail(ctx, "stop", err)
		}
	}

	if err := l.transition("stop", StatusStopped); err != nil {
		return &LifecycleError{ModuleID: l.ID(), Phase: "stop", Err: err}
	}
	if err := l.Emit(ctx, EventModuleStopped, l.payload(StatusStopped, nil)); err != nil {
		l.Logger().Warn("Failed to emit module stopped event", "error", err)
	}
	return nil
}

// Dispose implements Module.
func (l *Lifecycle) Dispose() {
	if _, ok := l.status.UpdateIf(func(current ModuleStatus) (ModuleStatus, bool) {
		return StatusDisposed, current != StatusDisposed
	}); !ok {
		return
	}
	l.Logger().Debug("Module status changed", "module", l.ID(), "status", StatusDisposed)

	if disposer, ok := l.behavior.(Disposer); ok {
		if err := disposer.OnDispose(); err != nil {
			l.Logger().Error("Module dispose hook failed", "error", err)
		}
	}

	l.release()
	l.mu.Lock()
	l.ec = nil
	l.exports = make(map[string]any)
	l.mu.Unlock()
}

// transition moves the module to status `to` when the lifecycle graph allows
// it and, if from is given, the current status is one of them. The check and
// the write are atomic.
func (l *Lifecycle) transition(phase string, to ModuleStatus, from ...ModuleStatus) error {
	current, ok := l.status.UpdateIf(func(current ModuleStatus) (ModuleStatus, bool) {
		if len(from) > 0 && !slices.Contains(from, current) {
			return current, false
		}
		return to, CanTransition(current, to)
	})
	if !ok {
		if current == StatusDisposed {
			return fmt.Errorf("%w: %w: module %s cannot %s", ErrInvalidTransition, ErrModuleDisposed, l.ID(), phase)
		}
		return fmt.Errorf("%w: module %s cannot %s from %s", ErrInvalidTransition, l.ID(), phase, current)
	}
	l.Logger().Debug("Module status changed", "module", l.ID(), "status", to)
	return nil
}

// fail moves the module to ERROR, drops its subscriptions and announces the
// failure on the bus. A module that was disposed meanwhile stays DISPOSED.
func (l *Lifecycle) fail(ctx context.Context, phase string, err error) error {
	l.release()
	if terr := l.transition(phase, StatusError); terr != nil {
		l.Logger().Warn("Module failed after leaving its lifecycle", "module", l.ID(), "phase", phase, "error", err)
		return &LifecycleError{ModuleID: l.ID(), Phase: phase, Err: errors.Join(err, terr)}
	}
	l.Logger().Error("Module lifecycle failed", "module", l.ID(), "phase", phase, "error", err)

	if ec := l.Context(); ec != nil && ec.EventBus() != nil {
		_ = ec.EventBus().Emit(ctx, EventModuleError, l.payload(StatusError, err), l.ID())
	}
	return &LifecycleError{ModuleID: l.ID(), Phase: phase, Err: err}
}

func (l *Lifecycle) release() {
	l.mu.Lock()
	unsubs := l.unsubs
	l.unsubs = nil
	l.mu.Unlock()
	for _, unsub := range unsubs {
		unsub()
	}
}

func (l *Lifecycle) payload(status ModuleStatus, err error) ModuleEventPayload {
	p := ModuleEventPayload{
		ModuleID:   l.ID(),
		Name:       l.Name(),
		Version:    l.Version(),
		ModuleType: l.Type(),
		Status:     status,
	}
	if err != nil {
		p.Error = err.Error()
	}
	return p
}

// Binder is handed to Behavior.Setup. Subscriptions made through it are
// released when the module is disposed or fails.
type Binder struct {
	l *Lifecycle
}

// On subscribes to an event type on the Blueprint bus.
func (b *Binder) On(eventType string, handler EventHandler) {
	unsub := b.l.Context().EventBus().On(eventType, handler)
	b.l.mu.Lock()
	b.l.unsubs = append(b.l.unsubs, unsub)
	b.l.mu.Unlock()
}

// Export publishes a named capability.
func (b *Binder) Export(name string, value any) {
	b.l.mu.Lock()
	defer b.l.mu.Unlock()
	b.l.exports[name] = value
}

// ModuleID returns the id of the module being set up.
func (b *Binder) ModuleID() string {
	return b.l.ID()
}

// Config returns the configuration bag of the module being set up.
func (b *Binder) Config() ModuleConfig {
	return b.l.Config()
}

// Emitter returns a function that emits events as this module.
func (b *Binder) Emitter() Emitter {
	return b.l
}

// Emitter publishes events on behalf of a module.
type Emitter interface {
	Emit(ctx context.Context, eventType string, payload any) error
}

// BindTyped subscribes through a Binder with a payload type assertion.
func BindTyped[T any](b *Binder, eventType string, handler func(ctx context.Context, event Event, payload T) error) {
	unsub := Subscribe(b.l.Context().EventBus(), eventType, handler)
	b.l.mu.Lock()
	b.l.unsubs = append(b.l.unsubs, unsub)
	b.l.mu.Unlock()
}
