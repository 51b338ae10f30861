package blueprint

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hookBehavior is a behavior whose hooks can be made to fail.
type hookBehavior struct {
	setupErr   error
	startErr   error
	stopErr    error
	disposeErr error

	mu       sync.Mutex
	received []Event
	started  bool
	stopped  bool
	disposed int
}

func (p *hookBehavior) Setup(_ context.Context, _ *ExecutionContext, b *Binder) error {
	if p.setupErr != nil {
		return p.setupErr
	}
	b.On("x.created", func(_ context.Context, e Event) error {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.received = append(p.received, e)
		return nil
	})
	b.Export("hooks", p)
	return nil
}

func (p *hookBehavior) OnStart(context.Context) error { p.started = true; return p.startErr }
func (p *hookBehavior) OnStop(context.Context) error  { p.stopped = true; return p.stopErr }
func (p *hookBehavior) OnDispose() error              { p.disposed++; return p.disposeErr }

func (p *hookBehavior) events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.received...)
}

func descriptor(id string, deps ...string) ModuleDescriptor {
	return ModuleDescriptor{ID: id, Name: id, Version: "1.0.0", ModuleType: "test", Dependencies: deps, Enabled: true}
}

func newContext(dir ModuleDirectory) (*ExecutionContext, *EventBus) {
	bus := NewEventBus("bp-1")
	return NewExecutionContext("bp-1", bus, WithDirectory(dir)), bus
}

func recordStatuses(l *Lifecycle) *[]ModuleStatus {
	var seen []ModuleStatus
	l.StatusView().Subscribe(func(s ModuleStatus) { seen = append(seen, s) })
	return &seen
}

func driveToRunning(ctx context.Context, l *Lifecycle, ec *ExecutionContext) error {
	if err := l.Init(ctx, ec); err != nil {
		return err
	}
	if err := l.Start(ctx); err != nil {
		return err
	}
	return l.Ready(ctx)
}

func TestLifecycle_ExactStatusSequence(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ec, _ := newContext(nil)
	p := &hookBehavior{}
	l := NewLifecycle(descriptor("m"), p)
	seen := recordStatuses(l)

	require.NoError(t, driveToRunning(ctx, l, ec))

	assert.Equal(t, []ModuleStatus{
		StatusUninitialized, StatusInitializing, StatusInitialized,
		StatusStarting, StatusStarted, StatusReady, StatusRunning,
	}, *seen)
	assert.True(t, p.started)
	assert.Same(t, p, l.Exports()["hooks"])
	assert.Same(t, ec, l.Context())
}

func TestLifecycle_InitRequiresBlueprintID(t *testing.T) {
	t.Parallel()
	l := NewLifecycle(descriptor("m"), &hookBehavior{})
	err := l.Init(context.Background(), NewExecutionContext("", NewEventBus("")))

	assert.ErrorIs(t, err, ErrBlueprintIDMissing)
	assert.ErrorIs(t, err, ErrValidation)
	var lerr *LifecycleError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, "init", lerr.Phase)
	assert.Equal(t, StatusError, l.Status())
}

func TestLifecycle_InitRejectsNilContext(t *testing.T) {
	t.Parallel()
	l := NewLifecycle(descriptor("m"), nil)
	assert.ErrorIs(t, l.Init(context.Background(), nil), ErrContextNil)
	assert.Equal(t, StatusError, l.Status())
}

func TestLifecycle_InitRejectsMissingDependency(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := mapDirectory{}
	ec, _ := newContext(dir)

	m1 := NewLifecycle(descriptor("M1", "M0"), &hookBehavior{})
	err := m1.Init(ctx, ec)
	assert.ErrorIs(t, err, ErrDependencyMissing)
	assert.ErrorContains(t, err, "M0")
	assert.Equal(t, StatusError, m1.Status())

	// A failed instance is not reused; a fresh one succeeds once M0 is
	// registered and enabled.
	assert.ErrorIs(t, m1.Init(ctx, ec), ErrInvalidTransition)
	dir["M0"] = descriptor("M0")
	retry := NewLifecycle(descriptor("M1", "M0"), &hookBehavior{})
	require.NoError(t, driveToRunning(ctx, retry, ec))
}

func TestLifecycle_SetupFailureEmitsModuleError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ec, bus := newContext(nil)

	var payloads []ModuleEventPayload
	Subscribe(bus, EventModuleError, func(_ context.Context, _ Event, p ModuleEventPayload) error {
		payloads = append(payloads, p)
		return nil
	})

	l := NewLifecycle(descriptor("m"), &hookBehavior{setupErr: errors.New("no database")})
	err := l.Init(ctx, ec)
	require.Error(t, err)
	assert.Equal(t, StatusError, l.Status())
	require.Len(t, payloads, 1)
	assert.Equal(t, "m", payloads[0].ModuleID)
	assert.Contains(t, payloads[0].Error, "no database")
}

func TestLifecycle_StartFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ec, bus := newContext(nil)
	l := NewLifecycle(descriptor("m"), &hookBehavior{startErr: errors.New("port in use")})

	require.NoError(t, l.Init(ctx, ec))
	err := l.Start(ctx)
	var lerr *LifecycleError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, "start", lerr.Phase)
	assert.Equal(t, StatusError, l.Status())
	assert.Equal(t, 0, bus.SubscriberCount("x.created"))
}

func TestLifecycle_PhasesOutOfOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := NewLifecycle(descriptor("m"), nil)

	assert.ErrorIs(t, l.Start(ctx), ErrInvalidTransition)
	assert.ErrorIs(t, l.Ready(ctx), ErrInvalidTransition)
	assert.ErrorIs(t, l.Stop(ctx), ErrInvalidTransition)
	assert.Equal(t, StatusUninitialized, l.Status())
}

func TestLifecycle_ReadyEmitsModuleStarted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ec, bus := newContext(nil)

	var started []Event
	bus.On(EventModuleStarted, func(_ context.Context, e Event) error { started = append(started, e); return nil })

	l := NewLifecycle(descriptor("m"), nil)
	require.NoError(t, driveToRunning(ctx, l, ec))
	require.Len(t, started, 1)
	assert.Equal(t, "m", started[0].SourceModuleID)
	assert.Equal(t, StatusRunning, started[0].Payload.(ModuleEventPayload).Status)
}

func TestLifecycle_StopAndDispose(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ec, bus := newContext(nil)
	p := &hookBehavior{}
	l := NewLifecycle(descriptor("m"), p)
	require.NoError(t, driveToRunning(ctx, l, ec))
	require.Equal(t, 1, bus.SubscriberCount("x.created"))

	require.NoError(t, l.Stop(ctx))
	assert.True(t, p.stopped)
	assert.Equal(t, StatusStopped, l.Status())
	assert.ErrorIs(t, l.Stop(ctx), ErrInvalidTransition)

	l.Dispose()
	assert.NotPanics(t, l.Dispose)
	assert.Equal(t, StatusDisposed, l.Status())
	assert.Equal(t, 1, p.disposed)
	assert.Equal(t, 0, bus.SubscriberCount("x.created"))
	assert.Nil(t, l.Context())
	assert.Empty(t, l.Exports())
}

func TestLifecycle_DisposeFromAnyState(t *testing.T) {
	t.Parallel()
	l := NewLifecycle(descriptor("m"), &hookBehavior{disposeErr: errors.New("ignored")})
	l.Dispose()
	l.Dispose()
	assert.Equal(t, StatusDisposed, l.Status())
	assert.ErrorIs(t, l.Init(context.Background(), NewExecutionContext("bp-1", NewEventBus("bp-1"))), ErrInvalidTransition)
}

func TestLifecycle_EmitterScenario(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ec, _ := newContext(nil)

	emitter := NewLifecycle(descriptor("A"), nil)
	pb := &hookBehavior{}
	listener := NewLifecycle(descriptor("B"), pb)
	require.NoError(t, driveToRunning(ctx, emitter, ec))
	require.NoError(t, driveToRunning(ctx, listener, ec))

	require.NoError(t, emitter.Emit(ctx, "x.created", "payload"))
	got := pb.events()
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].SourceModuleID)

	// An emitter that subscribed to its own type receives the event too.
	pa := &hookBehavior{}
	self := NewLifecycle(descriptor("C"), pa)
	require.NoError(t, driveToRunning(ctx, self, ec))
	require.NoError(t, self.Emit(ctx, "x.created", "again"))
	assert.Len(t, pa.events(), 1)
	assert.Len(t, pb.events(), 2)
}

func TestLifecycle_EmitWithoutContext(t *testing.T) {
	t.Parallel()
	l := NewLifecycle(descriptor("m"), nil)
	assert.ErrorIs(t, l.Emit(context.Background(), "x", nil), ErrContextNil)
}

func TestLifecycle_Accessors(t *testing.T) {
	t.Parallel()
	desc := descriptor("m", "dep")
	desc.DefaultConfig.Features = map[string]bool{"f": true}
	l := NewLifecycle(desc, nil)

	assert.Equal(t, "m", l.ID())
	assert.Equal(t, "m", l.Name())
	assert.Equal(t, "1.0.0", l.Version())
	assert.Equal(t, ModuleType("test"), l.Type())
	assert.Equal(t, []string{"dep"}, l.Dependencies())
	assert.True(t, l.Config().FeatureEnabled("f"))

	deps := l.Dependencies()
	deps[0] = "mutated"
	assert.Equal(t, []string{"dep"}, l.Dependencies())
}

var _ Module = (*Lifecycle)(nil)

func TestLifecycle_DisposeDuringStartedHandshakeStaysDisposed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ec, bus := newContext(nil)
	l := NewLifecycle(descriptor("m"), &hookBehavior{})
	seen := recordStatuses(l)

	bus.On(EventModuleStarted, func(context.Context, Event) error {
		l.Dispose()
		return nil
	})

	err := driveToRunning(ctx, l, ec)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModuleDisposed)
	assert.Equal(t, StatusDisposed, l.Status())
	assert.Equal(t, StatusDisposed, (*seen)[len(*seen)-1])
	assert.NotContains(t, *seen, StatusRunning)
}

// stopHook disposes its own module from OnStop.
type stopHook struct {
	l       *Lifecycle
	stopErr error
}

func (h *stopHook) Setup(context.Context, *ExecutionContext, *Binder) error { return nil }
func (h *stopHook) OnStop(context.Context) error {
	h.l.Dispose()
	return h.stopErr
}

func TestLifecycle_DisposeDuringStopStaysDisposed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ec, bus := newContext(nil)

	var stopped, failed int
	bus.On(EventModuleStopped, func(context.Context, Event) error { stopped++; return nil })
	bus.On(EventModuleError, func(context.Context, Event) error { failed++; return nil })

	hook := &stopHook{}
	l := NewLifecycle(descriptor("m"), hook)
	hook.l = l
	require.NoError(t, driveToRunning(ctx, l, ec))

	err := l.Stop(ctx)
	assert.ErrorIs(t, err, ErrModuleDisposed)
	assert.Equal(t, StatusDisposed, l.Status())
	assert.Zero(t, stopped)

	failing := &stopHook{stopErr: errors.New("flush failed")}
	l2 := NewLifecycle(descriptor("m2"), failing)
	failing.l = l2
	require.NoError(t, driveToRunning(ctx, l2, ec))

	err = l2.Stop(ctx)
	assert.ErrorIs(t, err, ErrModuleDisposed)
	assert.ErrorContains(t, err, "flush failed")
	assert.Equal(t, StatusDisposed, l2.Status())
	assert.Zero(t, failed)
}

func TestLifecycle_DisposeRunsHookOnce(t *testing.T) {
	t.Parallel()
	p := &hookBehavior{}
	l := NewLifecycle(descriptor("m"), p)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Dispose()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, p.disposed)
	assert.ErrorIs(t, l.Start(context.Background()), ErrModuleDisposed)
}
