package blueprint_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/blueprint"
	"github.com/GoCodeAlone/blueprint/storage/memory"
)

const (
	typeBasic   blueprint.ModuleType = "basic"
	typeFailing blueprint.ModuleType = "failing"
	typeEcho    blueprint.ModuleType = "echo"
)

var errBoom = errors.New("boom")

// echoLog records the x.created events each echo module receives.
type echoLog struct {
	mu   sync.Mutex
	seen map[string][]string
}

func (l *echoLog) record(moduleID, source string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen[moduleID] = append(l.seen[moduleID], source)
}

func (l *echoLog) get(moduleID string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.seen[moduleID]...)
}

// newTestFactory knows three module types: basic does nothing, failing
// fails in Setup and echo records the x.created events it receives.
func newTestFactory(echoes *echoLog) *blueprint.Factory {
	factory := blueprint.NewFactory()
	factory.Register(typeBasic, func(desc blueprint.ModuleDescriptor) (blueprint.Module, error) {
		return blueprint.NewLifecycle(desc, nil), nil
	})
	factory.Register(typeFailing, func(desc blueprint.ModuleDescriptor) (blueprint.Module, error) {
		return blueprint.NewLifecycle(desc, blueprint.BehaviorFunc(func(context.Context, *blueprint.ExecutionContext, *blueprint.Binder) error {
			return errBoom
		})), nil
	})
	factory.Register(typeEcho, func(desc blueprint.ModuleDescriptor) (blueprint.Module, error) {
		return blueprint.NewLifecycle(desc, blueprint.BehaviorFunc(func(_ context.Context, _ *blueprint.ExecutionContext, b *blueprint.Binder) error {
			id := b.ModuleID()
			b.On("x.created", func(_ context.Context, e blueprint.Event) error {
				echoes.record(id, e.SourceModuleID)
				return nil
			})
			b.Export("emitter", b.Emitter())
			return nil
		})), nil
	})
	return factory
}

type fixture struct {
	manager *blueprint.ModuleManager
	store   *memory.Store
	audit   *memory.AuditLog
	echoes  *echoLog
}

func newFixture(t *testing.T, opts ...blueprint.ManagerOption) *fixture {
	t.Helper()
	f := &fixture{
		store:  memory.New(),
		audit:  memory.NewAuditLog(),
		echoes: &echoLog{seen: map[string][]string{}},
	}

	factory := newTestFactory(f.echoes)

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	opts = append([]blueprint.ManagerOption{blueprint.WithClock(func() time.Time { return clock })}, opts...)
	f.manager = blueprint.NewModuleManager(f.store, f.audit, factory, opts...)
	require.NoError(t, f.manager.LoadModules(context.Background(), "bp-1"))
	return f
}

func (f *fixture) register(t *testing.T, id string, moduleType blueprint.ModuleType, deps ...string) blueprint.ModuleDescriptor {
	t.Helper()
	desc, err := f.manager.RegisterModule(context.Background(), blueprint.CreateModuleData{
		ID: id, Name: "Module " + id, Version: "1.0.0", ModuleType: moduleType, Dependencies: deps, Enabled: true,
	})
	require.NoError(t, err)
	return desc
}

func TestRegisterThenLoad_RoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)

	registered, err := f.manager.RegisterModule(ctx, blueprint.CreateModuleData{
		ID:           "contract",
		Name:         "Contracts",
		Version:      "2.1.0",
		ModuleType:   typeBasic,
		Dependencies: []string{"workflow"},
		DefaultConfig: blueprint.ModuleConfig{
			Features: map[string]bool{"autoReview": true},
			Limits:   blueprint.LimitsConfig{MaxItems: 5},
		},
		Enabled: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "bp-1", registered.BlueprintID)
	assert.Equal(t, blueprint.StatusUninitialized, registered.Status)

	persisted, ok := f.store.Get("bp-1", "contract")
	require.True(t, ok)
	require.NoError(t, f.store.UpdateStatus(ctx, "bp-1", "contract", blueprint.StatusRunning))

	reloaded := blueprint.NewModuleManager(f.store, nil, nil)
	require.NoError(t, reloaded.LoadModules(ctx, "bp-1"))
	got, ok := reloaded.LookupModule("contract")
	require.True(t, ok)

	persisted.Status = blueprint.StatusUninitialized
	assert.Equal(t, persisted, got)
}

func TestRegisterModule_Validation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.register(t, "contract", typeBasic)

	tests := []struct {
		name string
		data blueprint.CreateModuleData
		want error
	}{
		{"empty name", blueprint.CreateModuleData{ModuleType: typeBasic}, blueprint.ErrModuleNameEmpty},
		{"empty type", blueprint.CreateModuleData{Name: "x"}, blueprint.ErrModuleTypeEmpty},
		{"unknown type", blueprint.CreateModuleData{Name: "x", ModuleType: "nope"}, blueprint.ErrUnknownModuleType},
		{"self dependency", blueprint.CreateModuleData{ID: "self", Name: "x", ModuleType: typeBasic, Dependencies: []string{"self"}}, blueprint.ErrCircularDependency},
		{"bad config", blueprint.CreateModuleData{Name: "x", ModuleType: typeBasic, DefaultConfig: blueprint.ModuleConfig{Limits: blueprint.LimitsConfig{MaxItems: -1}}}, blueprint.ErrInvalidModuleConfig},
		{"duplicate", blueprint.CreateModuleData{ID: "contract", Name: "x", ModuleType: typeBasic}, blueprint.ErrModuleAlreadyRegistered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.manager.RegisterModule(context.Background(), tt.data)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Len(t, f.manager.Modules().Get(), 1)
	assert.NotEmpty(t, f.manager.LastError().Get())
}

func TestRegisterModule_GeneratesID(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	desc, err := f.manager.RegisterModule(context.Background(), blueprint.CreateModuleData{Name: "Anon", ModuleType: typeBasic})
	require.NoError(t, err)
	assert.Len(t, desc.ID, 36)
}

func TestRegisterModule_PersistenceFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.store.FailOn(memory.OpCreate, "contract", errBoom)

	_, err := f.manager.RegisterModule(context.Background(), blueprint.CreateModuleData{ID: "contract", Name: "c", ModuleType: typeBasic})
	assert.ErrorIs(t, err, blueprint.ErrPersistence)
	assert.ErrorIs(t, err, errBoom)
	assert.Empty(t, f.manager.Modules().Get())

	last, ok := f.audit.Last()
	require.True(t, ok)
	assert.Equal(t, blueprint.AuditFailure, last.Status)
	assert.Equal(t, blueprint.SeverityError, last.Severity)
}

func TestRequiresLoadedBlueprint(t *testing.T) {
	t.Parallel()
	m := blueprint.NewModuleManager(memory.New(), nil, nil)
	ctx := context.Background()

	_, err := m.RegisterModule(ctx, blueprint.CreateModuleData{Name: "x", ModuleType: typeBasic})
	assert.ErrorIs(t, err, blueprint.ErrNoBlueprintLoaded)
	assert.ErrorIs(t, m.EnableModule(ctx, "x"), blueprint.ErrNoBlueprintLoaded)
	_, err = m.Activate(ctx)
	assert.ErrorIs(t, err, blueprint.ErrNoBlueprintLoaded)
	assert.ErrorIs(t, m.LoadModules(ctx, ""), blueprint.ErrBlueprintIDMissing)
}

func TestEnableDisable_AuditAndMemory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, blueprint.WithActor("u-7", blueprint.ActorTypeUser))
	f.register(t, "contract", typeBasic)

	require.NoError(t, f.manager.DisableModule(ctx, "contract"))
	desc, _ := f.manager.LookupModule("contract")
	assert.False(t, desc.Enabled)
	stored, _ := f.store.Get("bp-1", "contract")
	assert.False(t, stored.Enabled)

	last, _ := f.audit.Last()
	assert.Equal(t, blueprint.AuditEventModuleDisabled, last.EventType)
	assert.Equal(t, "u-7", last.ActorID)
	assert.Equal(t, blueprint.ActorTypeUser, last.ActorType)
	assert.Equal(t, "contract", last.ResourceID)

	require.NoError(t, f.manager.EnableModule(ctx, "contract"))
	desc, _ = f.manager.LookupModule("contract")
	assert.True(t, desc.Enabled)

	assert.ErrorIs(t, f.manager.EnableModule(ctx, "ghost"), blueprint.ErrModuleNotFound)
}

func TestEnable_PersistenceFailureLeavesMemory(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.register(t, "contract", typeBasic)
	f.store.FailOn(memory.OpUpdate, "contract", errBoom)

	err := f.manager.DisableModule(context.Background(), "contract")
	assert.ErrorIs(t, err, blueprint.ErrPersistence)
	desc, _ := f.manager.LookupModule("contract")
	assert.True(t, desc.Enabled)
	assert.Contains(t, f.manager.LastError().Get(), "boom")
}

func TestAuditFailureDoesNotFailOperation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.audit.FailWith(errBoom)

	f.register(t, "contract", typeBasic)
	assert.NoError(t, f.manager.DisableModule(context.Background(), "contract"))
}

func TestUpdateModuleConfig(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "contract", typeBasic)

	cfg := blueprint.ModuleConfig{Settings: map[string]any{"currency": "EUR"}}
	require.NoError(t, f.manager.UpdateModuleConfig(ctx, "contract", cfg))
	desc, _ := f.manager.LookupModule("contract")
	assert.Equal(t, "EUR", desc.DefaultConfig.Settings["currency"])

	cfg.Settings["currency"] = "USD"
	desc, _ = f.manager.LookupModule("contract")
	assert.Equal(t, "EUR", desc.DefaultConfig.Settings["currency"])

	err := f.manager.UpdateModuleConfig(ctx, "contract", blueprint.ModuleConfig{UI: blueprint.UIConfig{Visibility: "blinking"}})
	assert.ErrorIs(t, err, blueprint.ErrInvalidModuleConfig)

	last, _ := f.audit.Last()
	assert.Equal(t, blueprint.AuditEventModuleConfigUpdated, last.EventType)
}

func TestDeleteModule(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "contract", typeBasic)
	f.manager.ToggleSelection("contract")

	_, err := f.manager.Activate(ctx)
	require.NoError(t, err)
	instance, ok := f.manager.Instance("contract")
	require.True(t, ok)

	require.NoError(t, f.manager.DeleteModule(ctx, "contract"))
	assert.Equal(t, blueprint.StatusDisposed, instance.Status())
	assert.Empty(t, f.manager.Modules().Get())
	assert.False(t, f.manager.Selection().Get().Has("contract"))
	_, ok = f.store.Get("bp-1", "contract")
	assert.False(t, ok)

	assert.ErrorIs(t, f.manager.DeleteModule(ctx, "contract"), blueprint.ErrModuleNotFound)
}

func TestSelection(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	for _, id := range []string{"a", "b", "c"} {
		f.register(t, id, typeBasic)
	}

	var sizes []int
	unsub := f.manager.Selection().Subscribe(func(s blueprint.Selection) { sizes = append(sizes, s.Len()) })
	defer unsub()

	before := f.manager.Selection().Get()
	f.manager.ToggleSelection("a")
	f.manager.SelectAll()
	f.manager.ToggleSelection("b")
	assert.Equal(t, []string{"a", "c"}, f.manager.Selection().Get().IDs())
	f.manager.ClearSelection()

	assert.Equal(t, []int{0, 1, 3, 2, 0}, sizes)
	assert.Equal(t, 0, before.Len())
}

func TestLoadModules_ResetsState(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, "contract", typeBasic)
	f.manager.ToggleSelection("contract")
	_, err := f.manager.Activate(ctx)
	require.NoError(t, err)
	instance, _ := f.manager.Instance("contract")

	var loading []bool
	f.manager.Loading().Subscribe(func(v bool) { loading = append(loading, v) })
	require.NoError(t, f.manager.LoadModules(ctx, "bp-1"))

	assert.Equal(t, []bool{false, true, false}, loading)
	assert.Equal(t, blueprint.StatusDisposed, instance.Status())
	desc, _ := f.manager.LookupModule("contract")
	assert.Equal(t, blueprint.StatusUninitialized, desc.Status)
	assert.Equal(t, 0, f.manager.Selection().Get().Len())
}

func TestLoadModules_PersistenceFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.store.FailOn(memory.OpFind, memory.AnyID, errBoom)

	err := f.manager.LoadModules(context.Background(), "bp-1")
	assert.ErrorIs(t, err, blueprint.ErrPersistence)
	assert.False(t, f.manager.Loading().Get())
	assert.Contains(t, f.manager.LastError().Get(), "Failed to load modules")
}
