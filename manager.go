package blueprint

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ModuleManager owns the modules of the loaded Blueprint. It mirrors every
// descriptor change to a DescriptorRepository, writes an audit entry per
// mutation, and drives module instances through their lifecycle.
//
// The module list and the selection are copy-on-write cells mutated only by
// the manager.
type ModuleManager struct {
	repo    DescriptorRepository
	audit   AuditLogRepository
	factory *Factory
	base    Logger
	logger  Logger
	metrics MetricsRecorder
	actor   Actor
	policy  DependencyPolicy
	extra   map[string]any
	now     func() time.Time

	modules   *Cell[[]ModuleDescriptor]
	selection *Cell[Selection]
	lastError *Cell[string]
	loading   *Cell[bool]

	mu          sync.Mutex
	blueprintID string
	bus         *EventBus
	ec          *ExecutionContext
	instances   map[string]*managedInstance
}

type managedInstance struct {
	module  Module
	unwatch func()
}

// ManagerOption configures a ModuleManager.
type ManagerOption func(*ModuleManager)

// WithLogger sets the manager logger. Modules receive the same logger
// through their execution context.
func WithLogger(logger Logger) ManagerOption {
	return func(m *ModuleManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithActor sets the actor recorded in audit entries.
func WithActor(id, actorType string) ManagerOption {
	return func(m *ModuleManager) {
		m.actor = Actor{ID: id, Type: actorType}
	}
}

// WithDependencyPolicy sets the policy applied to module dependencies.
func WithDependencyPolicy(policy DependencyPolicy) ManagerOption {
	return func(m *ModuleManager) {
		if policy.Valid() {
			m.policy = policy
		}
	}
}

// WithMetrics records lifecycle, event bus and batch measurements.
func WithMetrics(recorder MetricsRecorder) ManagerOption {
	return func(m *ModuleManager) {
		if recorder != nil {
			m.metrics = recorder
		}
	}
}

// WithContextServices adds ambient services to every execution context the
// manager builds.
func WithContextServices(services map[string]any) ManagerOption {
	return func(m *ModuleManager) {
		for name, svc := range services {
			m.extra[name] = svc
		}
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *ModuleManager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewModuleManager creates a manager. audit may be nil, in which case no
// audit entries are written.
func NewModuleManager(repo DescriptorRepository, audit AuditLogRepository, factory *Factory, opts ...ManagerOption) *ModuleManager {
	m := &ModuleManager{
		repo:      repo,
		audit:     audit,
		factory:   factory,
		logger:    NopLogger{},
		metrics:   nopMetrics{},
		actor:     Actor{ID: "system", Type: ActorTypeSystem},
		policy:    RequireEnabled,
		extra:     make(map[string]any),
		now:       time.Now,
		modules:   NewCell[[]ModuleDescriptor](nil),
		selection: NewCell(NewSelection()),
		lastError: NewCell(""),
		loading:   NewCell(false),
		instances: make(map[string]*managedInstance),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.factory == nil {
		m.factory = NewFactory()
	}
	m.base = m.logger
	m.logger = WithSource(m.logger, "module-manager")
	return m
}

// BlueprintID returns the loaded Blueprint, or "" before LoadModules.
func (m *ModuleManager) BlueprintID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blueprintID
}

// Modules returns the observable module list.
func (m *ModuleManager) Modules() View[[]ModuleDescriptor] {
	return m.modules.ReadOnly()
}

// Selection returns the observable selection.
func (m *ModuleManager) Selection() View[Selection] {
	return m.selection.ReadOnly()
}

// LastError returns the most recent user-facing error message.
func (m *ModuleManager) LastError() View[string] {
	return m.lastError.ReadOnly()
}

// Loading reports whether LoadModules is in progress.
func (m *ModuleManager) Loading() View[bool] {
	return m.loading.ReadOnly()
}

// LookupModule implements ModuleDirectory over the in-memory module list.
func (m *ModuleManager) LookupModule(id string) (ModuleDescriptor, bool) {
	for _, d := range m.modules.Get() {
		if d.ID == id {
			return d.Clone(), true
		}
	}
	return ModuleDescriptor{}, false
}

// LoadModules replaces the in-memory module list with the persisted
// descriptors of a Blueprint. Statuses start at UNINITIALIZED and no
// lifecycle is driven. Instances of a previously loaded Blueprint are
// disposed.
func (m *ModuleManager) LoadModules(ctx context.Context, blueprintID string) error {
	if blueprintID == "" {
		return &ValidationError{Field: "blueprintId", Reason: "must not be empty", Err: ErrBlueprintIDMissing}
	}

	m.loading.Set(true)
	defer m.loading.Set(false)

	descriptors, err := m.repo.FindByBlueprintID(ctx, blueprintID)
	if err != nil {
		err = newPersistenceError("load", "", err)
		m.reportError("Failed to load modules", err, "blueprint", blueprintID)
		return err
	}

	hydrated := make([]ModuleDescriptor, 0, len(descriptors))
	for _, d := range descriptors {
		d = d.Clone()
		d.BlueprintID = blueprintID
		d.Status = StatusUninitialized
		hydrated = append(hydrated, d)
	}

	m.mu.Lock()
	previous := m.blueprintID
	stale := m.instances
	m.instances = make(map[string]*managedInstance)
	if previous != blueprintID {
		m.bus = nil
		m.ec = nil
	}
	m.blueprintID = blueprintID
	m.mu.Unlock()

	for _, inst := range stale {
		inst.unwatch()
		inst.module.Dispose()
	}

	m.modules.Set(hydrated)
	m.selection.Set(NewSelection())
	m.lastError.Set("")
	m.logger.Info("Loaded modules", "blueprint", blueprintID, "count", len(hydrated))
	return nil
}

// RegisterModule creates, persists and audits a new module descriptor.
func (m *ModuleManager) RegisterModule(ctx context.Context, data CreateModuleData) (ModuleDescriptor, error) {
	blueprintID, err := m.requireBlueprint()
	if err != nil {
		return ModuleDescriptor{}, err
	}
	if err := m.validateCreate(data); err != nil {
		m.reportError("Failed to register module", err, "name", data.Name)
		return ModuleDescriptor{}, err
	}

	id := data.ID
	if id == "" {
		id = uuid.NewString()
	}
	if _, exists := m.LookupModule(id); exists {
		err := fmt.Errorf("%w: %s", ErrModuleAlreadyRegistered, id)
		m.reportError("Failed to register module", err, "module", id)
		return ModuleDescriptor{}, err
	}

	now := m.now()
	desc := ModuleDescriptor{
		ID:            id,
		BlueprintID:   blueprintID,
		Name:          data.Name,
		Version:       data.Version,
		ModuleType:    data.ModuleType,
		Dependencies:  slices.Clone(data.Dependencies),
		DefaultConfig: data.DefaultConfig.Clone(),
		Enabled:       data.Enabled,
		Status:        StatusUninitialized,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	created, err := m.repo.Create(ctx, blueprintID, desc)
	if err != nil {
		err = newPersistenceError("create", id, err)
		m.auditFailure(ctx, AuditEventModuleRegistered, "register", id, err)
		m.reportError("Failed to register module", err, "module", id)
		return ModuleDescriptor{}, err
	}
	created.Status = StatusUninitialized

	m.modules.Update(func(list []ModuleDescriptor) []ModuleDescriptor {
		return append(slices.Clone(list), created.Clone())
	})

	entry := m.newEntry(AuditEventModuleRegistered, "register", id, fmt.Sprintf("Module %s registered", created.Name))
	entry.Metadata = map[string]any{
		"moduleType":   string(created.ModuleType),
		"version":      created.Version,
		"dependencies": slices.Clone(created.Dependencies),
		"enabled":      created.Enabled,
	}
	m.writeAudit(ctx, entry)
	m.logger.Info("Registered module", "module", id, "type", created.ModuleType, "blueprint", blueprintID)
	return created.Clone(), nil
}

// EnableModule sets the enabled flag. It never drives the lifecycle.
func (m *ModuleManager) EnableModule(ctx context.Context, id string) error {
	return m.setEnabled(ctx, id, true)
}

// DisableModule clears the enabled flag. A RUNNING instance keeps running;
// the flag only gates future activation.
func (m *ModuleManager) DisableModule(ctx context.Context, id string) error {
	return m.setEnabled(ctx, id, false)
}

func (m *ModuleManager) setEnabled(ctx context.Context, id string, enabled bool) error {
	eventType, action := AuditEventModuleEnabled, "enable"
	if !enabled {
		eventType, action = AuditEventModuleDisabled, "disable"
	}

	blueprintID, desc, err := m.requireModule(id)
	if err != nil {
		m.reportError("Failed to "+action+" module", err, "module", id)
		return err
	}

	patch := DescriptorPatch{Enabled: &enabled, UpdatedAt: m.now()}
	if err := m.repo.Update(ctx, blueprintID, id, patch); err != nil {
		err = newPersistenceError(action, id, err)
		m.auditFailure(ctx, eventType, action, id, err)
		m.reportError("Failed to "+action+" module", err, "module", id)
		return err
	}

	m.applyPatch(id, patch)
	m.writeAudit(ctx, m.newEntry(eventType, action, id, fmt.Sprintf("Module %s %sd", desc.Name, action)))
	m.logger.Info("Module enabled flag changed", "module", id, "enabled", enabled)
	return nil
}

// UpdateModuleConfig persists a new configuration bag. Live instances keep
// the config they were built with until their next activation.
func (m *ModuleManager) UpdateModuleConfig(ctx context.Context, id string, cfg ModuleConfig) error {
	blueprintID, desc, err := m.requireModule(id)
	if err != nil {
		m.reportError("Failed to update module config", err, "module", id)
		return err
	}
	if err := ValidateModuleConfig(cfg); err != nil {
		m.reportError("Failed to update module config", err, "module", id)
		return err
	}

	cfg = cfg.Clone()
	patch := DescriptorPatch{Config: &cfg, UpdatedAt: m.now()}
	if err := m.repo.Update(ctx, blueprintID, id, patch); err != nil {
		err = newPersistenceError("update config", id, err)
		m.auditFailure(ctx, AuditEventModuleConfigUpdated, "update_config", id, err)
		m.reportError("Failed to update module config", err, "module", id)
		return err
	}

	m.applyPatch(id, patch)
	m.writeAudit(ctx, m.newEntry(AuditEventModuleConfigUpdated, "update_config", id, fmt.Sprintf("Module %s configuration updated", desc.Name)))
	m.logger.Info("Updated module config", "module", id)
	return nil
}

// DeleteModule disposes any live instance and removes the descriptor from
// persistence, memory and the selection.
func (m *ModuleManager) DeleteModule(ctx context.Context, id string) error {
	blueprintID, desc, err := m.requireModule(id)
	if err != nil {
		m.reportError("Failed to delete module", err, "module", id)
		return err
	}

	if err := m.repo.Delete(ctx, blueprintID, id); err != nil {
		err = newPersistenceError("delete", id, err)
		m.auditFailure(ctx, AuditEventModuleDeleted, "delete", id, err)
		m.reportError("Failed to delete module", err, "module", id)
		return err
	}

	m.retire(id)
	m.modules.Update(func(list []ModuleDescriptor) []ModuleDescriptor {
		return slices.DeleteFunc(slices.Clone(list), func(d ModuleDescriptor) bool { return d.ID == id })
	})
	m.selection.Update(func(s Selection) Selection { return s.Without(id) })

	m.writeAudit(ctx, m.newEntry(AuditEventModuleDeleted, "delete", id, fmt.Sprintf("Module %s deleted", desc.Name)))
	m.logger.Info("Deleted module", "module", id)
	return nil
}

// ToggleSelection adds or removes id from the selection.
func (m *ModuleManager) ToggleSelection(id string) {
	m.selection.Update(func(s Selection) Selection { return s.Toggle(id) })
}

// SelectAll selects every loaded module.
func (m *ModuleManager) SelectAll() {
	list := m.modules.Get()
	ids := make([]string, 0, len(list))
	for _, d := range list {
		ids = append(ids, d.ID)
	}
	m.selection.Set(NewSelection(ids...))
}

// ClearSelection empties the selection.
func (m *ModuleManager) ClearSelection() {
	m.selection.Set(NewSelection())
}

func (m *ModuleManager) validateCreate(data CreateModuleData) error {
	if data.Name == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty", Err: ErrModuleNameEmpty}
	}
	if data.ModuleType == "" {
		return &ValidationError{Field: "moduleType", Reason: "must not be empty", Err: ErrModuleTypeEmpty}
	}
	if !m.factory.Has(data.ModuleType) {
		return &ValidationError{Field: "moduleType", Reason: string(data.ModuleType) + " is not a known module type", Err: ErrUnknownModuleType}
	}
	if data.ID != "" && slices.Contains(data.Dependencies, data.ID) {
		return &ValidationError{Field: "dependencies", Reason: "module cannot depend on itself", Err: ErrCircularDependency}
	}
	return ValidateModuleConfig(data.DefaultConfig)
}

func (m *ModuleManager) requireBlueprint() (string, error) {
	id := m.BlueprintID()
	if id == "" {
		return "", ErrNoBlueprintLoaded
	}
	return id, nil
}

func (m *ModuleManager) requireModule(id string) (string, ModuleDescriptor, error) {
	blueprintID, err := m.requireBlueprint()
	if err != nil {
		return "", ModuleDescriptor{}, err
	}
	desc, ok := m.LookupModule(id)
	if !ok {
		return "", ModuleDescriptor{}, fmt.Errorf("%w: %s", ErrModuleNotFound, id)
	}
	return blueprintID, desc, nil
}

func (m *ModuleManager) applyPatch(id string, patch DescriptorPatch) {
	m.modules.Update(func(list []ModuleDescriptor) []ModuleDescriptor {
		next := slices.Clone(list)
		for i, d := range next {
			if d.ID == id {
				next[i] = patch.Apply(d)
			}
		}
		return next
	})
}

func (m *ModuleManager) setStatus(id string, status ModuleStatus) {
	m.modules.Update(func(list []ModuleDescriptor) []ModuleDescriptor {
		next := slices.Clone(list)
		for i, d := range next {
			if d.ID == id {
				d.Status = status
				next[i] = d
			}
		}
		return next
	})
}

func (m *ModuleManager) newEntry(eventType, action, resourceID, message string) AuditEntry {
	return newAuditEntry(m.BlueprintID(), m.actor, eventType, action, resourceID, message, m.now())
}

func (m *ModuleManager) auditFailure(ctx context.Context, eventType, action, resourceID string, cause error) {
	entry := m.newEntry(eventType, action, resourceID, cause.Error())
	entry.Status = AuditFailure
	entry.Severity = SeverityError
	m.writeAudit(ctx, entry)
}

// writeAudit never fails the audited operation; audit errors are logged.
func (m *ModuleManager) writeAudit(ctx context.Context, entry AuditEntry) {
	if m.audit == nil {
		return
	}
	if err := m.audit.Create(ctx, entry); err != nil {
		m.logger.Warn("Failed to write audit entry", "eventType", entry.EventType, "resource", entry.ResourceID, "error", err)
	}
}

func (m *ModuleManager) reportError(message string, err error, args ...any) {
	m.lastError.Set(fmt.Sprintf("%s: %v", message, err))
	m.logger.Error(message, append(args, "error", err)...)
}
