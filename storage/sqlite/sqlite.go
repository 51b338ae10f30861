// Package sqlite persists module descriptors and audit entries in SQL
// through sqlx. Open uses the pure-Go modernc.org/sqlite driver; New accepts
// any *sqlx.DB using '?' placeholders.
package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/GoCodeAlone/blueprint"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS modules (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		blueprint_id TEXT NOT NULL,
		name TEXT NOT NULL,
		version TEXT NOT NULL DEFAULT '',
		module_type TEXT NOT NULL,
		dependencies TEXT NOT NULL DEFAULT '[]',
		config TEXT NOT NULL DEFAULT '{}',
		enabled INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'UNINITIALIZED',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE (blueprint_id, id)
	)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		blueprint_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		category TEXT NOT NULL,
		severity TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		actor_type TEXT NOT NULL,
		resource_type TEXT NOT NULL,
		resource_id TEXT NOT NULL,
		action TEXT NOT NULL,
		message TEXT NOT NULL,
		status TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		timestamp TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS audit_log_blueprint ON audit_log (blueprint_id)`,
}

// Store implements blueprint.DescriptorRepository. Its AuditLog shares the
// same database.
type Store struct {
	db    *sqlx.DB
	audit *AuditLog
}

var (
	_ blueprint.DescriptorRepository = (*Store)(nil)
	_ blueprint.AuditLogRepository   = (*AuditLog)(nil)
)

// Open connects to a sqlite database and creates the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// sqlite allows a single writer.
	db.SetMaxOpenConns(1)

	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database. Call Migrate before first use.
func New(db *sqlx.DB) *Store {
	return &Store{db: db, audit: &AuditLog{db: db}}
}

// AuditLog returns the audit repository backed by the store's database.
func (s *Store) AuditLog() *AuditLog {
	return s.audit
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type moduleRow struct {
	ID           string `db:"id"`
	BlueprintID  string `db:"blueprint_id"`
	Name         string `db:"name"`
	Version      string `db:"version"`
	ModuleType   string `db:"module_type"`
	Dependencies string `db:"dependencies"`
	Config       string `db:"config"`
	Enabled      bool   `db:"enabled"`
	Status       string `db:"status"`
	CreatedAt    string `db:"created_at"`
	UpdatedAt    string `db:"updated_at"`
}

func toRow(d blueprint.ModuleDescriptor) (moduleRow, error) {
	deps := d.Dependencies
	if deps == nil {
		deps = []string{}
	}
	depsJSON, err := json.Marshal(deps)
	if err != nil {
		return moduleRow{}, fmt.Errorf("failed to encode dependencies: %w", err)
	}
	cfgJSON, err := json.Marshal(d.DefaultConfig)
	if err != nil {
		return moduleRow{}, fmt.Errorf("failed to encode config: %w", err)
	}
	status := d.Status
	if status == "" {
		status = blueprint.StatusUninitialized
	}
	return moduleRow{
		ID:           d.ID,
		BlueprintID:  d.BlueprintID,
		Name:         d.Name,
		Version:      d.Version,
		ModuleType:   string(d.ModuleType),
		Dependencies: string(depsJSON),
		Config:       string(cfgJSON),
		Enabled:      d.Enabled,
		Status:       string(status),
		CreatedAt:    formatTime(d.CreatedAt),
		UpdatedAt:    formatTime(d.UpdatedAt),
	}, nil
}

func (r moduleRow) descriptor() (blueprint.ModuleDescriptor, error) {
	d := blueprint.ModuleDescriptor{
		ID:          r.ID,
		BlueprintID: r.BlueprintID,
		Name:        r.Name,
		Version:     r.Version,
		ModuleType:  blueprint.ModuleType(r.ModuleType),
		Enabled:     r.Enabled,
		Status:      blueprint.ModuleStatus(r.Status),
	}
	if err := json.Unmarshal([]byte(r.Dependencies), &d.Dependencies); err != nil {
		return d, fmt.Errorf("module %s: failed to decode dependencies: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.Config), &d.DefaultConfig); err != nil {
		return d, fmt.Errorf("module %s: failed to decode config: %w", r.ID, err)
	}
	var err error
	if d.CreatedAt, err = parseTime(r.CreatedAt); err != nil {
		return d, fmt.Errorf("module %s: %w", r.ID, err)
	}
	if d.UpdatedAt, err = parseTime(r.UpdatedAt); err != nil {
		return d, fmt.Errorf("module %s: %w", r.ID, err)
	}
	return d, nil
}

// FindByBlueprintID implements blueprint.DescriptorRepository.
func (s *Store) FindByBlueprintID(ctx context.Context, blueprintID string) ([]blueprint.ModuleDescriptor, error) {
	var rows []moduleRow
	err := s.db.SelectContext(ctx, &rows, `SELECT id, blueprint_id, name, version, module_type, dependencies, config,
		enabled, status, created_at, updated_at FROM modules WHERE blueprint_id = ? ORDER BY seq`, blueprintID)
	if err != nil {
		return nil, fmt.Errorf("failed to query modules: %w", err)
	}

	out := make([]blueprint.ModuleDescriptor, 0, len(rows))
	for _, r := range rows {
		d, err := r.descriptor()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// Create implements blueprint.DescriptorRepository. The returned descriptor
// is decoded from the stored row, so it equals what FindByBlueprintID yields.
func (s *Store) Create(ctx context.Context, blueprintID string, data blueprint.ModuleDescriptor) (blueprint.ModuleDescriptor, error) {
	data = data.Clone()
	data.BlueprintID = blueprintID
	row, err := toRow(data)
	if err != nil {
		return blueprint.ModuleDescriptor{}, err
	}

	_, err = s.db.NamedExecContext(ctx, `INSERT INTO modules (id, blueprint_id, name, version, module_type,
		dependencies, config, enabled, status, created_at, updated_at)
		VALUES (:id, :blueprint_id, :name, :version, :module_type, :dependencies, :config, :enabled, :status,
		:created_at, :updated_at)`, row)
	if err != nil {
		if isUniqueViolation(err) {
			return blueprint.ModuleDescriptor{}, fmt.Errorf("%w: %s", blueprint.ErrModuleAlreadyRegistered, data.ID)
		}
		return blueprint.ModuleDescriptor{}, fmt.Errorf("failed to insert module: %w", err)
	}
	return row.descriptor()
}

// Update implements blueprint.DescriptorRepository.
func (s *Store) Update(ctx context.Context, blueprintID, id string, patch blueprint.DescriptorPatch) error {
	var (
		sets []string
		args []any
	)
	if patch.Name != nil {
		sets, args = append(sets, "name = ?"), append(args, *patch.Name)
	}
	if patch.Version != nil {
		sets, args = append(sets, "version = ?"), append(args, *patch.Version)
	}
	if patch.Enabled != nil {
		sets, args = append(sets, "enabled = ?"), append(args, *patch.Enabled)
	}
	if patch.Config != nil {
		raw, err := json.Marshal(patch.Config)
		if err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		sets, args = append(sets, "config = ?"), append(args, string(raw))
	}
	if patch.Dependencies != nil {
		raw, err := json.Marshal(patch.Dependencies)
		if err != nil {
			return fmt.Errorf("failed to encode dependencies: %w", err)
		}
		sets, args = append(sets, "dependencies = ?"), append(args, string(raw))
	}
	updatedAt := patch.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	sets, args = append(sets, "updated_at = ?"), append(args, formatTime(updatedAt))
	args = append(args, blueprintID, id)

	query := "UPDATE modules SET " + strings.Join(sets, ", ") + " WHERE blueprint_id = ? AND id = ?"
	return s.execOne(ctx, id, query, args...)
}

// UpdateStatus implements blueprint.DescriptorRepository.
func (s *Store) UpdateStatus(ctx context.Context, blueprintID, id string, status blueprint.ModuleStatus) error {
	return s.execOne(ctx, id, `UPDATE modules SET status = ? WHERE blueprint_id = ? AND id = ?`,
		string(status), blueprintID, id)
}

// Delete implements blueprint.DescriptorRepository.
func (s *Store) Delete(ctx context.Context, blueprintID, id string) error {
	return s.execOne(ctx, id, `DELETE FROM modules WHERE blueprint_id = ? AND id = ?`, blueprintID, id)
}

// BatchUpdateEnabled implements blueprint.DescriptorRepository. Every id is
// its own statement outside any transaction, so one failure never undoes
// another id's update.
func (s *Store) BatchUpdateEnabled(ctx context.Context, blueprintID string, ids []string, enabled bool) (blueprint.BatchResult, error) {
	result := blueprint.BatchResult{Success: []string{}, Failed: []string{}}
	now := formatTime(time.Now())
	for _, id := range ids {
		err := s.execOne(ctx, id, `UPDATE modules SET enabled = ?, updated_at = ? WHERE blueprint_id = ? AND id = ?`,
			enabled, now, blueprintID, id)
		if err != nil {
			result.Failed = append(result.Failed, id)
			continue
		}
		result.Success = append(result.Success, id)
	}
	return result, nil
}

func (s *Store) execOne(ctx context.Context, id, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("module %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("module %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: module %s", blueprint.ErrNotFound, id)
	}
	return nil
}

type auditRow struct {
	ID           string `db:"id"`
	BlueprintID  string `db:"blueprint_id"`
	EventType    string `db:"event_type"`
	Category     string `db:"category"`
	Severity     string `db:"severity"`
	ActorID      string `db:"actor_id"`
	ActorType    string `db:"actor_type"`
	ResourceType string `db:"resource_type"`
	ResourceID   string `db:"resource_id"`
	Action       string `db:"action"`
	Message      string `db:"message"`
	Status       string `db:"status"`
	Metadata     string `db:"metadata"`
	Timestamp    string `db:"timestamp"`
}

// AuditLog implements blueprint.AuditLogRepository.
type AuditLog struct {
	db *sqlx.DB
}

// Create implements blueprint.AuditLogRepository.
func (a *AuditLog) Create(ctx context.Context, entry blueprint.AuditEntry) error {
	metadata := entry.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to encode audit metadata: %w", err)
	}

	_, err = a.db.NamedExecContext(ctx, `INSERT INTO audit_log (id, blueprint_id, event_type, category, severity,
		actor_id, actor_type, resource_type, resource_id, action, message, status, metadata, timestamp)
		VALUES (:id, :blueprint_id, :event_type, :category, :severity, :actor_id, :actor_type, :resource_type,
		:resource_id, :action, :message, :status, :metadata, :timestamp)`, auditRow{
		ID:           entry.ID,
		BlueprintID:  entry.BlueprintID,
		EventType:    entry.EventType,
		Category:     entry.Category,
		Severity:     string(entry.Severity),
		ActorID:      entry.ActorID,
		ActorType:    entry.ActorType,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		Action:       entry.Action,
		Message:      entry.Message,
		Status:       string(entry.Status),
		Metadata:     string(raw),
		Timestamp:    formatTime(entry.Timestamp),
	})
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// Entries returns the audit entries of a Blueprint, oldest first.
func (a *AuditLog) Entries(ctx context.Context, blueprintID string) ([]blueprint.AuditEntry, error) {
	var rows []auditRow
	err := a.db.SelectContext(ctx, &rows, `SELECT id, blueprint_id, event_type, category, severity, actor_id,
		actor_type, resource_type, resource_id, action, message, status, metadata, timestamp
		FROM audit_log WHERE blueprint_id = ? ORDER BY rowid`, blueprintID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}

	out := make([]blueprint.AuditEntry, 0, len(rows))
	for _, r := range rows {
		e := blueprint.AuditEntry{
			ID:           r.ID,
			BlueprintID:  r.BlueprintID,
			EventType:    r.EventType,
			Category:     r.Category,
			Severity:     blueprint.AuditSeverity(r.Severity),
			ActorID:      r.ActorID,
			ActorType:    r.ActorType,
			ResourceType: r.ResourceType,
			ResourceID:   r.ResourceID,
			Action:       r.Action,
			Message:      r.Message,
			Status:       blueprint.AuditStatus(r.Status),
		}
		if err := json.Unmarshal([]byte(r.Metadata), &e.Metadata); err != nil {
			return nil, fmt.Errorf("audit entry %s: failed to decode metadata: %w", r.ID, err)
		}
		if e.Timestamp, err = parseTime(r.Timestamp); err != nil {
			return nil, fmt.Errorf("audit entry %s: %w", r.ID, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
