package blueprint

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// AuditStatus is the outcome recorded for an audited action.
type AuditStatus string

const (
	AuditSuccess AuditStatus = "SUCCESS"
	AuditPartial AuditStatus = "PARTIAL"
	AuditFailure AuditStatus = "FAILURE"
)

// AuditSeverity grades an audit entry.
type AuditSeverity string

const (
	SeverityInfo    AuditSeverity = "INFO"
	SeverityWarning AuditSeverity = "WARNING"
	SeverityError   AuditSeverity = "ERROR"
)

// Audit vocabulary used by the module manager.
const (
	AuditCategoryModule = "MODULE"
	AuditResourceModule = "MODULE"
	ActorTypeUser       = "USER"
	ActorTypeSystem     = "SYSTEM"

	AuditEventModuleRegistered    = "MODULE_REGISTERED"
	AuditEventModuleEnabled       = "MODULE_ENABLED"
	AuditEventModuleDisabled      = "MODULE_DISABLED"
	AuditEventModuleConfigUpdated = "MODULE_CONFIG_UPDATED"
	AuditEventModuleDeleted       = "MODULE_DELETED"
	AuditEventModulesBatchUpdated = "MODULES_BATCH_UPDATED"
)

// AuditEntry is one record of the audit log.
type AuditEntry struct {
	ID           string         `json:"id" db:"id"`
	BlueprintID  string         `json:"blueprintId" db:"blueprint_id"`
	EventType    string         `json:"eventType" db:"event_type"`
	Category     string         `json:"category" db:"category"`
	Severity     AuditSeverity  `json:"severity" db:"severity"`
	ActorID      string         `json:"actorId" db:"actor_id"`
	ActorType    string         `json:"actorType" db:"actor_type"`
	ResourceType string         `json:"resourceType" db:"resource_type"`
	ResourceID   string         `json:"resourceId" db:"resource_id"`
	Action       string         `json:"action" db:"action"`
	Message      string         `json:"message" db:"message"`
	Status       AuditStatus    `json:"status" db:"status"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Timestamp    time.Time      `json:"timestamp" db:"timestamp"`
}

// Actor identifies who performs manager operations.
type Actor struct {
	ID   string
	Type string
}

func newAuditEntry(blueprintID string, actor Actor, eventType, action, resourceID, message string, at time.Time) AuditEntry {
	return AuditEntry{
		ID:           uuid.NewString(),
		BlueprintID:  blueprintID,
		EventType:    eventType,
		Category:     AuditCategoryModule,
		Severity:     SeverityInfo,
		ActorID:      actor.ID,
		ActorType:    actor.Type,
		ResourceType: AuditResourceModule,
		ResourceID:   resourceID,
		Action:       action,
		Message:      message,
		Status:       AuditSuccess,
		Timestamp:    at,
	}
}

// FanoutAuditLog writes every entry to each repository in order. All of
// them are attempted; their errors are joined.
type FanoutAuditLog []AuditLogRepository

// Create implements AuditLogRepository.
func (f FanoutAuditLog) Create(ctx context.Context, entry AuditEntry) error {
	var errs []error
	for _, repo := range f {
		if err := repo.Create(ctx, entry); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
