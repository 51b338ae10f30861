package blueprint

import (
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// Event types emitted by the framework itself.
const (
	EventModuleStarted = "MODULE_STARTED"
	EventModuleStopped = "MODULE_STOPPED"
	EventModuleError   = "MODULE_ERROR"
)

// Event is a message delivered on a Blueprint's EventBus.
type Event struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	Payload        any       `json:"payload,omitempty"`
	SourceModuleID string    `json:"sourceModuleId"`
	BlueprintID    string    `json:"blueprintId"`
	Timestamp      time.Time `json:"timestamp"`
}

// ModuleEventPayload is carried by MODULE_* framework events.
type ModuleEventPayload struct {
	ModuleID   string       `json:"moduleId"`
	Name       string       `json:"name"`
	Version    string       `json:"version"`
	ModuleType ModuleType   `json:"moduleType"`
	Status     ModuleStatus `json:"status"`
	Error      string       `json:"error,omitempty"`
}

// CloudEvent converts the event into a CloudEvents v1 envelope.
func (e Event) CloudEvent() (cloudevents.Event, error) {
	ce := cloudevents.NewEvent()
	ce.SetSpecVersion(cloudevents.VersionV1)
	ce.SetID(e.ID)
	ce.SetType(e.Type)
	ce.SetSource(fmt.Sprintf("blueprint/%s/%s", e.BlueprintID, e.SourceModuleID))
	ce.SetTime(e.Timestamp)
	if e.Payload != nil {
		if err := ce.SetData(cloudevents.ApplicationJSON, e.Payload); err != nil {
			return ce, fmt.Errorf("failed to encode event payload: %w", err)
		}
	}
	if err := ce.Validate(); err != nil {
		return ce, fmt.Errorf("CloudEvent validation failed: %w", err)
	}
	return ce, nil
}

// newEventID generates a time-ordered UUIDv7, falling back to v4.
func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}
