// Package redis publishes audit entries to a Redis stream as CloudEvents.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/redis/go-redis/v9"

	"github.com/GoCodeAlone/blueprint"
)

// EventTypePrefix prefixes the CloudEvent type of every audit entry.
const EventTypePrefix = "blueprint.audit."

// AuditStream implements blueprint.AuditLogRepository on a Redis stream.
type AuditStream struct {
	client *redis.Client
	stream string
	maxLen int64
}

var _ blueprint.AuditLogRepository = (*AuditStream)(nil)

// Option configures an AuditStream.
type Option func(*AuditStream)

// WithMaxLen caps the stream length approximately. Zero keeps every entry.
func WithMaxLen(n int64) Option {
	return func(s *AuditStream) { s.maxLen = n }
}

// NewAuditStream writes to the given stream key.
func NewAuditStream(client *redis.Client, stream string, opts ...Option) *AuditStream {
	s := &AuditStream{client: client, stream: stream}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create implements blueprint.AuditLogRepository.
func (s *AuditStream) Create(ctx context.Context, entry blueprint.AuditEntry) error {
	ce := cloudevents.NewEvent()
	ce.SetSpecVersion(cloudevents.VersionV1)
	ce.SetID(entry.ID)
	ce.SetType(EventTypePrefix + entry.EventType)
	ce.SetSource(fmt.Sprintf("blueprint/%s/audit", entry.BlueprintID))
	ce.SetSubject(entry.ResourceID)
	ce.SetTime(entry.Timestamp)
	if err := ce.SetData(cloudevents.ApplicationJSON, entry); err != nil {
		return fmt.Errorf("failed to encode audit entry: %w", err)
	}
	if err := ce.Validate(); err != nil {
		return fmt.Errorf("CloudEvent validation failed: %w", err)
	}

	data, err := json.Marshal(ce)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"blueprint":  entry.BlueprintID,
			"event_type": entry.EventType,
			"status":     string(entry.Status),
			"data":       string(data),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if _, err := s.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to add to stream: %w", err)
	}
	return nil
}

// Recent returns up to count of the newest entries, oldest first.
func (s *AuditStream) Recent(ctx context.Context, count int64) ([]blueprint.AuditEntry, error) {
	messages, err := s.client.XRevRangeN(ctx, s.stream, "+", "-", count).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read stream: %w", err)
	}

	entries := make([]blueprint.AuditEntry, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		entry, err := decode(messages[i])
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func decode(message redis.XMessage) (blueprint.AuditEntry, error) {
	raw, ok := message.Values["data"].(string)
	if !ok {
		return blueprint.AuditEntry{}, fmt.Errorf("invalid message format: %s", message.ID)
	}

	ce := cloudevents.NewEvent()
	if err := json.Unmarshal([]byte(raw), &ce); err != nil {
		return blueprint.AuditEntry{}, fmt.Errorf("failed to unmarshal audit event %s: %w", message.ID, err)
	}
	var entry blueprint.AuditEntry
	if err := ce.DataAs(&entry); err != nil {
		return blueprint.AuditEntry{}, fmt.Errorf("failed to decode audit entry %s: %w", message.ID, err)
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = ce.Time().In(time.UTC)
	}
	return entry, nil
}
