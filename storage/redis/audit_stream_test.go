package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/blueprint"
)

func newTestStream(t *testing.T, opts ...Option) (*AuditStream, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewAuditStream(client, "blueprint:audit", opts...), client
}

func auditEntry(id, eventType string) blueprint.AuditEntry {
	return blueprint.AuditEntry{
		ID:           id,
		BlueprintID:  "bp-1",
		EventType:    eventType,
		Category:     blueprint.AuditCategoryModule,
		Severity:     blueprint.SeverityInfo,
		ActorID:      "user-1",
		ActorType:    blueprint.ActorTypeUser,
		ResourceType: blueprint.AuditResourceModule,
		ResourceID:   "safety",
		Action:       "enable",
		Message:      "Module Safety enabled",
		Status:       blueprint.AuditSuccess,
		Timestamp:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestAuditStream_CreateWritesCloudEvent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	stream, client := newTestStream(t)

	require.NoError(t, stream.Create(ctx, auditEntry("a-1", blueprint.AuditEventModuleEnabled)))

	messages, err := client.XRange(ctx, "blueprint:audit", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "bp-1", messages[0].Values["blueprint"])
	assert.Equal(t, blueprint.AuditEventModuleEnabled, messages[0].Values["event_type"])

	ce := cloudevents.NewEvent()
	require.NoError(t, json.Unmarshal([]byte(messages[0].Values["data"].(string)), &ce))
	assert.Equal(t, "a-1", ce.ID())
	assert.Equal(t, EventTypePrefix+blueprint.AuditEventModuleEnabled, ce.Type())
	assert.Equal(t, "blueprint/bp-1/audit", ce.Source())
	assert.Equal(t, "safety", ce.Subject())
}

func TestAuditStream_Recent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	stream, _ := newTestStream(t)

	for i := 1; i <= 3; i++ {
		require.NoError(t, stream.Create(ctx, auditEntry(fmt.Sprintf("a-%d", i), blueprint.AuditEventModuleRegistered)))
	}

	entries, err := stream.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a-2", entries[0].ID)
	assert.Equal(t, "a-3", entries[1].ID)
	assert.Equal(t, blueprint.AuditSuccess, entries[1].Status)
	assert.True(t, entries[1].Timestamp.Equal(auditEntry("", "").Timestamp))
}

func TestAuditStream_ConnectionFailure(t *testing.T) {
	t.Parallel()
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	t.Cleanup(func() { _ = client.Close() })
	stream := NewAuditStream(client, "blueprint:audit")

	err := stream.Create(context.Background(), auditEntry("a-1", blueprint.AuditEventModuleDeleted))
	assert.ErrorContains(t, err, "failed to add to stream")
}

func TestAuditStream_MaxLen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	stream, client := newTestStream(t, WithMaxLen(2))

	for i := 1; i <= 5; i++ {
		require.NoError(t, stream.Create(ctx, auditEntry(fmt.Sprintf("a-%d", i), blueprint.AuditEventModuleRegistered)))
	}
	n, err := client.XLen(ctx, "blueprint:audit").Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, n, int64(5))
	assert.GreaterOrEqual(t, n, int64(2))
}
