package blueprint

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// EventHandler handles an event delivered by the EventBus. Returned errors
// and panics are contained by the bus.
type EventHandler func(ctx context.Context, event Event) error

// Unsubscribe removes a subscription. Calling it more than once is a no-op.
type Unsubscribe func()

// WildcardType subscribes a handler to every event type.
const WildcardType = "*"

// EventBus is the in-process publish/subscribe channel of one Blueprint
// session. Emit delivers synchronously, in the emitter's goroutine, to the
// handlers subscribed when the call started, in subscription order.
type EventBus struct {
	blueprintID string
	logger      Logger
	metrics     MetricsRecorder
	now         func() time.Time

	mu     sync.RWMutex
	subs   []*subscription
	nextID uint64
}

type subscription struct {
	id      uint64
	pattern string
	handler EventHandler
}

// EventBusOption configures an EventBus.
type EventBusOption func(*EventBus)

// WithBusLogger sets the logger used to report contained handler failures.
func WithBusLogger(logger Logger) EventBusOption {
	return func(b *EventBus) {
		b.logger = WithSource(logger, "eventbus")
	}
}

// WithBusMetrics records emits and handler failures.
func WithBusMetrics(m MetricsRecorder) EventBusOption {
	return func(b *EventBus) {
		if m != nil {
			b.metrics = m
		}
	}
}

// NewEventBus creates the event bus for a Blueprint session.
func NewEventBus(blueprintID string, opts ...EventBusOption) *EventBus {
	b := &EventBus{
		blueprintID: blueprintID,
		logger:      NopLogger{},
		metrics:     nopMetrics{},
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BlueprintID returns the Blueprint this bus is scoped to.
func (b *EventBus) BlueprintID() string {
	return b.blueprintID
}

// On subscribes handler to eventType. eventType may be an exact type, "*",
// or a prefix pattern ending in "*" such as "contract.*".
func (b *EventBus) On(eventType string, handler EventHandler) Unsubscribe {
	if handler == nil {
		b.logger.Warn("Ignoring event subscription", "type", eventType, "error", ErrEventHandlerNil)
		return func() {}
	}

	b.mu.Lock()
	b.nextID++
	sub := &subscription{id: b.nextID, pattern: eventType, handler: handler}
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(sub.id) })
	}
}

// Subscribe registers a handler whose payload is asserted to T. A payload of
// another type counts as a handler failure and is contained like any other.
func Subscribe[T any](bus *EventBus, eventType string, handler func(ctx context.Context, event Event, payload T) error) Unsubscribe {
	return bus.On(eventType, func(ctx context.Context, event Event) error {
		payload, ok := event.Payload.(T)
		if !ok {
			var zero T
			return fmt.Errorf("%w: got %T, want %T", ErrPayloadMismatch, event.Payload, zero)
		}
		return handler(ctx, event, payload)
	})
}

// Emit delivers an event to every matching handler. Handler errors and panics
// never reach the caller and never prevent later handlers from running.
func (b *EventBus) Emit(ctx context.Context, eventType string, payload any, sourceModuleID string) error {
	if eventType == "" {
		return ErrEventTypeEmpty
	}

	event := Event{
		ID:             newEventID(),
		Type:           eventType,
		Payload:        payload,
		SourceModuleID: sourceModuleID,
		BlueprintID:    b.blueprintID,
		Timestamp:      b.now(),
	}

	b.mu.RLock()
	matching := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if matchesType(eventType, sub.pattern) {
			matching = append(matching, sub)
		}
	}
	b.mu.RUnlock()

	b.metrics.EventEmitted(eventType)
	for _, sub := range matching {
		b.invoke(ctx, sub, event)
	}
	return nil
}

func (b *EventBus) invoke(ctx context.Context, sub *subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.metrics.HandlerFailed(event.Type)
			b.logger.Error("Event handler panicked", "type", event.Type, "subscription", sub.id, "source", event.SourceModuleID, "panic", r)
		}
	}()

	if err := sub.handler(ctx, event); err != nil {
		b.metrics.HandlerFailed(event.Type)
		b.logger.Error("Event handler failed", "type", event.Type, "subscription", sub.id, "source", event.SourceModuleID, "error", err)
	}
}

func (b *EventBus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// SubscriberCount returns the number of handlers that would receive an event
// of the given type.
func (b *EventBus) SubscriberCount(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, sub := range b.subs {
		if matchesType(eventType, sub.pattern) {
			n++
		}
	}
	return n
}

// Topics returns the distinct subscription patterns, sorted.
func (b *EventBus) Topics() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	seen := make(map[string]struct{}, len(b.subs))
	for _, sub := range b.subs {
		seen[sub.pattern] = struct{}{}
	}
	topics := make([]string, 0, len(seen))
	for t := range seen {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// matchesType checks an event type against a subscription pattern.
// Supports "*" and prefix patterns like "contract.*".
func matchesType(eventType, pattern string) bool {
	if pattern == WildcardType || eventType == pattern {
		return true
	}
	if len(pattern) > 1 && pattern[len(pattern)-1] == '*' {
		prefix := pattern[:len(pattern)-1]
		return len(eventType) >= len(prefix) && eventType[:len(prefix)] == prefix
	}
	return false
}
