package registry

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-inventory/pkg/config"
	"github.com/angelmondragon/marketplace-inventory/pkg/db/models"
	"github.com/angelmondragon/marketplace-inventory/pkg/enums"
	"github.com/angelmondragon/marketplace-inventory/pkg/outbox"
	"github.com/angelmondragon/marketplace-inventory/pkg/outbox/payloads"
)

// EventDescriptor binds an event type to the aggregate it belongs to, the
// topic it is published on and the schema of its data.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	decode        func(outbox.PayloadEnvelope) (any, error)
}

// describe builds a descriptor whose data decodes into a fresh *T.
func describe[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, topic string) EventDescriptor {
	return EventDescriptor{
		EventType:     eventType,
		AggregateType: aggregate,
		Topic:         topic,
		decode: func(envelope outbox.PayloadEnvelope) (any, error) {
			payload := new(T)
			if err := envelope.DecodeData(payload); err != nil {
				return nil, err
			}
			return payload, nil
		},
	}
}

// ResolvedEvent is a row whose envelope and typed payload decoded cleanly.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// StoreID reports the owning store. Envelopes written before the store id
// was recorded fall back to the payload.
func (r *ResolvedEvent) StoreID() (uuid.UUID, bool) {
	if r.Envelope.StoreID != nil {
		return *r.Envelope.StoreID, true
	}
	if owned, ok := r.Payload.(payloads.Owned); ok {
		return owned.Owner(), true
	}
	return uuid.Nil, false
}

// NonRetryableError marks a row that will fail the same way on every
// attempt. The publisher dead-letters it instead of retrying.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func nonRetryablef(format string, args ...any) error {
	return NewNonRetryableError(fmt.Errorf(format, args...))
}

// EventRegistry resolves outbox rows against the supported event types.
type EventRegistry struct {
	byType map[enums.OutboxEventType]EventDescriptor
}

func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.InventoryTopic == "" {
		return nil, fmt.Errorf("inventory topic is required")
	}
	return newEventRegistry(
		describe[payloads.InventoryRestockedEvent](enums.EventInventoryRestocked, enums.AggregateInventoryRecord, cfg.InventoryTopic),
		describe[payloads.InventoryLowStockEvent](enums.EventInventoryLowStock, enums.AggregateInventoryRecord, cfg.InventoryTopic),
	)
}

func newEventRegistry(descs ...EventDescriptor) (*EventRegistry, error) {
	reg := &EventRegistry{byType: make(map[enums.OutboxEventType]EventDescriptor, len(descs))}
	for _, desc := range descs {
		if _, dup := reg.byType[desc.EventType]; dup {
			return nil, fmt.Errorf("event type %s registered twice", desc.EventType)
		}
		reg.byType[desc.EventType] = desc
	}
	return reg, nil
}

// Topics lists every topic the registry publishes to, sorted and deduplicated.
func (r *EventRegistry) Topics() []string {
	seen := make(map[string]struct{}, len(r.byType))
	topics := make([]string, 0, len(r.byType))
	for _, desc := range r.byType {
		if _, ok := seen[desc.Topic]; ok {
			continue
		}
		seen[desc.Topic] = struct{}{}
		topics = append(topics, desc.Topic)
	}
	sort.Strings(topics)
	return topics
}

// Resolve checks the row against its descriptor and decodes the payload.
// Every failure is non-retryable: the row content will not change.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.byType[event.EventType]
	switch {
	case !ok:
		return nil, nonRetryablef("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return nil, nonRetryablef("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, nonRetryablef("missing aggregate_id")
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, NewNonRetryableError(err)
	}
	payload, err := desc.decode(envelope)
	if errors.Is(err, outbox.ErrEmptyPayload) {
		return nil, nonRetryablef("payload missing for %s", event.EventType)
	}
	if err != nil {
		return nil, nonRetryablef("decode %s payload: %w", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
