package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-inventory/pkg/enums"
)

// ErrEmptyPayload marks an envelope whose data is missing or null.
var ErrEmptyPayload = errors.New("outbox payload is empty")

// PayloadEnvelope is the stable payload structure stored in outbox_events.
// StoreID is the tenant that owns the aggregate, when there is one.
type PayloadEnvelope struct {
	Version     int                   `json:"version"`
	EventID     string                `json:"eventId"`
	EventType   enums.OutboxEventType `json:"eventType,omitempty"`
	AggregateID uuid.UUID             `json:"aggregateId"`
	StoreID     *uuid.UUID            `json:"storeId,omitempty"`
	OccurredAt  time.Time             `json:"occurredAt"`
	Data        json.RawMessage       `json:"data"`
}

// DecodeEnvelope parses a stored outbox payload.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var envelope PayloadEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return PayloadEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return envelope, nil
}

// DecodeData unmarshals the envelope data into dest.
func (e PayloadEnvelope) DecodeData(dest any) error {
	trimmed := bytes.TrimSpace(e.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ErrEmptyPayload
	}
	return json.Unmarshal(trimmed, dest)
}
