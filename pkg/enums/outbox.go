package enums

// OutboxAggregateType mirrors outbox_aggregate_type_enum.
type OutboxAggregateType string

const AggregateInventoryRecord OutboxAggregateType = "inventory_record"

var aggregateTypes = newLabelSet("aggregate type", AggregateInventoryRecord)

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.has(a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return aggregateTypes.parse(value)
}

// OutboxEventType mirrors outbox_event_type_enum.
type OutboxEventType string

const (
	EventInventoryRestocked OutboxEventType = "inventory_restocked"
	EventInventoryLowStock  OutboxEventType = "inventory_low_stock"
)

var eventTypes = newLabelSet("event type", EventInventoryRestocked, EventInventoryLowStock)

func (e OutboxEventType) IsValid() bool { return eventTypes.has(e) }

// Aggregate is the aggregate every event of this type is keyed by.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	switch e {
	case EventInventoryRestocked, EventInventoryLowStock:
		return AggregateInventoryRecord
	}
	return ""
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return eventTypes.parse(value)
}
