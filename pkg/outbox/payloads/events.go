package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-inventory/pkg/enums"
)

// SkuRef is the wire form of a stock keeping unit.
type SkuRef struct {
	Kind enums.SkuKind `json:"kind"`
	ID   uuid.UUID     `json:"id"`
}

// InventoryRestockedEvent is emitted after a supplier sets a new on-hand total.
type InventoryRestockedEvent struct {
	RecordID          uuid.UUID `json:"record_id"`
	StoreID           uuid.UUID `json:"store_id"`
	Sku               SkuRef    `json:"sku"`
	PreviousTotal     int       `json:"previous_total"`
	TotalQuantity     int       `json:"total_quantity"`
	ReservedQuantity  int       `json:"reserved_quantity"`
	Location          *string   `json:"location,omitempty"`
	LastRestockedAt   time.Time `json:"last_restocked_at"`
	LowStockThreshold int       `json:"low_stock_threshold"`
}

// InventoryLowStockEvent is emitted when available stock drops to or below the threshold.
type InventoryLowStockEvent struct {
	RecordID          uuid.UUID `json:"record_id"`
	StoreID           uuid.UUID `json:"store_id"`
	Sku               SkuRef    `json:"sku"`
	Available         int       `json:"available"`
	LowStockThreshold int       `json:"low_stock_threshold"`
	Cause             string    `json:"cause"`
}

// Owned is implemented by payloads scoped to a single store.
type Owned interface {
	Owner() uuid.UUID
}

// Owner returns the store that owns the restocked record.
func (e *InventoryRestockedEvent) Owner() uuid.UUID { return e.StoreID }

// Owner returns the store that owns the low stock record.
func (e *InventoryLowStockEvent) Owner() uuid.UUID { return e.StoreID }
