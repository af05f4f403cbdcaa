package models

import (
	"time"

	"github.com/google/uuid"
)

// InventoryRecord is the durable stock row for one SKU. Exactly one of
// ProductID or VariantID is set; the database enforces it with a CHECK.
type InventoryRecord struct {
	ID                uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StoreID           uuid.UUID  `gorm:"column:store_id;type:uuid;not null"`
	ProductID         *uuid.UUID `gorm:"column:product_id;type:uuid"`
	VariantID         *uuid.UUID `gorm:"column:variant_id;type:uuid"`
	TotalQuantity     int        `gorm:"column:total_quantity;not null;default:0"`
	ReservedQuantity  int        `gorm:"column:reserved_quantity;not null;default:0"`
	LowStockThreshold int        `gorm:"column:low_stock_threshold;not null;default:0"`
	Location          *string    `gorm:"column:location"`
	LastRestockedAt   *time.Time `gorm:"column:last_restocked_at"`
	Version           int64      `gorm:"column:version;not null;default:1"`
	CreatedAt         time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (InventoryRecord) TableName() string {
	return "inventory_records"
}
