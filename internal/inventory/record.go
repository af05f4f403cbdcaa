package inventory

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/marketplace-inventory/pkg/errors"
)

// Record is the stock state of one SKU.
type Record struct {
	ID                uuid.UUID  `json:"id"`
	StoreID           uuid.UUID  `json:"store_id"`
	Sku               SkuRef     `json:"sku"`
	TotalQuantity     int        `json:"total_quantity"`
	ReservedQuantity  int        `json:"reserved_quantity"`
	LowStockThreshold int        `json:"low_stock_threshold"`
	Location          *string    `json:"location,omitempty"`
	LastRestockedAt   *time.Time `json:"last_restocked_at,omitempty"`
	Version           int64      `json:"version"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Available is the quantity that can still be reserved.
func (r Record) Available() int {
	return r.TotalQuantity - r.ReservedQuantity
}

// IsLowStock reports whether available stock is at or below the threshold.
func (r Record) IsLowStock() bool {
	return r.Available() <= r.LowStockThreshold
}

// CheckInvariants returns an internal error when the quantities are inconsistent.
func (r Record) CheckInvariants() error {
	if r.ReservedQuantity < 0 || r.TotalQuantity < 0 || r.LowStockThreshold < 0 || r.ReservedQuantity > r.TotalQuantity {
		return pkgerrors.New(pkgerrors.CodeInternal, "inventory invariant violated").WithDetails(map[string]any{
			"record_id":           r.ID.String(),
			"sku":                 r.Sku.String(),
			"total_quantity":      r.TotalQuantity,
			"reserved_quantity":   r.ReservedQuantity,
			"low_stock_threshold": r.LowStockThreshold,
		})
	}
	return nil
}

func (r Record) String() string {
	return fmt.Sprintf("%s total=%d reserved=%d threshold=%d", r.Sku, r.TotalQuantity, r.ReservedQuantity, r.LowStockThreshold)
}

// ReleaseResult describes the outcome of a release.
type ReleaseResult struct {
	Record   *Record `json:"record"`
	Released int     `json:"released"`
	// Clamped is set when more was released than was reserved.
	Clamped bool `json:"clamped"`
}

// RestockChange is the store-level input of a restock.
type RestockChange struct {
	StoreID                  uuid.UUID
	TotalQuantity            int
	Location                 *string
	LowStockThreshold        *int
	DefaultLowStockThreshold int
	Now                      time.Time
}

// LowStockPage is one page of low stock records.
type LowStockPage struct {
	Items      []Record `json:"items"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

// nextRestockTime keeps last_restocked_at strictly increasing at microsecond
// precision even when the clock stalls or steps backwards.
func nextRestockTime(previous *time.Time, now time.Time) time.Time {
	next := now.UTC().Truncate(time.Microsecond)
	if previous == nil {
		return next
	}
	floor := previous.UTC().Truncate(time.Microsecond).Add(time.Microsecond)
	if next.Before(floor) {
		return floor
	}
	return next
}
