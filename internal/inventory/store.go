package inventory

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-inventory/pkg/pagination"
)

// Store persists inventory records. Every mutating method must be atomic
// per record: a check on current quantities and the write it guards either
// both happen or neither does. Implementations never lock across records.
type Store interface {
	// Get returns the record or a NOT_FOUND error.
	Get(ctx context.Context, sku SkuRef) (*Record, error)
	// Restock creates the record if absent, otherwise sets the total.
	// It fails with INVENTORY_CONFLICT if the total would drop below reserved.
	Restock(ctx context.Context, sku SkuRef, change RestockChange) (*Record, error)
	// Reserve fails with INSUFFICIENT_STOCK when fewer than qty units are available.
	Reserve(ctx context.Context, sku SkuRef, qty int) (*Record, error)
	// Release lowers reserved by qty, clamping at zero.
	Release(ctx context.Context, sku SkuRef, qty int) (*ReleaseResult, error)
	// Commit converts qty reserved units into a sale, lowering both quantities.
	Commit(ctx context.Context, sku SkuRef, qty int) (*Record, error)
	// SetThreshold updates the low stock threshold of a record owned by storeID.
	SetThreshold(ctx context.Context, sku SkuRef, storeID uuid.UUID, threshold int) (*Record, error)
	// ListLowStock pages through low stock records; uuid.Nil lists every store.
	ListLowStock(ctx context.Context, storeID uuid.UUID, params pagination.Params) (*LowStockPage, error)
	// Scan walks every record in batches, in creation order.
	Scan(ctx context.Context, batchSize int, fn func([]Record) error) error
}
