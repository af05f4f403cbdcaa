package inventory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/marketplace-inventory/pkg/errors"
	"github.com/angelmondragon/marketplace-inventory/pkg/pagination"
)

// runStoreSuite exercises the behaviour every Store implementation must share.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("checkout walkthrough", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		sku := ProductSku(uuid.New())
		storeID := uuid.New()

		_, err := store.Get(ctx, sku)
		require.True(t, IsNotFound(err), "expected not found before first restock, got %v", err)

		rec, err := store.Restock(ctx, sku, change(storeID, 10))
		require.NoError(t, err)
		assert.Equal(t, 10, rec.Available())
		assert.Equal(t, 0, rec.ReservedQuantity)

		rec, err = store.Reserve(ctx, sku, 7)
		require.NoError(t, err)
		assert.Equal(t, 3, rec.Available())

		_, err = store.Reserve(ctx, sku, 5)
		require.True(t, IsInsufficientStock(err), "expected insufficient stock, got %v", err)
		rec, err = store.Get(ctx, sku)
		require.NoError(t, err)
		assert.Equal(t, 3, rec.Available())

		res, err := store.Release(ctx, sku, 7)
		require.NoError(t, err)
		assert.False(t, res.Clamped)
		assert.Equal(t, 7, res.Released)
		assert.Equal(t, 10, res.Record.Available())
	})

	t.Run("reserve on unknown sku is insufficient stock", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Reserve(context.Background(), VariantSku(uuid.New()), 1)
		require.True(t, IsInsufficientStock(err), "got %v", err)
	})

	t.Run("release on unknown sku is not found", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Release(context.Background(), VariantSku(uuid.New()), 1)
		require.True(t, IsNotFound(err), "got %v", err)
	})

	t.Run("double release clamps to zero", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		sku := VariantSku(uuid.New())
		_, err := store.Restock(ctx, sku, change(uuid.New(), 5))
		require.NoError(t, err)
		_, err = store.Reserve(ctx, sku, 2)
		require.NoError(t, err)

		first, err := store.Release(ctx, sku, 2)
		require.NoError(t, err)
		assert.Equal(t, 0, first.Record.ReservedQuantity)
		assert.False(t, first.Clamped)

		second, err := store.Release(ctx, sku, 2)
		require.NoError(t, err)
		assert.Equal(t, 0, second.Record.ReservedQuantity)
		assert.Equal(t, 0, second.Released)
		assert.True(t, second.Clamped)
	})

	t.Run("partial over-release releases what is held", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		sku := ProductSku(uuid.New())
		_, err := store.Restock(ctx, sku, change(uuid.New(), 5))
		require.NoError(t, err)
		_, err = store.Reserve(ctx, sku, 3)
		require.NoError(t, err)

		res, err := store.Release(ctx, sku, 4)
		require.NoError(t, err)
		assert.True(t, res.Clamped)
		assert.Equal(t, 3, res.Released)
		assert.Equal(t, 0, res.Record.ReservedQuantity)
		assert.Equal(t, 5, res.Record.TotalQuantity)
	})

	t.Run("restock below reserved is rejected", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		sku := ProductSku(uuid.New())
		owner := uuid.New()
		_, err := store.Restock(ctx, sku, change(owner, 6))
		require.NoError(t, err)
		before, err := store.Reserve(ctx, sku, 4)
		require.NoError(t, err)

		_, err = store.Restock(ctx, sku, change(owner, 0))
		require.True(t, IsInventoryConflict(err), "got %v", err)

		after, err := store.Get(ctx, sku)
		require.NoError(t, err)
		assert.Equal(t, before.TotalQuantity, after.TotalQuantity)
		assert.Equal(t, before.ReservedQuantity, after.ReservedQuantity)
		assert.Equal(t, before.Version, after.Version)
	})

	t.Run("restock equal to reserved is allowed", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		sku := ProductSku(uuid.New())
		owner := uuid.New()
		_, err := store.Restock(ctx, sku, change(owner, 6))
		require.NoError(t, err)
		_, err = store.Reserve(ctx, sku, 4)
		require.NoError(t, err)

		rec, err := store.Restock(ctx, sku, change(owner, 4))
		require.NoError(t, err)
		assert.Equal(t, 0, rec.Available())
	})

	t.Run("restock by another store is forbidden", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		sku := ProductSku(uuid.New())
		_, err := store.Restock(ctx, sku, change(uuid.New(), 6))
		require.NoError(t, err)

		_, err = store.Restock(ctx, sku, change(uuid.New(), 9))
		require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden), "got %v", err)
	})

	t.Run("restock timestamps strictly increase", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		sku := VariantSku(uuid.New())
		owner := uuid.New()
		frozen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

		var previous time.Time
		for i := 0; i < 4; i++ {
			c := change(owner, 10+i)
			c.Now = frozen
			rec, err := store.Restock(ctx, sku, c)
			require.NoError(t, err)
			require.NotNil(t, rec.LastRestockedAt)
			if i > 0 {
				assert.True(t, rec.LastRestockedAt.After(previous), "restock %d did not advance %v -> %v", i, previous, *rec.LastRestockedAt)
			}
			previous = *rec.LastRestockedAt
		}
	})

	t.Run("restock keeps location and threshold unless given", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		sku := ProductSku(uuid.New())
		owner := uuid.New()
		location := "aisle 4"
		threshold := 2

		first := change(owner, 10)
		first.Location = &location
		first.LowStockThreshold = &threshold
		_, err := store.Restock(ctx, sku, first)
		require.NoError(t, err)

		rec, err := store.Restock(ctx, sku, change(owner, 12))
		require.NoError(t, err)
		require.NotNil(t, rec.Location)
		assert.Equal(t, location, *rec.Location)
		assert.Equal(t, threshold, rec.LowStockThreshold)
	})

	t.Run("first restock applies the default threshold", func(t *testing.T) {
		store := newStore(t)
		rec, err := store.Restock(context.Background(), ProductSku(uuid.New()), change(uuid.New(), 10))
		require.NoError(t, err)
		assert.Equal(t, 5, rec.LowStockThreshold)
		assert.EqualValues(t, 1, rec.Version)
	})

	t.Run("commit lowers both quantities", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		sku := ProductSku(uuid.New())
		_, err := store.Restock(ctx, sku, change(uuid.New(), 10))
		require.NoError(t, err)
		_, err = store.Reserve(ctx, sku, 4)
		require.NoError(t, err)

		rec, err := store.Commit(ctx, sku, 3)
		require.NoError(t, err)
		assert.Equal(t, 7, rec.TotalQuantity)
		assert.Equal(t, 1, rec.ReservedQuantity)

		_, err = store.Commit(ctx, sku, 2)
		require.True(t, IsInventoryConflict(err), "got %v", err)

		_, err = store.Commit(ctx, ProductSku(uuid.New()), 1)
		require.True(t, IsNotFound(err), "got %v", err)
	})

	t.Run("set threshold", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		sku := ProductSku(uuid.New())
		owner := uuid.New()
		_, err := store.Restock(ctx, sku, change(owner, 10))
		require.NoError(t, err)

		rec, err := store.SetThreshold(ctx, sku, owner, 12)
		require.NoError(t, err)
		assert.Equal(t, 12, rec.LowStockThreshold)
		assert.True(t, rec.IsLowStock())

		_, err = store.SetThreshold(ctx, sku, uuid.New(), 1)
		require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden), "got %v", err)

		_, err = store.SetThreshold(ctx, ProductSku(uuid.New()), owner, 1)
		require.True(t, IsNotFound(err), "got %v", err)
	})

	t.Run("low stock boundary", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		owner := uuid.New()
		threshold := 3

		atThreshold := ProductSku(uuid.New())
		aboveThreshold := ProductSku(uuid.New())
		for sku, total := range map[SkuRef]int{atThreshold: 3, aboveThreshold: 4} {
			c := change(owner, total)
			c.LowStockThreshold = &threshold
			_, err := store.Restock(ctx, sku, c)
			require.NoError(t, err)
		}

		page, err := store.ListLowStock(ctx, owner, pagination.Params{})
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		assert.Equal(t, atThreshold, page.Items[0].Sku)

		_, err = store.Reserve(ctx, aboveThreshold, 1)
		require.NoError(t, err)
		page, err = store.ListLowStock(ctx, owner, pagination.Params{})
		require.NoError(t, err)
		assert.Len(t, page.Items, 2)
	})

	t.Run("low stock is scoped by owner and paginated", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		owner := uuid.New()
		other := uuid.New()
		threshold := 10

		for i := 0; i < 5; i++ {
			c := change(owner, i)
			c.LowStockThreshold = &threshold
			_, err := store.Restock(ctx, ProductSku(uuid.New()), c)
			require.NoError(t, err)
		}
		c := change(other, 1)
		c.LowStockThreshold = &threshold
		_, err := store.Restock(ctx, ProductSku(uuid.New()), c)
		require.NoError(t, err)

		seen := map[uuid.UUID]bool{}
		params := pagination.Params{Limit: 2}
		for {
			page, err := store.ListLowStock(ctx, owner, params)
			require.NoError(t, err)
			for _, rec := range page.Items {
				assert.Equal(t, owner, rec.StoreID)
				assert.False(t, seen[rec.ID], "record %s listed twice", rec.ID)
				seen[rec.ID] = true
			}
			if page.NextCursor == "" {
				break
			}
			params.Cursor = page.NextCursor
		}
		assert.Len(t, seen, 5)

		all, err := store.ListLowStock(ctx, uuid.Nil, pagination.Params{Limit: 50})
		require.NoError(t, err)
		assert.Len(t, all.Items, 6)
	})

	t.Run("scan visits every record", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		for i := 0; i < 7; i++ {
			_, err := store.Restock(ctx, VariantSku(uuid.New()), change(uuid.New(), i))
			require.NoError(t, err)
		}
		var batches, total int
		err := store.Scan(ctx, 3, func(records []Record) error {
			batches++
			total += len(records)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 7, total)
		assert.Equal(t, 3, batches)
	})

	t.Run("concurrent reservations never oversell", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		sku := ProductSku(uuid.New())
		const stock, callers = 7, 20
		_, err := store.Restock(ctx, sku, change(uuid.New(), stock))
		require.NoError(t, err)

		var (
			wg           sync.WaitGroup
			mu           sync.Mutex
			succeeded    int
			insufficient int
			unexpected   []error
		)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.Reserve(ctx, sku, 1)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					succeeded++
				case IsInsufficientStock(err):
					insufficient++
				default:
					unexpected = append(unexpected, err)
				}
			}()
		}
		wg.Wait()

		require.Empty(t, unexpected)
		assert.Equal(t, stock, succeeded)
		assert.Equal(t, callers-stock, insufficient)
		rec, err := store.Get(ctx, sku)
		require.NoError(t, err)
		assert.Equal(t, stock, rec.ReservedQuantity)
		require.NoError(t, rec.CheckInvariants())
	})

	t.Run("two reservers for the last units", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		sku := VariantSku(uuid.New())
		_, err := store.Restock(ctx, sku, change(uuid.New(), 5))
		require.NoError(t, err)

		errs := make([]error, 2)
		var wg sync.WaitGroup
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = store.Reserve(ctx, sku, 3)
			}(i)
		}
		wg.Wait()

		okCount := 0
		for _, err := range errs {
			if err == nil {
				okCount++
				continue
			}
			assert.True(t, IsInsufficientStock(err), "got %v", err)
		}
		assert.Equal(t, 1, okCount)
		rec, err := store.Get(ctx, sku)
		require.NoError(t, err)
		assert.Equal(t, 3, rec.ReservedQuantity)
	})

	t.Run("product and variant keys are distinct", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		id := uuid.New()
		_, err := store.Restock(ctx, ProductSku(id), change(uuid.New(), 4))
		require.NoError(t, err)

		_, err = store.Get(ctx, VariantSku(id))
		require.True(t, IsNotFound(err), "got %v", err)
	})
}

func change(storeID uuid.UUID, total int) RestockChange {
	return RestockChange{
		StoreID:                  storeID,
		TotalQuantity:            total,
		DefaultLowStockThreshold: 5,
		Now:                      time.Now().UTC(),
	}
}
