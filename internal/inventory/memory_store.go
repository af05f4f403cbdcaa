package inventory

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/marketplace-inventory/pkg/errors"
	"github.com/angelmondragon/marketplace-inventory/pkg/pagination"
)

// MemoryStore keeps records in process. Each record carries its own mutex,
// held across check-and-write; the map lock only guards lookups and inserts.
// Used by tests and local tooling.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[SkuRef]*memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	mu  sync.Mutex
	rec Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[SkuRef]*memoryEntry),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) entry(sku SkuRef) *memoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[sku]
}

// entryOrCreate returns the existing entry or inserts a fresh one built by init.
func (s *MemoryStore) entryOrCreate(sku SkuRef, init func() Record) (*memoryEntry, bool) {
	if e := s.entry(sku); e != nil {
		return e, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[sku]; ok {
		return e, false
	}
	e := &memoryEntry{rec: init()}
	s.entries[sku] = e
	return e, true
}

func (s *MemoryStore) Get(ctx context.Context, sku SkuRef) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeError(err, "get")
	}
	e := s.entry(sku)
	if e == nil {
		return nil, errNotFound(sku)
	}
	e.mu.Lock()
	rec := e.rec
	e.mu.Unlock()
	return &rec, nil
}

func (s *MemoryStore) Restock(ctx context.Context, sku SkuRef, change RestockChange) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeError(err, "restock")
	}
	threshold := change.DefaultLowStockThreshold
	if change.LowStockThreshold != nil {
		threshold = *change.LowStockThreshold
	}
	e, created := s.entryOrCreate(sku, func() Record {
		restockedAt := nextRestockTime(nil, change.Now)
		return Record{
			ID:                uuid.New(),
			StoreID:           change.StoreID,
			Sku:               sku,
			TotalQuantity:     change.TotalQuantity,
			LowStockThreshold: threshold,
			Location:          change.Location,
			LastRestockedAt:   &restockedAt,
			Version:           1,
			CreatedAt:         restockedAt,
			UpdatedAt:         restockedAt,
		}
	})
	e.mu.Lock()
	defer e.mu.Unlock()
	if created {
		rec := e.rec
		return &rec, nil
	}

	if e.rec.StoreID != change.StoreID {
		return nil, errForeignStore(sku)
	}
	if change.TotalQuantity < e.rec.ReservedQuantity {
		return nil, errConflict("restock total is below reserved quantity", map[string]any{
			"sku":               sku.String(),
			"total_quantity":    change.TotalQuantity,
			"reserved_quantity": e.rec.ReservedQuantity,
		})
	}
	restockedAt := nextRestockTime(e.rec.LastRestockedAt, change.Now)
	e.rec.TotalQuantity = change.TotalQuantity
	if change.Location != nil {
		e.rec.Location = change.Location
	}
	if change.LowStockThreshold != nil {
		e.rec.LowStockThreshold = *change.LowStockThreshold
	}
	e.rec.LastRestockedAt = &restockedAt
	e.touch(s.now())
	rec := e.rec
	return &rec, nil
}

func (s *MemoryStore) Reserve(ctx context.Context, sku SkuRef, qty int) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeError(err, "reserve")
	}
	e := s.entry(sku)
	if e == nil {
		return nil, errInsufficientStock(sku, qty, 0)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if available := e.rec.Available(); available < qty {
		return nil, errInsufficientStock(sku, qty, available)
	}
	e.rec.ReservedQuantity += qty
	e.touch(s.now())
	rec := e.rec
	return &rec, nil
}

func (s *MemoryStore) Release(ctx context.Context, sku SkuRef, qty int) (*ReleaseResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeError(err, "release")
	}
	e := s.entry(sku)
	if e == nil {
		return nil, errNotFound(sku)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	released := qty
	clamped := false
	if e.rec.ReservedQuantity < qty {
		released = e.rec.ReservedQuantity
		clamped = true
	}
	e.rec.ReservedQuantity -= released
	e.touch(s.now())
	rec := e.rec
	return &ReleaseResult{Record: &rec, Released: released, Clamped: clamped}, nil
}

func (s *MemoryStore) Commit(ctx context.Context, sku SkuRef, qty int) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeError(err, "commit")
	}
	e := s.entry(sku)
	if e == nil {
		return nil, errNotFound(sku)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rec.ReservedQuantity < qty {
		return nil, errConflict("commit exceeds reserved quantity", map[string]any{
			"sku":               sku.String(),
			"requested":         qty,
			"reserved_quantity": e.rec.ReservedQuantity,
		})
	}
	e.rec.ReservedQuantity -= qty
	e.rec.TotalQuantity -= qty
	e.touch(s.now())
	rec := e.rec
	return &rec, nil
}

func (s *MemoryStore) SetThreshold(ctx context.Context, sku SkuRef, storeID uuid.UUID, threshold int) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeError(err, "set threshold")
	}
	e := s.entry(sku)
	if e == nil {
		return nil, errNotFound(sku)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rec.StoreID != storeID {
		return nil, errForeignStore(sku)
	}
	e.rec.LowStockThreshold = threshold
	e.touch(s.now())
	rec := e.rec
	return &rec, nil
}

func (s *MemoryStore) ListLowStock(ctx context.Context, storeID uuid.UUID, params pagination.Params) (*LowStockPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeError(err, "list low stock")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(params.Limit)

	var matches []Record
	for _, rec := range s.snapshot() {
		if storeID != uuid.Nil && rec.StoreID != storeID {
			continue
		}
		if !rec.IsLowStock() {
			continue
		}
		if cursor != nil && !cursor.After(rec.CreatedAt, rec.ID) {
			continue
		}
		matches = append(matches, rec)
	}

	page := &LowStockPage{Items: matches}
	if len(matches) > limit {
		page.Items = matches[:limit]
		last := page.Items[limit-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	if page.Items == nil {
		page.Items = []Record{}
	}
	return page, nil
}

func (s *MemoryStore) Scan(ctx context.Context, batchSize int, fn func([]Record) error) error {
	if batchSize <= 0 {
		batchSize = pagination.MaxLimit
	}
	records := s.snapshot()
	for start := 0; start < len(records); start += batchSize {
		if err := ctx.Err(); err != nil {
			return storeError(err, "scan")
		}
		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		if err := fn(records[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// snapshot copies every record, ordered by creation time then id.
func (s *MemoryStore) snapshot() []Record {
	s.mu.RLock()
	entries := make([]*memoryEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	records := make([]Record, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		records = append(records, e.rec)
		e.mu.Unlock()
	}
	sort.Slice(records, func(i, j int) bool {
		return lessByCreation(records[i], records[j])
	})
	return records
}

func (e *memoryEntry) touch(now time.Time) {
	e.rec.Version++
	e.rec.UpdatedAt = now
}

func lessByCreation(a, b Record) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return bytes.Compare(a.ID[:], b.ID[:]) < 0
}
