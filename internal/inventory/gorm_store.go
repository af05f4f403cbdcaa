package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketplace-inventory/internal/repo"
	"github.com/angelmondragon/marketplace-inventory/pkg/db/models"
	"github.com/angelmondragon/marketplace-inventory/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-inventory/pkg/errors"
	"github.com/angelmondragon/marketplace-inventory/pkg/logger"
	"github.com/angelmondragon/marketplace-inventory/pkg/outbox"
	"github.com/angelmondragon/marketplace-inventory/pkg/outbox/payloads"
	"github.com/angelmondragon/marketplace-inventory/pkg/pagination"
)

const (
	defaultRestockRetries = 5
	releaseRetries        = 3
)

// GormStoreParams configure the durable store.
type GormStoreParams struct {
	DB     *gorm.DB
	Outbox outbox.Emitter
	Logger *logger.Logger
	// MaxRestockRetries bounds compare-and-swap attempts on version races.
	MaxRestockRetries int
	Now               func() time.Time
}

// GormStore persists records in the inventory_records table. Reserve, release
// and commit are single conditional UPDATE statements; restock is an
// insert-if-absent followed by a version compare-and-swap.
type GormStore struct {
	repo.Base
	events     outbox.Emitter
	logg       *logger.Logger
	maxRetries int
	now        func() time.Time
}

func NewGormStore(params GormStoreParams) (*GormStore, error) {
	if params.DB == nil {
		return nil, errors.New("inventory store requires a database handle")
	}
	retries := params.MaxRestockRetries
	if retries <= 0 {
		retries = defaultRestockRetries
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &GormStore{
		Base:       repo.NewBase(params.DB),
		events:     params.Outbox,
		logg:       params.Logger,
		maxRetries: retries,
		now:        now,
	}, nil
}

func skuScope(sku SkuRef) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if sku.Kind() == enums.SkuKindVariant {
			return db.Where("variant_id = ?", sku.ID())
		}
		return db.Where("product_id = ? AND variant_id IS NULL", sku.ID())
	}
}

func (s *GormStore) stamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *GormStore) Get(ctx context.Context, sku SkuRef) (*Record, error) {
	row, err := loadRow(s.DB(ctx), sku)
	if err != nil {
		return nil, storeError(err, "get")
	}
	rec, err := toRecord(*row)
	if err != nil {
		return nil, storeError(err, "get")
	}
	return &rec, nil
}

func (s *GormStore) Reserve(ctx context.Context, sku SkuRef, qty int) (*Record, error) {
	var out *Record
	err := s.InTx(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&models.InventoryRecord{}).
			Scopes(skuScope(sku)).
			Where("total_quantity - reserved_quantity >= ?", qty).
			Updates(map[string]any{
				"reserved_quantity": gorm.Expr("reserved_quantity + ?", qty),
				"version":           gorm.Expr("version + 1"),
				"updated_at":        s.stamp(),
			})
		if res.Error != nil {
			return res.Error
		}
		row, err := loadRow(tx, sku)
		if err != nil {
			if IsNotFound(err) {
				return errInsufficientStock(sku, qty, 0)
			}
			return err
		}
		rec, err := toRecord(*row)
		if err != nil {
			return err
		}
		if res.RowsAffected == 0 {
			return errInsufficientStock(sku, qty, rec.Available())
		}
		if err := s.emitLowStockIfCrossed(ctx, tx, rec, rec.Available()+qty, "reserve"); err != nil {
			return err
		}
		out = &rec
		return nil
	})
	if err != nil {
		return nil, storeError(err, "reserve")
	}
	return out, nil
}

func (s *GormStore) Release(ctx context.Context, sku SkuRef, qty int) (*ReleaseResult, error) {
	var out *ReleaseResult
	err := s.InTx(ctx, func(tx *gorm.DB) error {
		for attempt := 0; attempt < releaseRetries; attempt++ {
			res := tx.Model(&models.InventoryRecord{}).
				Scopes(skuScope(sku)).
				Where("reserved_quantity >= ?", qty).
				Updates(map[string]any{
					"reserved_quantity": gorm.Expr("reserved_quantity - ?", qty),
					"version":           gorm.Expr("version + 1"),
					"updated_at":        s.stamp(),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 1 {
				row, err := loadRow(tx, sku)
				if err != nil {
					return err
				}
				rec, err := toRecord(*row)
				if err != nil {
					return err
				}
				out = &ReleaseResult{Record: &rec, Released: qty}
				return nil
			}

			row, err := loadRow(tx, sku)
			if err != nil {
				return err
			}
			if row.ReservedQuantity >= qty {
				continue
			}
			observed := row.ReservedQuantity
			// Over-release: zero out exactly the reservation that was observed.
			res = tx.Model(&models.InventoryRecord{}).
				Where("id = ? AND version = ?", row.ID, row.Version).
				Updates(map[string]any{
					"reserved_quantity": 0,
					"version":           gorm.Expr("version + 1"),
					"updated_at":        s.stamp(),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				continue
			}
			row, err = loadRow(tx, sku)
			if err != nil {
				return err
			}
			rec, err := toRecord(*row)
			if err != nil {
				return err
			}
			out = &ReleaseResult{Record: &rec, Released: observed, Clamped: true}
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeDependency, "release contended, retry").
			WithDetails(map[string]any{"sku": sku.String()})
	})
	if err != nil {
		return nil, storeError(err, "release")
	}
	return out, nil
}

func (s *GormStore) Commit(ctx context.Context, sku SkuRef, qty int) (*Record, error) {
	var out *Record
	err := s.InTx(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&models.InventoryRecord{}).
			Scopes(skuScope(sku)).
			Where("reserved_quantity >= ?", qty).
			Updates(map[string]any{
				"total_quantity":    gorm.Expr("total_quantity - ?", qty),
				"reserved_quantity": gorm.Expr("reserved_quantity - ?", qty),
				"version":           gorm.Expr("version + 1"),
				"updated_at":        s.stamp(),
			})
		if res.Error != nil {
			return res.Error
		}
		row, err := loadRow(tx, sku)
		if err != nil {
			return err
		}
		if res.RowsAffected == 0 {
			return errConflict("commit exceeds reserved quantity", map[string]any{
				"sku":               sku.String(),
				"requested":         qty,
				"reserved_quantity": row.ReservedQuantity,
			})
		}
		rec, err := toRecord(*row)
		if err != nil {
			return err
		}
		out = &rec
		return nil
	})
	if err != nil {
		return nil, storeError(err, "commit")
	}
	return out, nil
}

func (s *GormStore) Restock(ctx context.Context, sku SkuRef, change RestockChange) (*Record, error) {
	var out *Record
	err := s.InTx(ctx, func(tx *gorm.DB) error {
		for attempt := 0; attempt < s.maxRetries; attempt++ {
			row, err := loadRow(tx, sku)
			if err != nil && !IsNotFound(err) {
				return err
			}
			if row == nil {
				rec, created, err := s.insertIfAbsent(ctx, tx, sku, change)
				if err != nil {
					return err
				}
				if !created {
					// Lost the insert race; the next pass updates the winner's row.
					continue
				}
				out = rec
				return nil
			}

			if row.StoreID != change.StoreID {
				return errForeignStore(sku)
			}
			if change.TotalQuantity < row.ReservedQuantity {
				return errConflict("restock total is below reserved quantity", map[string]any{
					"sku":               sku.String(),
					"total_quantity":    change.TotalQuantity,
					"reserved_quantity": row.ReservedQuantity,
				})
			}

			restockedAt := nextRestockTime(row.LastRestockedAt, change.Now)
			updates := map[string]any{
				"total_quantity":    change.TotalQuantity,
				"last_restocked_at": restockedAt,
				"version":           gorm.Expr("version + 1"),
				"updated_at":        s.stamp(),
			}
			if change.Location != nil {
				updates["location"] = *change.Location
			}
			if change.LowStockThreshold != nil {
				updates["low_stock_threshold"] = *change.LowStockThreshold
			}
			res := tx.Model(&models.InventoryRecord{}).
				Where("id = ? AND version = ? AND reserved_quantity <= ?", row.ID, row.Version, change.TotalQuantity).
				Updates(updates)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				if s.logg != nil {
					s.logg.Debug(s.logg.WithField(ctx, "attempt", attempt+1), "restock version race, retrying")
				}
				continue
			}

			prevAvailable := row.TotalQuantity - row.ReservedQuantity
			updated, err := loadRow(tx, sku)
			if err != nil {
				return err
			}
			rec, err := toRecord(*updated)
			if err != nil {
				return err
			}
			if err := s.emitRestocked(ctx, tx, rec, row.TotalQuantity); err != nil {
				return err
			}
			if err := s.emitLowStockIfCrossed(ctx, tx, rec, prevAvailable, "restock"); err != nil {
				return err
			}
			out = &rec
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeDependency, "restock contended, retry").
			WithDetails(map[string]any{"sku": sku.String()})
	})
	if err != nil {
		return nil, storeError(err, "restock")
	}
	return out, nil
}

func (s *GormStore) insertIfAbsent(ctx context.Context, tx *gorm.DB, sku SkuRef, change RestockChange) (*Record, bool, error) {
	threshold := change.DefaultLowStockThreshold
	if change.LowStockThreshold != nil {
		threshold = *change.LowStockThreshold
	}
	restockedAt := nextRestockTime(nil, change.Now)
	stamp := s.stamp()
	row := models.InventoryRecord{
		ID:                uuid.New(),
		StoreID:           change.StoreID,
		ProductID:         sku.ProductID(),
		VariantID:         sku.VariantID(),
		TotalQuantity:     change.TotalQuantity,
		ReservedQuantity:  0,
		LowStockThreshold: threshold,
		Location:          change.Location,
		LastRestockedAt:   &restockedAt,
		Version:           1,
		CreatedAt:         stamp,
		UpdatedAt:         stamp,
	}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, false, nil
	}
	rec, err := toRecord(row)
	if err != nil {
		return nil, false, err
	}
	if err := s.emitRestocked(ctx, tx, rec, 0); err != nil {
		return nil, false, err
	}
	if rec.IsLowStock() {
		if err := s.emitLowStock(ctx, tx, rec, "restock"); err != nil {
			return nil, false, err
		}
	}
	return &rec, true, nil
}

func (s *GormStore) SetThreshold(ctx context.Context, sku SkuRef, storeID uuid.UUID, threshold int) (*Record, error) {
	var out *Record
	err := s.InTx(ctx, func(tx *gorm.DB) error {
		row, err := loadRow(tx, sku)
		if err != nil {
			return err
		}
		if row.StoreID != storeID {
			return errForeignStore(sku)
		}
		res := tx.Model(&models.InventoryRecord{}).
			Where("id = ?", row.ID).
			Updates(map[string]any{
				"low_stock_threshold": threshold,
				"version":             gorm.Expr("version + 1"),
				"updated_at":          s.stamp(),
			})
		if res.Error != nil {
			return res.Error
		}
		updated, err := loadRow(tx, sku)
		if err != nil {
			return err
		}
		rec, err := toRecord(*updated)
		if err != nil {
			return err
		}
		wasLow := row.TotalQuantity-row.ReservedQuantity <= row.LowStockThreshold
		if !wasLow && rec.IsLowStock() {
			if err := s.emitLowStock(ctx, tx, rec, "threshold"); err != nil {
				return err
			}
		}
		out = &rec
		return nil
	})
	if err != nil {
		return nil, storeError(err, "set threshold")
	}
	return out, nil
}

func (s *GormStore) ListLowStock(ctx context.Context, storeID uuid.UUID, params pagination.Params) (*LowStockPage, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(params.Limit)

	query := s.DB(ctx).Model(&models.InventoryRecord{}).
		Where("total_quantity - reserved_quantity <= low_stock_threshold")
	if storeID != uuid.Nil {
		query = query.Where("store_id = ?", storeID)
	}
	if cursor != nil {
		query = query.Where("(created_at > ?) OR (created_at = ? AND id > ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.InventoryRecord
	if err := query.
		Order("created_at ASC").
		Order("id ASC").
		Limit(pagination.LimitWithBuffer(limit)).
		Find(&rows).Error; err != nil {
		return nil, storeError(err, "list low stock")
	}

	page := &LowStockPage{Items: make([]Record, 0, len(rows))}
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[limit-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	for _, row := range rows {
		rec, err := toRecord(row)
		if err != nil {
			return nil, storeError(err, "list low stock")
		}
		page.Items = append(page.Items, rec)
	}
	return page, nil
}

// Scan reads rows with keyset pagination; records whose identity columns are
// corrupt are still passed through so audits can report them.
func (s *GormStore) Scan(ctx context.Context, batchSize int, fn func([]Record) error) error {
	if batchSize <= 0 {
		batchSize = pagination.MaxLimit
	}
	var cursor *pagination.Cursor
	for {
		query := s.DB(ctx).Model(&models.InventoryRecord{})
		if cursor != nil {
			query = query.Where("(created_at > ?) OR (created_at = ? AND id > ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
		}
		var rows []models.InventoryRecord
		if err := query.Order("created_at ASC").Order("id ASC").Limit(batchSize).Find(&rows).Error; err != nil {
			return storeError(err, "scan")
		}
		if len(rows) == 0 {
			return nil
		}
		batch := make([]Record, 0, len(rows))
		for _, row := range rows {
			rec, err := toRecord(row)
			if err != nil {
				rec = recordFromRow(row, SkuRef{})
			}
			batch = append(batch, rec)
		}
		if err := fn(batch); err != nil {
			return err
		}
		if len(rows) < batchSize {
			return nil
		}
		last := rows[len(rows)-1]
		cursor = &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
}

func (s *GormStore) emitRestocked(ctx context.Context, tx *gorm.DB, rec Record, previousTotal int) error {
	if s.events == nil {
		return nil
	}
	restockedAt := time.Time{}
	if rec.LastRestockedAt != nil {
		restockedAt = *rec.LastRestockedAt
	}
	return s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventInventoryRestocked,
		AggregateType: enums.AggregateInventoryRecord,
		AggregateID:   rec.ID,
		StoreID:       &rec.StoreID,
		Data: payloads.InventoryRestockedEvent{
			RecordID:          rec.ID,
			StoreID:           rec.StoreID,
			Sku:               payloads.SkuRef{Kind: rec.Sku.Kind(), ID: rec.Sku.ID()},
			PreviousTotal:     previousTotal,
			TotalQuantity:     rec.TotalQuantity,
			ReservedQuantity:  rec.ReservedQuantity,
			Location:          rec.Location,
			LastRestockedAt:   restockedAt,
			LowStockThreshold: rec.LowStockThreshold,
		},
		OccurredAt: restockedAt,
	})
}

// emitLowStockIfCrossed emits only on the transition into low stock so a
// busy SKU does not flood subscribers.
func (s *GormStore) emitLowStockIfCrossed(ctx context.Context, tx *gorm.DB, rec Record, previousAvailable int, cause string) error {
	if previousAvailable <= rec.LowStockThreshold || !rec.IsLowStock() {
		return nil
	}
	return s.emitLowStock(ctx, tx, rec, cause)
}

func (s *GormStore) emitLowStock(ctx context.Context, tx *gorm.DB, rec Record, cause string) error {
	if s.events == nil {
		return nil
	}
	return s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventInventoryLowStock,
		AggregateType: enums.AggregateInventoryRecord,
		AggregateID:   rec.ID,
		StoreID:       &rec.StoreID,
		Data: payloads.InventoryLowStockEvent{
			RecordID:          rec.ID,
			StoreID:           rec.StoreID,
			Sku:               payloads.SkuRef{Kind: rec.Sku.Kind(), ID: rec.Sku.ID()},
			Available:         rec.Available(),
			LowStockThreshold: rec.LowStockThreshold,
			Cause:             cause,
		},
	})
}

func loadRow(db *gorm.DB, sku SkuRef) (*models.InventoryRecord, error) {
	var row models.InventoryRecord
	err := db.Scopes(skuScope(sku)).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errNotFound(sku)
		}
		return nil, err
	}
	return &row, nil
}

func toRecord(row models.InventoryRecord) (Record, error) {
	sku, err := skuFromColumns(row.ProductID, row.VariantID)
	if err != nil {
		return Record{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "corrupt inventory row").
			WithDetails(map[string]any{"record_id": row.ID.String()})
	}
	return recordFromRow(row, sku), nil
}

func recordFromRow(row models.InventoryRecord, sku SkuRef) Record {
	rec := Record{
		ID:                row.ID,
		StoreID:           row.StoreID,
		Sku:               sku,
		TotalQuantity:     row.TotalQuantity,
		ReservedQuantity:  row.ReservedQuantity,
		LowStockThreshold: row.LowStockThreshold,
		Location:          row.Location,
		Version:           row.Version,
		CreatedAt:         row.CreatedAt.UTC(),
		UpdatedAt:         row.UpdatedAt.UTC(),
	}
	if row.LastRestockedAt != nil {
		t := row.LastRestockedAt.UTC()
		rec.LastRestockedAt = &t
	}
	return rec
}
