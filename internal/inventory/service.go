package inventory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/marketplace-inventory/pkg/errors"
	"github.com/angelmondragon/marketplace-inventory/pkg/logger"
	"github.com/angelmondragon/marketplace-inventory/pkg/metrics"
	"github.com/angelmondragon/marketplace-inventory/pkg/pagination"
)

// Service is the inventory ledger used by checkout, order management and
// supplier tooling.
type Service interface {
	GetStock(ctx context.Context, sku SkuRef) (int, error)
	GetRecord(ctx context.Context, sku SkuRef) (*Record, error)
	Restock(ctx context.Context, sku SkuRef, input RestockInput) (*Record, error)
	Reserve(ctx context.Context, sku SkuRef, qty int) (*Record, error)
	Release(ctx context.Context, sku SkuRef, qty int) (*ReleaseResult, error)
	Commit(ctx context.Context, sku SkuRef, qty int) (*Record, error)
	SetThreshold(ctx context.Context, sku SkuRef, storeID uuid.UUID, threshold int) (*Record, error)
	ListLowStock(ctx context.Context, storeID uuid.UUID, params pagination.Params) (*LowStockPage, error)
}

// RestockInput is the supplier-facing restock request.
type RestockInput struct {
	StoreID           uuid.UUID
	TotalQuantity     int
	Location          *string
	LowStockThreshold *int
}

type ServiceParams struct {
	Store   Store
	Cache   StockCache
	Logger  *logger.Logger
	Metrics *metrics.InventoryMetrics
	// DefaultLowStockThreshold applies to records created by their first restock.
	DefaultLowStockThreshold int
	Now                      func() time.Time
}

type service struct {
	store            Store
	cache            StockCache
	logg             *logger.Logger
	metrics          *metrics.InventoryMetrics
	defaultThreshold int
	now              func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Store == nil {
		return nil, errors.New("inventory store required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.DefaultLowStockThreshold < 0 {
		return nil, errors.New("default low stock threshold must be non-negative")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		store:            params.Store,
		cache:            params.Cache,
		logg:             params.Logger,
		metrics:          params.Metrics,
		defaultThreshold: params.DefaultLowStockThreshold,
		now:              now,
	}, nil
}

func (s *service) GetStock(ctx context.Context, sku SkuRef) (available int, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "get_stock", start, err) }()

	if err := sku.Validate(); err != nil {
		return 0, err
	}
	ctx = s.logg.WithSku(ctx, sku.String())

	if s.cache != nil {
		cached, ok, cerr := s.cache.Get(ctx, sku)
		switch {
		case cerr != nil:
			s.metrics.IncCache("error")
			s.logg.Warn(s.logg.WithField(ctx, "error", cerr.Error()), "stock cache read failed")
		case ok:
			s.metrics.IncCache("hit")
			return cached, nil
		default:
			s.metrics.IncCache("miss")
		}
	}

	rec, err := s.store.Get(ctx, sku)
	if err != nil {
		if !IsNotFound(err) {
			return 0, err
		}
		available = 0
	} else {
		if err := s.verify(ctx, rec); err != nil {
			return 0, err
		}
		available = rec.Available()
	}

	if s.cache != nil {
		if cerr := s.cache.Set(ctx, sku, available); cerr != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", cerr.Error()), "stock cache write failed")
		}
	}
	return available, nil
}

func (s *service) GetRecord(ctx context.Context, sku SkuRef) (rec *Record, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "get_record", start, err) }()

	if err := sku.Validate(); err != nil {
		return nil, err
	}
	ctx = s.logg.WithSku(ctx, sku.String())
	rec, err = s.store.Get(ctx, sku)
	if err != nil {
		return nil, err
	}
	if err := s.verify(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *service) Restock(ctx context.Context, sku SkuRef, input RestockInput) (rec *Record, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "restock", start, err) }()

	if err := sku.Validate(); err != nil {
		return nil, err
	}
	if input.StoreID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store_id is required")
	}
	if input.TotalQuantity < 0 {
		return nil, errInvalidQuantity("total_quantity", input.TotalQuantity)
	}
	if input.LowStockThreshold != nil && *input.LowStockThreshold < 0 {
		return nil, errInvalidQuantity("low_stock_threshold", *input.LowStockThreshold)
	}
	location := input.Location
	if location != nil {
		trimmed := strings.TrimSpace(*location)
		location = &trimmed
	}

	ctx = s.logg.WithSku(ctx, sku.String())
	rec, err = s.store.Restock(ctx, sku, RestockChange{
		StoreID:                  input.StoreID,
		TotalQuantity:            input.TotalQuantity,
		Location:                 location,
		LowStockThreshold:        input.LowStockThreshold,
		DefaultLowStockThreshold: s.defaultThreshold,
		Now:                      s.now(),
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, sku)
	if err := s.verify(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *service) Reserve(ctx context.Context, sku SkuRef, qty int) (rec *Record, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "reserve", start, err) }()

	if err := validateMutation(sku, qty); err != nil {
		return nil, err
	}
	ctx = s.logg.WithSku(ctx, sku.String())
	rec, err = s.store.Reserve(ctx, sku, qty)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, sku)
	if err := s.verify(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *service) Release(ctx context.Context, sku SkuRef, qty int) (res *ReleaseResult, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "release", start, err) }()

	if err := validateMutation(sku, qty); err != nil {
		return nil, err
	}
	ctx = s.logg.WithSku(ctx, sku.String())
	res, err = s.store.Release(ctx, sku, qty)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, sku)
	if res.Clamped {
		s.metrics.IncReleaseClamped()
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"requested": qty,
			"released":  res.Released,
		}), "release exceeded reserved quantity, clamped to zero")
	}
	if err := s.verify(ctx, res.Record); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *service) Commit(ctx context.Context, sku SkuRef, qty int) (rec *Record, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "commit", start, err) }()

	if err := validateMutation(sku, qty); err != nil {
		return nil, err
	}
	ctx = s.logg.WithSku(ctx, sku.String())
	rec, err = s.store.Commit(ctx, sku, qty)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, sku)
	if err := s.verify(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *service) SetThreshold(ctx context.Context, sku SkuRef, storeID uuid.UUID, threshold int) (rec *Record, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "set_threshold", start, err) }()

	if err := sku.Validate(); err != nil {
		return nil, err
	}
	if storeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store_id is required")
	}
	if threshold < 0 {
		return nil, errInvalidQuantity("low_stock_threshold", threshold)
	}
	ctx = s.logg.WithSku(ctx, sku.String())
	rec, err = s.store.SetThreshold(ctx, sku, storeID, threshold)
	if err != nil {
		return nil, err
	}
	if err := s.verify(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *service) ListLowStock(ctx context.Context, storeID uuid.UUID, params pagination.Params) (page *LowStockPage, err error) {
	start := time.Now()
	defer func() { s.observe(ctx, "list_low_stock", start, err) }()

	if params.Limit < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "limit must be non-negative")
	}
	return s.store.ListLowStock(ctx, storeID, params)
}

func validateMutation(sku SkuRef, qty int) error {
	if err := sku.Validate(); err != nil {
		return err
	}
	if qty <= 0 {
		return errInvalidQuantity("quantity", qty)
	}
	return nil
}

// invalidate drops the cached stock before the mutation is reported to the
// caller. A failed delete leaves the entry to expire on its TTL.
func (s *service) invalidate(ctx context.Context, sku SkuRef) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, sku); err != nil {
		s.metrics.IncCache("invalidate_error")
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "stock cache invalidation failed")
	}
}

func (s *service) verify(ctx context.Context, rec *Record) error {
	if rec == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "inventory store returned no record")
	}
	if err := rec.CheckInvariants(); err != nil {
		s.logg.Error(s.logg.WithFields(ctx, map[string]any{
			"record_id":           rec.ID.String(),
			"store_id":            rec.StoreID.String(),
			"total_quantity":      rec.TotalQuantity,
			"reserved_quantity":   rec.ReservedQuantity,
			"low_stock_threshold": rec.LowStockThreshold,
			"version":             rec.Version,
		}), "inventory invariant violated", err)
		return err
	}
	return nil
}

func (s *service) observe(ctx context.Context, op string, start time.Time, err error) {
	outcome := outcomeFor(err)
	s.metrics.ObserveOperation(op, outcome, time.Since(start))
	switch outcome {
	case metrics.OutcomeOK, metrics.OutcomeNotFound, metrics.OutcomeInvalid:
	case metrics.OutcomeInsufficientStock, metrics.OutcomeConflict:
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{"operation": op, "reason": err.Error()}), "inventory operation rejected")
	case metrics.OutcomeUnavailable:
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"operation": op, "error": err.Error()}), "inventory store unavailable")
	default:
		if !pkgerrors.HasCode(err, pkgerrors.CodeForbidden) {
			s.logg.Error(s.logg.WithField(ctx, "operation", op), "inventory operation failed", err)
		}
	}
}

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case IsInsufficientStock(err):
		return metrics.OutcomeInsufficientStock
	case IsNotFound(err):
		return metrics.OutcomeNotFound
	case IsInvalidQuantity(err):
		return metrics.OutcomeInvalid
	case IsInventoryConflict(err):
		return metrics.OutcomeConflict
	case IsStoreUnavailable(err):
		return metrics.OutcomeUnavailable
	default:
		return metrics.OutcomeError
	}
}
