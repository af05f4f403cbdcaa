package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/angelmondragon/marketplace-inventory/internal/inventory"
	"github.com/angelmondragon/marketplace-inventory/pkg/logger"
	"github.com/angelmondragon/marketplace-inventory/pkg/metrics"
)

const auditBatchSize = 500

// InventoryAuditJobParams configure the inventory audit.
type InventoryAuditJobParams struct {
	Logger    *logger.Logger
	Inventory inventoryScanner
	Metrics   *metrics.InventoryMetrics
	BatchSize int
}

type inventoryScanner interface {
	Scan(ctx context.Context, batchSize int, fn func([]inventory.Record) error) error
}

// NewInventoryAuditJob walks every inventory record, reports rows that break
// the quantity invariants and refreshes the low stock gauge.
func NewInventoryAuditJob(params InventoryAuditJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory scanner required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = auditBatchSize
	}
	return &inventoryAuditJob{
		logg:      params.Logger,
		inventory: params.Inventory,
		metrics:   params.Metrics,
		batchSize: batch,
	}, nil
}

type inventoryAuditJob struct {
	logg      *logger.Logger
	inventory inventoryScanner
	metrics   *metrics.InventoryMetrics
	batchSize int
}

func (j *inventoryAuditJob) Name() string { return "inventory-audit" }

func (j *inventoryAuditJob) Run(ctx context.Context) error {
	var (
		violations error
		scanned    int
		lowStock   int
		broken     int
	)
	err := j.inventory.Scan(ctx, j.batchSize, func(records []inventory.Record) error {
		for _, rec := range records {
			scanned++
			if err := auditRecord(rec); err != nil {
				broken++
				violations = multierr.Append(violations, err)
				j.logg.Error(j.logg.WithFields(ctx, map[string]any{
					"record_id":           rec.ID.String(),
					"store_id":            rec.StoreID.String(),
					"sku":                 rec.Sku.String(),
					"total_quantity":      rec.TotalQuantity,
					"reserved_quantity":   rec.ReservedQuantity,
					"low_stock_threshold": rec.LowStockThreshold,
				}), "inventory record failed audit", err)
				continue
			}
			if rec.IsLowStock() {
				lowStock++
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan inventory: %w", err)
	}

	j.metrics.SetLowStockSkus(lowStock)
	j.metrics.SetInvariantViolations(broken)
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"records_scanned": scanned,
		"low_stock":       lowStock,
		"violations":      broken,
	}), "inventory audit complete")
	return violations
}

func auditRecord(rec inventory.Record) error {
	if err := rec.Sku.Validate(); err != nil {
		return fmt.Errorf("record %s: corrupt sku columns: %w", rec.ID, err)
	}
	if err := rec.CheckInvariants(); err != nil {
		return fmt.Errorf("record %s: %w", rec.ID, err)
	}
	return nil
}
