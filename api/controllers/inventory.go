package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-inventory/api/middleware"
	"github.com/angelmondragon/marketplace-inventory/api/responses"
	"github.com/angelmondragon/marketplace-inventory/api/validators"
	"github.com/angelmondragon/marketplace-inventory/internal/inventory"
	pkgerrors "github.com/angelmondragon/marketplace-inventory/pkg/errors"
	"github.com/angelmondragon/marketplace-inventory/pkg/logger"
)

const maxLocationLen = 128

type quantityRequest struct {
	Quantity int `json:"quantity" validate:"gt=0"`
}

type restockRequest struct {
	TotalQuantity     *int    `json:"total_quantity" validate:"required,gte=0"`
	Location          *string `json:"location" validate:"omitempty,max=128"`
	LowStockThreshold *int    `json:"low_stock_threshold" validate:"omitempty,gte=0"`
}

type thresholdRequest struct {
	LowStockThreshold *int `json:"low_stock_threshold" validate:"required,gte=0"`
}

type stockResponse struct {
	Sku       inventory.SkuRef `json:"sku"`
	Available int              `json:"available"`
}

// action runs one ledger call and returns the payload for the success
// envelope.
type action func(r *http.Request) (any, error)

// handle adapts an action to http, writing either the success envelope or
// the mapped error.
func handle(logg *logger.Logger, fn action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := fn(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, data)
	}
}

// InventoryStock returns the available quantity, 0 for an untracked sku.
func InventoryStock(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(logg, func(r *http.Request) (any, error) {
		sku, err := skuFromPath(r)
		if err != nil {
			return nil, err
		}
		available, err := svc.GetStock(r.Context(), sku)
		if err != nil {
			return nil, err
		}
		return stockResponse{Sku: sku, Available: available}, nil
	})
}

func InventoryRecord(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(logg, func(r *http.Request) (any, error) {
		sku, err := skuFromPath(r)
		if err != nil {
			return nil, err
		}
		return svc.GetRecord(r.Context(), sku)
	})
}

// InventoryRestock sets the absolute on-hand quantity for the caller's store.
func InventoryRestock(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(logg, func(r *http.Request) (any, error) {
		storeID, sku, err := storeScoped(r)
		if err != nil {
			return nil, err
		}
		var payload restockRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}

		input := inventory.RestockInput{
			StoreID:           storeID,
			TotalQuantity:     *payload.TotalQuantity,
			LowStockThreshold: payload.LowStockThreshold,
		}
		if payload.Location != nil {
			location := validators.SanitizeString(*payload.Location, maxLocationLen)
			input.Location = &location
		}
		return svc.Restock(r.Context(), sku, input)
	})
}

func InventorySetThreshold(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(logg, func(r *http.Request) (any, error) {
		storeID, sku, err := storeScoped(r)
		if err != nil {
			return nil, err
		}
		var payload thresholdRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.SetThreshold(r.Context(), sku, storeID, *payload.LowStockThreshold)
	})
}

func InventoryReserve(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(logg, func(r *http.Request) (any, error) {
		sku, qty, err := quantityMutation(r)
		if err != nil {
			return nil, err
		}
		return svc.Reserve(r.Context(), sku, qty)
	})
}

// InventoryRelease reports how much was actually released so a caller can
// detect a clamped over-release.
func InventoryRelease(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(logg, func(r *http.Request) (any, error) {
		sku, qty, err := quantityMutation(r)
		if err != nil {
			return nil, err
		}
		return svc.Release(r.Context(), sku, qty)
	})
}

func InventoryCommit(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(logg, func(r *http.Request) (any, error) {
		sku, qty, err := quantityMutation(r)
		if err != nil {
			return nil, err
		}
		return svc.Commit(r.Context(), sku, qty)
	})
}

// InventoryLowStock lists the caller store's records at or below threshold.
func InventoryLowStock(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return handle(logg, func(r *http.Request) (any, error) {
		storeID, err := storeFromContext(r)
		if err != nil {
			return nil, err
		}
		params, err := validators.ParsePage(r)
		if err != nil {
			return nil, err
		}
		return svc.ListLowStock(r.Context(), storeID, params)
	})
}

func skuFromPath(r *http.Request) (inventory.SkuRef, error) {
	return inventory.ParseSkuRef(chi.URLParam(r, "kind"), chi.URLParam(r, "skuId"))
}

func storeFromContext(r *http.Request) (uuid.UUID, error) {
	storeID := middleware.StoreIDFromContext(r.Context())
	if storeID == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "store context missing")
	}
	return storeID, nil
}

func storeScoped(r *http.Request) (uuid.UUID, inventory.SkuRef, error) {
	storeID, err := storeFromContext(r)
	if err != nil {
		return uuid.Nil, inventory.SkuRef{}, err
	}
	sku, err := skuFromPath(r)
	return storeID, sku, err
}

func quantityMutation(r *http.Request) (inventory.SkuRef, int, error) {
	sku, err := skuFromPath(r)
	if err != nil {
		return inventory.SkuRef{}, 0, err
	}
	var payload quantityRequest
	if err := validators.DecodeJSONBody(r, &payload); err != nil {
		return inventory.SkuRef{}, 0, err
	}
	return sku, payload.Quantity, nil
}
