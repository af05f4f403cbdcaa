package inventory

import (
	"fmt"

	dbpkg "github.com/angelmondragon/marketplace-inventory/pkg/db"
	pkgerrors "github.com/angelmondragon/marketplace-inventory/pkg/errors"
)

func errInsufficientStock(sku SkuRef, requested, available int) error {
	if available < 0 {
		available = 0
	}
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").WithDetails(map[string]any{
		"sku":       sku.String(),
		"requested": requested,
		"available": available,
	})
}

func errNotFound(sku SkuRef) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "inventory record not found").WithDetails(map[string]any{
		"sku": sku.String(),
	})
}

func errInvalidQuantity(field string, value int) error {
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid %s", field)).WithDetails(map[string]any{
		field: value,
	})
}

func errConflict(message string, details map[string]any) error {
	return pkgerrors.New(pkgerrors.CodeInventoryConflict, message).WithDetails(details)
}

func errForeignStore(sku SkuRef) error {
	return pkgerrors.New(pkgerrors.CodeForbidden, "inventory record belongs to another store").WithDetails(map[string]any{
		"sku": sku.String(),
	})
}

// storeError converts a raw persistence error into the typed taxonomy.
// Typed errors pass through untouched.
func storeError(err error, op string) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	if dbpkg.IsUnavailable(err) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "inventory store unavailable: "+op)
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "inventory store failure: "+op)
}

func IsInsufficientStock(err error) bool {
	return pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock)
}

func IsNotFound(err error) bool {
	return pkgerrors.HasCode(err, pkgerrors.CodeNotFound)
}

func IsInvalidQuantity(err error) bool {
	return pkgerrors.HasCode(err, pkgerrors.CodeValidation)
}

func IsInventoryConflict(err error) bool {
	return pkgerrors.HasCode(err, pkgerrors.CodeInventoryConflict)
}

func IsStoreUnavailable(err error) bool {
	return pkgerrors.HasCode(err, pkgerrors.CodeDependency)
}
