package inventory

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-inventory/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-inventory/pkg/errors"
)

// SkuRef identifies one stock keeping unit: either a product without variants
// or a single variant. The zero value is invalid.
type SkuRef struct {
	kind enums.SkuKind
	id   uuid.UUID
}

// ProductSku references the stock row of a product that has no variants.
func ProductSku(id uuid.UUID) SkuRef {
	return SkuRef{kind: enums.SkuKindProduct, id: id}
}

// VariantSku references the stock row of a single product variant.
func VariantSku(id uuid.UUID) SkuRef {
	return SkuRef{kind: enums.SkuKindVariant, id: id}
}

// SkuFor maps the (productId, variantId?) pair used by callers onto a SkuRef.
// A variant id always wins because variant rows are keyed by variant only.
func SkuFor(productID uuid.UUID, variantID *uuid.UUID) (SkuRef, error) {
	if variantID != nil {
		sku := VariantSku(*variantID)
		return sku, sku.Validate()
	}
	sku := ProductSku(productID)
	return sku, sku.Validate()
}

// ParseSkuRef parses the kind/id pair used in URLs.
func ParseSkuRef(kind, id string) (SkuRef, error) {
	parsedKind, err := enums.ParseSkuKind(kind)
	if err != nil {
		return SkuRef{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid sku kind").
			WithDetails(map[string]any{"kind": kind})
	}
	parsedID, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return SkuRef{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid sku id").
			WithDetails(map[string]any{"id": id})
	}
	sku := SkuRef{kind: parsedKind, id: parsedID}
	return sku, sku.Validate()
}

func (s SkuRef) Kind() enums.SkuKind { return s.kind }

func (s SkuRef) ID() uuid.UUID { return s.id }

func (s SkuRef) IsZero() bool { return s == SkuRef{} }

// Validate rejects the zero value and nil ids.
func (s SkuRef) Validate() error {
	if !s.kind.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "sku kind is required")
	}
	if s.id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "sku id is required")
	}
	return nil
}

// String renders the sku as kind:id, the form used in logs and cache keys.
func (s SkuRef) String() string {
	if s.IsZero() {
		return "invalid"
	}
	return fmt.Sprintf("%s:%s", s.kind, s.id)
}

// ProductID returns the id when the sku is keyed by product.
func (s SkuRef) ProductID() *uuid.UUID {
	if s.kind != enums.SkuKindProduct {
		return nil
	}
	id := s.id
	return &id
}

// VariantID returns the id when the sku is keyed by variant.
func (s SkuRef) VariantID() *uuid.UUID {
	if s.kind != enums.SkuKindVariant {
		return nil
	}
	id := s.id
	return &id
}

type skuJSON struct {
	Kind enums.SkuKind `json:"kind"`
	ID   uuid.UUID     `json:"id"`
}

func (s SkuRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(skuJSON{Kind: s.kind, ID: s.id})
}

func (s *SkuRef) UnmarshalJSON(data []byte) error {
	var raw skuJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed := SkuRef{kind: raw.Kind, id: raw.ID}
	if err := parsed.Validate(); err != nil {
		return err
	}
	*s = parsed
	return nil
}

// skuFromColumns rebuilds a SkuRef from the nullable column pair.
func skuFromColumns(productID, variantID *uuid.UUID) (SkuRef, error) {
	switch {
	case productID != nil && variantID == nil:
		return ProductSku(*productID), nil
	case variantID != nil && productID == nil:
		return VariantSku(*variantID), nil
	default:
		return SkuRef{}, fmt.Errorf("inventory row must reference exactly one of product_id or variant_id")
	}
}
