package enums

// SkuKind says whether a stock row is keyed by a base product or by one of
// its variants.
type SkuKind string

const (
	SkuKindProduct SkuKind = "product"
	SkuKindVariant SkuKind = "variant"
)

var skuKinds = newLabelSet("sku kind", SkuKindProduct, SkuKindVariant)

func (k SkuKind) String() string { return string(k) }

func (k SkuKind) IsValid() bool { return skuKinds.has(k) }

// ParseSkuKind is case insensitive.
func ParseSkuKind(value string) (SkuKind, error) {
	return skuKinds.parse(value)
}
