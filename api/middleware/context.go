package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-inventory/pkg/enums"
)

type principalKey struct{}

// Principal is the authenticated caller as resolved by Auth. StoreID is
// uuid.Nil when the token selects no active store.
type Principal struct {
	UserID  uuid.UUID
	Role    enums.MemberRole
	StoreID uuid.UUID
}

func (p Principal) HasStore() bool {
	return p.StoreID != uuid.Nil
}

// WithPrincipal stores p on ctx for downstream middleware and handlers.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext reports false on unauthenticated requests.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// StoreIDFromContext returns the caller's active store, or uuid.Nil.
func StoreIDFromContext(ctx context.Context) uuid.UUID {
	p, _ := PrincipalFromContext(ctx)
	return p.StoreID
}
