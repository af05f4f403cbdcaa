package middleware

import (
	"net/http"

	"github.com/angelmondragon/marketplace-inventory/api/responses"
	pkgerrors "github.com/angelmondragon/marketplace-inventory/pkg/errors"
	"github.com/angelmondragon/marketplace-inventory/pkg/logger"
)

// RequireInventoryManager admits members whose role may change stock levels
// and thresholds of their active store.
func RequireInventoryManager(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok || !principal.Role.CanManageInventory() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "inventory management role required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
