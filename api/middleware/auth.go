package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/marketplace-inventory/api/responses"
	pkgAuth "github.com/angelmondragon/marketplace-inventory/pkg/auth"
	"github.com/angelmondragon/marketplace-inventory/pkg/config"
	pkgerrors "github.com/angelmondragon/marketplace-inventory/pkg/errors"
	"github.com/angelmondragon/marketplace-inventory/pkg/logger"
)

// Auth verifies the bearer access token and stores the caller's Principal on
// the request context. Any failure is a 401 with a Bearer challenge.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w, r, logg, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				unauthorized(w, r, logg, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			principal := Principal{UserID: claims.UserID, Role: claims.Role, StoreID: claims.StoreID()}
			ctx := WithPrincipal(r.Context(), principal)
			if logg != nil {
				ctx = logg.WithUserID(ctx, principal.UserID.String())
				ctx = logg.WithActorRole(ctx, principal.Role.String())
				if principal.HasStore() {
					ctx = logg.WithStoreID(ctx, principal.StoreID.String())
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme is case insensitive.
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, r *http.Request, logg *logger.Logger, err error) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="marketplace"`)
	responses.WriteError(r.Context(), logg, w, err)
}
