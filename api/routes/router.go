package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/marketplace-inventory/api/controllers"
	"github.com/angelmondragon/marketplace-inventory/api/middleware"
	"github.com/angelmondragon/marketplace-inventory/internal/inventory"
	"github.com/angelmondragon/marketplace-inventory/pkg/config"
	"github.com/angelmondragon/marketplace-inventory/pkg/logger"
	"github.com/angelmondragon/marketplace-inventory/pkg/metrics"
	pkgredis "github.com/angelmondragon/marketplace-inventory/pkg/redis"
)

// redisDeps is the slice of the redis client the API needs.
type redisDeps interface {
	pkgredis.IdempotencyStore
	controllers.Pinger
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisClient redisDeps,
	gatherer prometheus.Gatherer,
	inventoryService inventory.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler(gatherer))

	r.Route("/api/v1/inventory", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		// Restock and threshold are absolute sets; movements are not
		// idempotent on their own, so their replays live longer.
		idemSet := middleware.Idempotency(redisClient, logg, middleware.IdempotencyOptions{
			TTL:        cfg.Idempotency.SetTTL,
			PendingTTL: cfg.Idempotency.PendingTTL,
		})
		idemMove := middleware.Idempotency(redisClient, logg, middleware.IdempotencyOptions{
			TTL:        cfg.Idempotency.MovementTTL,
			PendingTTL: cfg.Idempotency.PendingTTL,
		})

		r.Get("/{kind}/{skuId}/stock", controllers.InventoryStock(inventoryService, logg))
		r.Get("/{kind}/{skuId}", controllers.InventoryRecord(inventoryService, logg))
		r.With(idemMove).Post("/{kind}/{skuId}/reserve", controllers.InventoryReserve(inventoryService, logg))
		r.With(idemMove).Post("/{kind}/{skuId}/release", controllers.InventoryRelease(inventoryService, logg))
		r.With(idemMove).Post("/{kind}/{skuId}/commit", controllers.InventoryCommit(inventoryService, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.StoreContext(logg))
			r.Use(middleware.RequireInventoryManager(logg))
			r.Get("/low-stock", controllers.InventoryLowStock(inventoryService, logg))
			r.With(idemSet).Put("/{kind}/{skuId}", controllers.InventoryRestock(inventoryService, logg))
			r.With(idemSet).Put("/{kind}/{skuId}/threshold", controllers.InventorySetThreshold(inventoryService, logg))
		})
	})

	return r
}
