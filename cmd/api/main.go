package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/marketplace-inventory/api/routes"
	"github.com/angelmondragon/marketplace-inventory/internal/inventory"
	"github.com/angelmondragon/marketplace-inventory/pkg/config"
	"github.com/angelmondragon/marketplace-inventory/pkg/db"
	"github.com/angelmondragon/marketplace-inventory/pkg/instance"
	"github.com/angelmondragon/marketplace-inventory/pkg/logger"
	"github.com/angelmondragon/marketplace-inventory/pkg/metrics"
	"github.com/angelmondragon/marketplace-inventory/pkg/migrate"
	"github.com/angelmondragon/marketplace-inventory/pkg/outbox"
	"github.com/angelmondragon/marketplace-inventory/pkg/redis"
)

const (
	serviceName     = "api"
	shutdownTimeout = 15 * time.Second
	idleTimeout     = 120 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	addr := listenAddr(cfg.App.Port)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})

	err = run(ctx, cfg, logg, addr)
	stop()
	if err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server stopped")
}

// listenAddr prefers the platform-assigned PORT over the configured one.
func listenAddr(configured string) string {
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return ":" + configured
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, addr string) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer closeWith(ctx, logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer closeWith(ctx, logg, "redis", redisClient.Close)

	inventoryService, err := buildInventoryService(cfg, logg, dbClient, redisClient)
	if err != nil {
		return fmt.Errorf("create inventory service: %w", err)
	}

	return serve(ctx, logg, &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, dbClient, redisClient, prometheus.DefaultGatherer, inventoryService),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       idleTimeout,
	})
}

// serve runs server until ctx ends, then drains in-flight requests for up to
// shutdownTimeout.
func serve(ctx context.Context, logg *logger.Logger, server *http.Server) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		logg.Info(ctx, "api server shutting down")
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func closeWith(ctx context.Context, logg *logger.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(ctx, "error closing "+what, err)
	}
}

func buildInventoryService(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (inventory.Service, error) {
	store, err := inventory.NewGormStore(inventory.GormStoreParams{
		DB:                dbClient.DB(),
		Outbox:            outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Logger:            logg,
		MaxRestockRetries: cfg.Inventory.RestockMaxRetries,
	})
	if err != nil {
		return nil, err
	}

	params := inventory.ServiceParams{
		Store:                    store,
		Logger:                   logg,
		Metrics:                  metrics.NewInventoryMetrics(prometheus.DefaultRegisterer),
		DefaultLowStockThreshold: cfg.Inventory.DefaultLowStockThreshold,
	}
	if cfg.Inventory.StockCacheTTL > 0 {
		cache, err := inventory.NewRedisStockCache(redisClient, cfg.Inventory.StockCacheTTL)
		if err != nil {
			return nil, err
		}
		params.Cache = cache
	}
	return inventory.NewService(params)
}
