package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/marketplace-inventory/internal/cron"
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

const serviceName = "cron-worker"

// errJobsFailed fails a -once run so deploy hooks notice broken jobs.
var errJobsFailed = errors.New("one or more cron jobs failed")

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceName
	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
		"once":        *once,
	})

	err = run(ctx, cfg, logg, *once)
	stop()
	if err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

// run owns every connection so they close before main picks the exit code.
func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, once bool) error {
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

	service, err := newCronService(cfg, logg, dbClient, redisClient, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}

	if once {
		report, err := service.RunOnce(ctx)
		if err != nil {
			return fmt.Errorf("cron cycle: %w", err)
		}
		if report.Failed() > 0 {
			return errJobsFailed
		}
		return nil
	}

	metricsServer := metrics.Serve(ctx, logg, cfg.Cron.MetricsAddr, prometheus.DefaultGatherer)
	defer metricsServer.Shutdown()

	logg.Info(ctx, "starting cron worker")
	return service.Run(ctx)
}

func newCronService(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client, reg prometheus.Registerer) (*cron.Service, error) {
	store, err := inventory.NewGormStore(inventory.GormStoreParams{
		DB:     dbClient.DB(),
		Logger: logg,
	})
	if err != nil {
		return nil, fmt.Errorf("create inventory store: %w", err)
	}

	auditJob, err := cron.NewInventoryAuditJob(cron.InventoryAuditJobParams{
		Logger:    logg,
		Inventory: store,
		Metrics:   metrics.NewInventoryMetrics(reg),
		BatchSize: cfg.Cron.AuditBatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("create inventory audit job: %w", err)
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outbox.NewRepository(dbClient.DB()),
		Retention:  time.Duration(cfg.Outbox.RetentionDays) * 24 * time.Hour,
		BatchSize:  cfg.Outbox.RetentionBatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("create outbox retention job: %w", err)
	}

	jobs, err := cron.NewRegistry(auditJob, retentionJob)
	if err != nil {
		return nil, fmt.Errorf("register cron jobs: %w", err)
	}
	lock, err := cron.NewRedisLock(redisClient, lockName(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("create cron lock: %w", err)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   jobs,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(reg),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create cron service: %w", err)
	}
	return service, nil
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return serviceName + ":" + env
}

func closeWith(ctx context.Context, logg *logger.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(ctx, "error closing "+what, err)
	}
}
