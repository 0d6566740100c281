package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/cargoloop/forwarder-backend/api/routes"
	"github.com/cargoloop/forwarder-backend/internal/boxes"
	"github.com/cargoloop/forwarder-backend/internal/carriers"
	"github.com/cargoloop/forwarder-backend/internal/packages"
	"github.com/cargoloop/forwarder-backend/internal/platformconfig"
	"github.com/cargoloop/forwarder-backend/internal/shipping"
	"github.com/cargoloop/forwarder-backend/pkg/config"
	"github.com/cargoloop/forwarder-backend/pkg/db"
	"github.com/cargoloop/forwarder-backend/pkg/logger"
	"github.com/cargoloop/forwarder-backend/pkg/metrics"
	"github.com/cargoloop/forwarder-backend/pkg/migrate"
	"github.com/cargoloop/forwarder-backend/pkg/outbox"
	"github.com/cargoloop/forwarder-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	carrierMetrics := metrics.NewCarrierMetrics(registry)

	settingsProvider, err := platformconfig.NewProvider(context.Background(), dbClient.DB(), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to load platform config", err)
		os.Exit(1)
	}

	carrierRegistry := carriers.BuildActive(context.Background(), cfg.Carriers, carrierMetrics, logg)

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	lockManager, err := boxes.NewRedisLockManager(redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create box lock manager", err)
		os.Exit(1)
	}

	boxService, err := boxes.NewService(
		boxes.NewRepository(dbClient.DB()),
		packages.NewRepository(dbClient.DB()),
		dbClient,
		outboxService,
		settingsProvider,
		lockManager,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create box service", err)
		os.Exit(1)
	}

	shippingService, err := shipping.NewService(
		shipping.NewRepository(dbClient.DB()),
		carrierRegistry,
		boxService,
		dbClient,
		outboxService,
		settingsProvider,
		cfg.RateShopping,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create shipping service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			redisClient,
			registry,
			settingsProvider,
			boxService,
			shippingService,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
