package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vastralabs/vastra-backend/internal/analytics"
	"github.com/vastralabs/vastra-backend/internal/blobstore"
	"github.com/vastralabs/vastra-backend/internal/catalog"
	"github.com/vastralabs/vastra-backend/internal/orders"
	"github.com/vastralabs/vastra-backend/pkg/config"
	"github.com/vastralabs/vastra-backend/pkg/db"
	pkgerrors "github.com/vastralabs/vastra-backend/pkg/errors"
	"github.com/vastralabs/vastra-backend/pkg/logger"
	"github.com/vastralabs/vastra-backend/pkg/metrics"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "catalogd"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "catalogd",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx := logg.WithField(context.Background(), "env", cfg.App.Env)
	if cfg.App.IsDev() {
		logg.Debug(logg.WithFields(ctx, map[string]any{
			"driver":      cfg.DB.Driver,
			"metricsPort": cfg.App.MetricsPort,
			"maxBlob":     cfg.Storage.MaxBlobBytes,
		}), "running with dev configuration")
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	blobs, err := blobstore.New(dbClient, cfg.Storage.MaxBlobBytes)
	if err != nil {
		logg.Error(ctx, "failed to build blob store", err)
		os.Exit(1)
	}
	if err := blobs.Migrate(ctx); err != nil {
		logg.Error(ctx, "failed to migrate blob storage", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	storeMetrics := metrics.NewStoreMetrics(registry)

	products, err := catalog.NewProductStore(blobs, logg, storeMetrics, cfg.Storage.ShedRetainCount)
	if err != nil {
		logg.Error(ctx, "failed to build product store", err)
		os.Exit(1)
	}
	collections, err := catalog.NewCollectionRegistry(blobs, products, logg, storeMetrics)
	if err != nil {
		logg.Error(ctx, "failed to build collection registry", err)
		os.Exit(1)
	}
	ledger, err := orders.NewLedger(blobs, logg, storeMetrics)
	if err != nil {
		logg.Error(ctx, "failed to build order ledger", err)
		os.Exit(1)
	}

	seed := &catalog.SeedData{}
	if cfg.Catalog.SeedFile != "" {
		seed, err = catalog.LoadSeedFile(cfg.Catalog.SeedFile)
		if err != nil {
			logg.Error(ctx, "failed to load seed catalog", err)
			os.Exit(1)
		}
	}
	if err := products.Bootstrap(ctx, seed.Products); err != nil {
		logg.Error(ctx, "failed to bootstrap product store", err)
		os.Exit(1)
	}
	if err := collections.Bootstrap(ctx, seed.Collections); err != nil {
		logg.Error(ctx, "failed to bootstrap collection registry", err)
		os.Exit(1)
	}
	if err := ledger.Bootstrap(ctx); err != nil {
		logg.Error(ctx, "failed to bootstrap order ledger", err)
		os.Exit(1)
	}

	if recent, err := ledger.ListLastNDays(ctx, 7); err == nil {
		now := time.Now()
		week := analytics.DailyRevenueSeries(recent, now.AddDate(0, 0, -6), now)
		orderCount := 0
		revenue := 0.0
		for _, day := range week {
			orderCount += day.Orders
			revenue += day.Revenue
		}
		logg.Info(logg.WithFields(ctx, map[string]any{
			"orders":  orderCount,
			"revenue": revenue,
		}), "trailing week ledger recap")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := dbClient.Ping(r.Context()); err != nil {
			meta := pkgerrors.MetadataFor(pkgerrors.CodeDependency)
			http.Error(w, meta.PublicMessage, meta.HTTPStatus)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:    ":" + cfg.App.MetricsPort,
		Handler: mux,
	}

	go func() {
		logg.Info(logg.WithField(ctx, "addr", server.Addr), "catalogd serving metrics")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics server stopped unexpectedly", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logg.Info(ctx, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(ctx, "error during shutdown", err)
	}
}
