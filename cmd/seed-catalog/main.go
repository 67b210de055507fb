package main

import (
	"context"
	"flag"
	"os"

	"github.com/joho/godotenv"
	"github.com/vastralabs/vastra-backend/internal/blobstore"
	"github.com/vastralabs/vastra-backend/internal/catalog"
	"github.com/vastralabs/vastra-backend/pkg/config"
	"github.com/vastralabs/vastra-backend/pkg/db"
	"github.com/vastralabs/vastra-backend/pkg/logger"
)

// seed-catalog runs the boot merge against the configured database and
// exits. Safe to re-run: persisted records win by id, only new seed ids
// are appended.
func main() {
	logg := logger.New(logger.Options{ServiceName: "seed-catalog"})

	_ = godotenv.Load()

	file := flag.String("file", "", "seed catalog JSON file (defaults to VASTRA_CATALOG_SEED_FILE)")
	reset := flag.Bool("reset", false, "delete the persisted catalog blobs before merging (dev only)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "seed-catalog",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	path := *file
	if path == "" {
		path = cfg.Catalog.SeedFile
	}
	if path == "" {
		logg.Error(context.Background(), "no seed file given", nil)
		os.Exit(1)
	}

	ctx := logg.WithField(context.Background(), "file", path)

	seed, err := catalog.LoadSeedFile(path)
	if err != nil {
		logg.Error(ctx, "failed to load seed catalog", err)
		os.Exit(1)
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

	if *reset {
		// Wiping persisted user edits is never acceptable against prod data.
		if cfg.App.IsProd() {
			logg.Error(ctx, "-reset refused against a prod environment", nil)
			os.Exit(1)
		}
		if err := blobs.Reset(ctx, blobstore.KeyProducts, blobstore.KeyCollections); err != nil {
			logg.Error(ctx, "failed to reset catalog blobs", err)
			os.Exit(1)
		}
		logg.Warn(ctx, "catalog blobs reset, merging seed from scratch")
	}

	products, err := catalog.NewProductStore(blobs, logg, nil, cfg.Storage.ShedRetainCount)
	if err != nil {
		logg.Error(ctx, "failed to build product store", err)
		os.Exit(1)
	}
	collections, err := catalog.NewCollectionRegistry(blobs, products, logg, nil)
	if err != nil {
		logg.Error(ctx, "failed to build collection registry", err)
		os.Exit(1)
	}

	if err := products.Bootstrap(ctx, seed.Products); err != nil {
		logg.Error(ctx, "failed to merge product seed", err)
		os.Exit(1)
	}
	if err := collections.Bootstrap(ctx, seed.Collections); err != nil {
		logg.Error(ctx, "failed to merge collection seed", err)
		os.Exit(1)
	}

	logg.Info(logg.WithFields(ctx, map[string]any{
		"seedProducts":    len(seed.Products),
		"seedCollections": len(seed.Collections),
	}), "seed merge complete")
}
