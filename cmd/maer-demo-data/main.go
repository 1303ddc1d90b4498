package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/maerai/maer/internal/config"
	"github.com/maerai/maer/internal/dataset/postgres"
	"github.com/maerai/maer/internal/demo"
	"github.com/maerai/maer/internal/migrations"
	"github.com/maerai/maer/internal/storage/s3"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := demo.LoadConfigFromEnv(os.LookupEnv)
	if err != nil {
		logger.Error("failed to load demo data config", slog.Any("error", err))
		os.Exit(1)
	}

	generator, err := demo.NewGenerator(cfg.Generator)
	if err != nil {
		logger.Error("invalid generator options", slog.Any("error", err))
		os.Exit(1)
	}
	ds := generator.Generate()
	files, err := ds.Encode(cfg.Format)
	if err != nil {
		logger.Error("failed to encode dataset", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OutputDir != "" {
		if err := demo.WriteDir(cfg.OutputDir, files); err != nil {
			logger.Error("failed to write dataset", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("dataset written", slog.String("dir", cfg.OutputDir), slog.Int("files", len(files)), slog.String("format", string(cfg.Format)))
	}

	if cfg.Upload {
		appCfg, err := config.LoadFromEnv("maer-demo-data")
		if err != nil {
			logger.Error("failed to load object store config", slog.Any("error", err))
			os.Exit(1)
		}
		store, err := s3.New(ctx, s3.ConfigFrom(appCfg.Dataset.ObjectStore))
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		if err := demo.Upload(ctx, store, files); err != nil {
			logger.Error("failed to upload dataset", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("dataset uploaded",
			slog.String("bucket", appCfg.Dataset.ObjectStore.Bucket),
			slog.String("prefix", appCfg.Dataset.ObjectStore.Prefix),
			slog.Int("files", len(files)),
		)
	}

	if cfg.PostgresDSN != "" {
		db, err := postgres.Open(ctx, postgres.DBConfig{DSN: cfg.PostgresDSN})
		if err != nil {
			logger.Error("failed to open postgres", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()

		applied, err := migrations.NewRunner().Up(ctx, db, 0)
		if err != nil {
			logger.Error("failed to migrate postgres", slog.Any("error", err))
			os.Exit(1)
		}
		if err := demo.SeedPostgres(ctx, db, ds); err != nil {
			logger.Error("failed to seed postgres", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("postgres seeded", slog.Int("migrations_applied", applied), slog.Int("orders", len(ds.Orders)))
	}
}
