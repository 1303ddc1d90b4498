package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maerai/maer/internal/analyst"
	"github.com/maerai/maer/internal/api"
	"github.com/maerai/maer/internal/auth"
	"github.com/maerai/maer/internal/config"
	"github.com/maerai/maer/internal/dataset"
	"github.com/maerai/maer/internal/llm"
	"github.com/maerai/maer/internal/nl2sql"
	"github.com/maerai/maer/internal/observability"
	"github.com/maerai/maer/internal/schema"
	"github.com/maerai/maer/internal/session"
)

func main() {
	cfg, err := config.LoadFromEnv("maer-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	source, err := dataset.SourceFromConfig(context.Background(), cfg.Dataset)
	if err != nil {
		logger.Error("failed to initialize dataset source", slog.Any("error", err))
		os.Exit(1)
	}
	loader, err := dataset.NewLoader(source, cfg.Dataset.PrimaryView, logger)
	if err != nil {
		logger.Error("failed to initialize dataset loader", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = loader.Close() }()

	catalog := schema.NewCatalog(cfg.Pipeline.ColumnLimit)
	sessions, err := session.NewManager(loader, catalog, session.Options{
		MaxSessions: cfg.Sessions.MaxSessions,
		MemoryLimit: cfg.Pipeline.MemoryLimit,
	}, logger)
	if err != nil {
		logger.Error("failed to initialize session manager", slog.Any("error", err))
		os.Exit(1)
	}

	client, err := llm.New(cfg.AI)
	if err != nil {
		logger.Error("failed to initialize model client", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.AI.APIKey == "" {
		logger.Warn("model credential missing; questions will fail until it is set", slog.String("credential", cfg.AI.CredentialName))
	}

	prompts := nl2sql.NewPromptBuilder(cfg.Dataset.PrimaryView, cfg.Dataset.TimestampColumn, cfg.Dataset.Note)
	service, err := analyst.NewService(client, catalog, prompts, analyst.OptionsFrom(cfg), logger)
	if err != nil {
		logger.Error("failed to initialize analyst service", slog.Any("error", err))
		os.Exit(1)
	}

	deps := api.Dependencies{
		Logger:   logger,
		Sessions: sessions,
		Analyst:  service,
		Readiness: api.CombineReadinessChecks(
			api.CheckDatasetConfig(cfg),
			api.CheckModelCredential(cfg),
		),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      api.NewHandler(cfg, deps),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("dataset_source", string(cfg.Dataset.Source)),
			slog.String("model_provider", client.Provider()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	shutdownErr := server.Shutdown(shutdownCtx)
	if err := sessions.CloseAll(); err != nil {
		logger.Error("closing sessions failed", slog.Any("error", err))
	}
	if shutdownErr != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", shutdownErr))
		_ = server.Close()
		os.Exit(1)
	}
}
