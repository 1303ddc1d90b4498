package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/maerai/maer/internal/analyst"
	"github.com/maerai/maer/internal/auth"
	"github.com/maerai/maer/internal/config"
	"github.com/maerai/maer/internal/observability"
	"github.com/maerai/maer/internal/query"
	"github.com/maerai/maer/internal/schema"
	"github.com/maerai/maer/internal/session"
)

const maxRequestBody = 1 << 20

type ReadinessCheck func(ctx context.Context) error

type SessionManager interface {
	Create(ctx context.Context, owner string) (*session.Session, error)
	Get(id, owner string) (*session.Session, error)
	Reload(ctx context.Context, sess *session.Session) error
	Close(id, owner string) error
}

type Analyst interface {
	SubmitQuestion(ctx context.Context, sess *session.Session, question string) (analyst.Answer, error)
	RunManualQuery(ctx context.Context, sess *session.Session, statement string) (query.Result, error)
	ResetMemory(sess *session.Session)
	SetReasoningDisplay(sess *session.Session, enabled bool)
	Schema(ctx context.Context, sess *session.Session) ([]schema.Table, string, error)
	Presets() []analyst.Preset
	RunPreset(ctx context.Context, sess *session.Session, name string) (analyst.Preset, query.Result, error)
	Overview(ctx context.Context, sess *session.Session) (analyst.Overview, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Sessions          SessionManager
	Analyst           Analyst
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", observability.MetricsHandler())

	protected := http.NewServeMux()
	if deps.Sessions == nil || deps.Analyst == nil {
		protected.HandleFunc("/v1/", func(w http.ResponseWriter, r *http.Request) {
			writeError(r.Context(), w, http.StatusNotImplemented, "ANALYST_NOT_CONFIGURED", "analyst dependencies are not configured", false, nil)
		})
	} else {
		h := &handlers{sessions: deps.Sessions, analyst: deps.Analyst, logger: deps.Logger}
		h.register(protected)
	}

	var protectedHandler http.Handler = protected
	switch {
	case !cfg.Auth.Required:
		protectedHandler = auth.Static(auth.Local)(protectedHandler)
	case deps.AuthMiddleware == nil:
		if deps.Logger != nil {
			deps.Logger.Error("auth required but auth middleware missing")
		}
		protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
		})
	default:
		protectedHandler = deps.AuthMiddleware(protectedHandler)
	}
	mux.Handle("/v1/", protectedHandler)

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

// CheckDatasetConfig reports whether the configured dataset location exists
// or is at least fully specified.
func CheckDatasetConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		switch cfg.Dataset.Source {
		case config.DatasetSourceDir:
			info, err := os.Stat(cfg.Dataset.Path)
			if err != nil {
				return fmt.Errorf("dataset directory: %w", err)
			}
			if !info.IsDir() {
				return fmt.Errorf("dataset path %q is not a directory", cfg.Dataset.Path)
			}
		case config.DatasetSourceS3:
			if cfg.Dataset.ObjectStore.Endpoint == "" || cfg.Dataset.ObjectStore.Bucket == "" {
				return errors.New("object store endpoint and bucket are required")
			}
		case config.DatasetSourcePostgres:
			if cfg.Dataset.Postgres.DSN == "" {
				return errors.New("postgres dsn is not configured")
			}
		}
		return nil
	}
}

// CheckModelCredential fails while no API key is configured; every question
// would otherwise fail with a missing credential.
func CheckModelCredential(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.AI.APIKey == "" {
			return fmt.Errorf("missing %s", cfg.AI.CredentialName)
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid request body", false, map[string]any{"details": err.Error()})
		return false
	}
	return true
}
