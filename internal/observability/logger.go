package observability

import (
	"context"
	"io"
	"log/slog"

	"github.com/maerai/maer/internal/config"
)

type ctxKey struct{}

// NewLogger builds the process logger. Every record carries the service name
// and profile.
func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	opts := &slog.HandlerOptions{Level: cfg.Observability.LogLevel}
	var handler slog.Handler = slog.NewTextHandler(writer, opts)
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(writer, opts)
	}
	return slog.New(handler).With(
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
	)
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, traceID)
}

func TraceIDFromContext(ctx context.Context) string {
	value, _ := ctx.Value(ctxKey{}).(string)
	return value
}
