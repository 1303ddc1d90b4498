package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/maerai/maer/internal/cli/maerctl"
)

func main() {
	timeout := parseDurationWithDefault(strings.TrimSpace(os.Getenv("MAER_CLI_TIMEOUT")), 90*time.Second)
	options := maerctl.Options{
		BaseURL: envOr("MAER_API_URL", "http://localhost:8080"),
		APIKey:  strings.TrimSpace(os.Getenv("MAER_API_KEY")),
		Timeout: timeout,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}

	os.Exit(maerctl.Run(context.Background(), os.Args[1:], options))
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseDurationWithDefault(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid MAER_CLI_TIMEOUT %q; using %s\n", raw, fallback)
		return fallback
	}
	return parsed
}
