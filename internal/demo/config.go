package demo

import (
	"fmt"
	"strconv"
	"strings"
)

type LookupFunc func(string) (string, bool)

type Config struct {
	OutputDir   string
	Format      Format
	Upload      bool
	// PostgresDSN, when set, seeds the Olist tables in that database.
	PostgresDSN string
	Generator   Options
}

func DefaultConfig() Config {
	return Config{
		OutputDir: "data/olist",
		Format:    FormatCSV,
		Generator: DefaultOptions(),
	}
}

func LoadConfigFromEnv(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	cfg := DefaultConfig()
	if raw, ok := lookup("MAER_DEMO_OUTPUT_DIR"); ok {
		cfg.OutputDir = strings.TrimSpace(raw)
	}
	if raw, ok := lookup("MAER_DEMO_FORMAT"); ok {
		format, err := ParseFormat(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid MAER_DEMO_FORMAT: %w", err)
		}
		cfg.Format = format
	}
	if raw, ok := lookup("MAER_DEMO_UPLOAD"); ok {
		upload, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return Config{}, fmt.Errorf("invalid MAER_DEMO_UPLOAD: %w", err)
		}
		cfg.Upload = upload
	}
	if raw, ok := lookup("MAER_DEMO_POSTGRES_DSN"); ok {
		cfg.PostgresDSN = strings.TrimSpace(raw)
	}
	if err := applyInt(lookup, "MAER_DEMO_ORDERS", &cfg.Generator.Orders); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "MAER_DEMO_CUSTOMERS", &cfg.Generator.Customers); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "MAER_DEMO_PRODUCTS", &cfg.Generator.Products); err != nil {
		return Config{}, err
	}
	if raw, ok := lookup("MAER_DEMO_SEED"); ok && strings.TrimSpace(raw) != "" {
		seed, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid MAER_DEMO_SEED: %w", err)
		}
		cfg.Generator.Seed = seed
	}

	if !cfg.Upload && cfg.PostgresDSN == "" && cfg.OutputDir == "" {
		return Config{}, fmt.Errorf("MAER_DEMO_OUTPUT_DIR is required unless MAER_DEMO_UPLOAD or MAER_DEMO_POSTGRES_DSN is set")
	}
	if cfg.Generator.Orders <= 0 {
		return Config{}, fmt.Errorf("MAER_DEMO_ORDERS must be > 0")
	}
	if cfg.Generator.Customers <= 0 {
		return Config{}, fmt.Errorf("MAER_DEMO_CUSTOMERS must be > 0")
	}
	if cfg.Generator.Products <= 0 {
		return Config{}, fmt.Errorf("MAER_DEMO_PRODUCTS must be > 0")
	}
	return cfg, nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}
