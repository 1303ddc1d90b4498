package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

type DatasetSource string

const (
	DatasetSourceDir      DatasetSource = "dir"
	DatasetSourceS3       DatasetSource = "s3"
	DatasetSourcePostgres DatasetSource = "postgres"
)

type Provider string

const (
	ProviderGemini Provider = "gemini"
	ProviderOpenAI Provider = "openai"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Dataset       DatasetConfig
	AI            AIConfig
	Pipeline      PipelineConfig
	Sessions      SessionConfig
	Observability ObservabilityConfig
	Auth          AuthConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatasetConfig struct {
	Source          DatasetSource
	Path            string
	PrimaryView     string
	TimestampColumn string
	Note            string
	ObjectStore     ObjectStoreConfig
	Postgres        PostgresConfig
}

type ObjectStoreConfig struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Prefix          string
}

type PostgresConfig struct {
	DSN    string
	Schema string
}

type AIConfig struct {
	Provider       Provider
	BaseURL        string
	APIKey         string
	CredentialName string
	Model          string
	Temperature    float64
	Timeout        time.Duration
}

type PipelineConfig struct {
	MemoryLimit     int
	SummaryWindow   int
	ColumnLimit     int
	RepairBudget    int
	ResultRowLimit  int
	PreviewRows     int
	InsightsEnabled bool
	SQLLabReadOnly  bool
}

type SessionConfig struct {
	MaxSessions int
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

type AuthConfig struct {
	Required   bool
	StaticKeys string
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("MAER_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid MAER_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	var source, provider string
	appliers := []func() error{
		func() error { return applyString(lookup, "MAER_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "MAER_HTTP_ADDR", &cfg.HTTP.Address) },
		func() error { return applyDuration(lookup, "MAER_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout) },
		func() error { return applyDuration(lookup, "MAER_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout) },
		func() error { return applyDuration(lookup, "MAER_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout) },
		func() error { return applyString(lookup, "MAER_DATASET_SOURCE", &source) },
		func() error { return applyString(lookup, "MAER_DATASET_PATH", &cfg.Dataset.Path) },
		func() error { return applyString(lookup, "MAER_DATASET_PRIMARY_VIEW", &cfg.Dataset.PrimaryView) },
		func() error { return applyString(lookup, "MAER_DATASET_TIMESTAMP_COLUMN", &cfg.Dataset.TimestampColumn) },
		func() error { return applyString(lookup, "MAER_DATASET_NOTE", &cfg.Dataset.Note) },
		func() error { return applyString(lookup, "MAER_DATASET_S3_ENDPOINT", &cfg.Dataset.ObjectStore.Endpoint) },
		func() error { return applyString(lookup, "MAER_DATASET_S3_REGION", &cfg.Dataset.ObjectStore.Region) },
		func() error { return applyString(lookup, "MAER_DATASET_S3_BUCKET", &cfg.Dataset.ObjectStore.Bucket) },
		func() error { return applyString(lookup, "MAER_DATASET_S3_ACCESS_KEY", &cfg.Dataset.ObjectStore.AccessKeyID) },
		func() error { return applyString(lookup, "MAER_DATASET_S3_SECRET_KEY", &cfg.Dataset.ObjectStore.SecretAccessKey) },
		func() error { return applyBool(lookup, "MAER_DATASET_S3_USE_SSL", &cfg.Dataset.ObjectStore.UseSSL) },
		func() error { return applyString(lookup, "MAER_DATASET_S3_PREFIX", &cfg.Dataset.ObjectStore.Prefix) },
		func() error { return applyString(lookup, "MAER_DATASET_POSTGRES_DSN", &cfg.Dataset.Postgres.DSN) },
		func() error { return applyString(lookup, "MAER_DATASET_POSTGRES_SCHEMA", &cfg.Dataset.Postgres.Schema) },
		func() error { return applyString(lookup, "MAER_AI_PROVIDER", &provider) },
		func() error { return applyString(lookup, "MAER_AI_BASE_URL", &cfg.AI.BaseURL) },
		func() error { return applyString(lookup, "GEMINI_API_KEY", &cfg.AI.APIKey) },
		func() error { return applyString(lookup, "MAER_AI_API_KEY", &cfg.AI.APIKey) },
		func() error { return applyString(lookup, "MAER_AI_CREDENTIAL_NAME", &cfg.AI.CredentialName) },
		func() error { return applyString(lookup, "MAER_AI_MODEL", &cfg.AI.Model) },
		func() error { return applyFloat(lookup, "MAER_AI_TEMPERATURE", &cfg.AI.Temperature) },
		func() error { return applyDuration(lookup, "MAER_AI_TIMEOUT", &cfg.AI.Timeout) },
		func() error { return applyInt(lookup, "MAER_PIPELINE_MEMORY_LIMIT", &cfg.Pipeline.MemoryLimit) },
		func() error { return applyInt(lookup, "MAER_PIPELINE_SUMMARY_WINDOW", &cfg.Pipeline.SummaryWindow) },
		func() error { return applyInt(lookup, "MAER_PIPELINE_COLUMN_LIMIT", &cfg.Pipeline.ColumnLimit) },
		func() error { return applyInt(lookup, "MAER_PIPELINE_REPAIR_BUDGET", &cfg.Pipeline.RepairBudget) },
		func() error { return applyInt(lookup, "MAER_PIPELINE_RESULT_ROW_LIMIT", &cfg.Pipeline.ResultRowLimit) },
		func() error { return applyInt(lookup, "MAER_PIPELINE_PREVIEW_ROWS", &cfg.Pipeline.PreviewRows) },
		func() error { return applyBool(lookup, "MAER_PIPELINE_INSIGHTS_ENABLED", &cfg.Pipeline.InsightsEnabled) },
		func() error { return applyBool(lookup, "MAER_SQLLAB_READ_ONLY", &cfg.Pipeline.SQLLabReadOnly) },
		func() error { return applyInt(lookup, "MAER_SESSIONS_MAX", &cfg.Sessions.MaxSessions) },
		func() error { return applyBool(lookup, "MAER_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "MAER_LOG_LEVEL", &cfg.Observability.LogLevel) },
		func() error { return applyBool(lookup, "MAER_AUTH_REQUIRED", &cfg.Auth.Required) },
		func() error { return applyString(lookup, "MAER_AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys) },
	}
	for _, apply := range appliers {
		if err := apply(); err != nil {
			return Config{}, err
		}
	}

	if source != "" {
		cfg.Dataset.Source = DatasetSource(strings.ToLower(source))
	}
	if provider != "" {
		cfg.AI.Provider = Provider(strings.ToLower(provider))
	}
	if cfg.AI.Provider == ProviderOpenAI {
		if _, ok := lookup("MAER_AI_BASE_URL"); !ok {
			cfg.AI.BaseURL = "https://api.openai.com"
		}
		if _, ok := lookup("MAER_AI_MODEL"); !ok {
			cfg.AI.Model = "gpt-5"
		}
		if _, ok := lookup("MAER_AI_CREDENTIAL_NAME"); !ok {
			cfg.AI.CredentialName = "OPENAI_API_KEY"
		}
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if cfg.HTTP.Address == "" {
		return fmt.Errorf("http address is required")
	}
	switch cfg.Dataset.Source {
	case DatasetSourceDir:
		if cfg.Dataset.Path == "" {
			return fmt.Errorf("MAER_DATASET_PATH is required for dir source")
		}
	case DatasetSourceS3:
		if cfg.Dataset.ObjectStore.Endpoint == "" || cfg.Dataset.ObjectStore.Bucket == "" {
			return fmt.Errorf("MAER_DATASET_S3_ENDPOINT and MAER_DATASET_S3_BUCKET are required for s3 source")
		}
	case DatasetSourcePostgres:
		if cfg.Dataset.Postgres.DSN == "" {
			return fmt.Errorf("MAER_DATASET_POSTGRES_DSN is required for postgres source")
		}
	default:
		return fmt.Errorf("invalid MAER_DATASET_SOURCE: %q", cfg.Dataset.Source)
	}
	if cfg.Dataset.PrimaryView == "" {
		return fmt.Errorf("MAER_DATASET_PRIMARY_VIEW is required")
	}
	if cfg.Dataset.TimestampColumn == "" {
		return fmt.Errorf("MAER_DATASET_TIMESTAMP_COLUMN is required")
	}
	switch cfg.AI.Provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("invalid MAER_AI_PROVIDER: %q", cfg.AI.Provider)
	}
	if cfg.Pipeline.MemoryLimit <= 0 {
		return fmt.Errorf("MAER_PIPELINE_MEMORY_LIMIT must be > 0")
	}
	if cfg.Pipeline.SummaryWindow <= 0 {
		return fmt.Errorf("MAER_PIPELINE_SUMMARY_WINDOW must be > 0")
	}
	if cfg.Pipeline.ColumnLimit <= 0 {
		return fmt.Errorf("MAER_PIPELINE_COLUMN_LIMIT must be > 0")
	}
	if cfg.Pipeline.RepairBudget < 0 {
		return fmt.Errorf("MAER_PIPELINE_REPAIR_BUDGET must be >= 0")
	}
	if cfg.Sessions.MaxSessions < 0 {
		return fmt.Errorf("MAER_SESSIONS_MAX must be >= 0")
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "maer-api"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 3 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		Dataset: DatasetConfig{
			Source:          DatasetSourceDir,
			Path:            "data/olist",
			PrimaryView:     "sales_enriched",
			TimestampColumn: "order_purchase_timestamp",
			Note:            "The Olist dataset contains historical timestamps (2016–2018).",
			ObjectStore: ObjectStoreConfig{
				Region: "us-east-1",
			},
			Postgres: PostgresConfig{
				Schema: "public",
			},
		},
		AI: AIConfig{
			Provider:       ProviderGemini,
			BaseURL:        "https://generativelanguage.googleapis.com",
			CredentialName: "GEMINI_API_KEY",
			Model:          "gemini-2.0-flash",
			Temperature:    0.1,
			Timeout:        60 * time.Second,
		},
		Pipeline: PipelineConfig{
			MemoryLimit:     15,
			SummaryWindow:   6,
			ColumnLimit:     10,
			RepairBudget:    1,
			ResultRowLimit:  10000,
			PreviewRows:     10,
			InsightsEnabled: true,
			SQLLabReadOnly:  false,
		},
		Sessions: SessionConfig{
			MaxSessions: 64,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
		Auth: AuthConfig{
			Required:   false,
			StaticKeys: "",
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
		cfg.Pipeline.InsightsEnabled = false
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Auth.Required = true
		cfg.Pipeline.SQLLabReadOnly = true
		cfg.Dataset.ObjectStore.UseSSL = true
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
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

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
