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

const envPrefix = "BUDGETLENS_"

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Catalog       CatalogConfig
	ObjectStore   ObjectStoreConfig
	Dataset       DatasetConfig
	AI            AIConfig
	Cache         CacheConfig
	Secrets       SecretsConfig
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

// CatalogConfig describes the Postgres database holding the column catalog
// and the conversion history. An empty DSN disables both.
type CatalogConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

type ObjectStoreConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type SchemaSource string

const (
	SchemaSourceEmbedded    SchemaSource = "embedded"
	SchemaSourceFile        SchemaSource = "file"
	SchemaSourceObjectStore SchemaSource = "objectstore"
	SchemaSourceCatalog     SchemaSource = "catalog"
)

type DatasetConfig struct {
	Table        string
	SchemaSource SchemaSource
	SchemaPath   string
	DataPrefix   string
	RowLimit     int
	Dialect      string
}

type AIConfig struct {
	Enabled         bool
	Provider        string
	BaseURL         string
	Model           string
	APIKeySecret    string
	Temperature     float64
	TopP            float64
	TopK            int
	MaxOutputTokens int
	Timeout         time.Duration
	RatePerSecond   float64
	RateBurst       int
	Strategies      []string
}

type CacheConfig struct {
	TTL time.Duration
}

type SecretsConfig struct {
	Source string
	Dir    string
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
	if raw, ok := lookup(envPrefix + "PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid %sPROFILE: %q", envPrefix, profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	var schemaSource, strategies string
	schemaSource = string(cfg.Dataset.SchemaSource)
	strategies = strings.Join(cfg.AI.Strategies, ",")

	steps := []error{
		applyString(lookup, "SERVICE_NAME", &cfg.Service.Name),
		applyString(lookup, "HTTP_ADDR", &cfg.HTTP.Address),
		applyDuration(lookup, "HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout),
		applyDuration(lookup, "HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout),
		applyDuration(lookup, "HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout),
		applyString(lookup, "CATALOG_DSN", &cfg.Catalog.DSN),
		applyInt(lookup, "CATALOG_MAX_OPEN_CONNS", &cfg.Catalog.MaxOpenConns),
		applyInt(lookup, "CATALOG_MAX_IDLE_CONNS", &cfg.Catalog.MaxIdleConns),
		applyDuration(lookup, "CATALOG_CONN_MAX_IDLE_TIME", &cfg.Catalog.ConnMaxIdleTime),
		applyDuration(lookup, "CATALOG_CONN_MAX_LIFETIME", &cfg.Catalog.ConnMaxLifetime),
		applyString(lookup, "OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint),
		applyString(lookup, "OBJECTSTORE_REGION", &cfg.ObjectStore.Region),
		applyString(lookup, "OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket),
		applyString(lookup, "OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID),
		applyString(lookup, "OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey),
		applyBool(lookup, "OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL),
		applyString(lookup, "OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix),
		applyBool(lookup, "OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket),
		applyString(lookup, "DATASET_TABLE", &cfg.Dataset.Table),
		applyString(lookup, "DATASET_SCHEMA_SOURCE", &schemaSource),
		applyString(lookup, "DATASET_SCHEMA_PATH", &cfg.Dataset.SchemaPath),
		applyString(lookup, "DATASET_DATA_PREFIX", &cfg.Dataset.DataPrefix),
		applyInt(lookup, "DATASET_ROW_LIMIT", &cfg.Dataset.RowLimit),
		applyString(lookup, "DATASET_DIALECT", &cfg.Dataset.Dialect),
		applyBool(lookup, "AI_ENABLED", &cfg.AI.Enabled),
		applyString(lookup, "AI_PROVIDER", &cfg.AI.Provider),
		applyString(lookup, "AI_BASE_URL", &cfg.AI.BaseURL),
		applyString(lookup, "AI_MODEL", &cfg.AI.Model),
		applyString(lookup, "AI_API_KEY_SECRET", &cfg.AI.APIKeySecret),
		applyFloat(lookup, "AI_TEMPERATURE", &cfg.AI.Temperature),
		applyFloat(lookup, "AI_TOP_P", &cfg.AI.TopP),
		applyInt(lookup, "AI_TOP_K", &cfg.AI.TopK),
		applyInt(lookup, "AI_MAX_OUTPUT_TOKENS", &cfg.AI.MaxOutputTokens),
		applyDuration(lookup, "AI_TIMEOUT", &cfg.AI.Timeout),
		applyFloat(lookup, "AI_RATE_PER_SECOND", &cfg.AI.RatePerSecond),
		applyInt(lookup, "AI_RATE_BURST", &cfg.AI.RateBurst),
		applyString(lookup, "AI_STRATEGIES", &strategies),
		applyDuration(lookup, "CACHE_TTL", &cfg.Cache.TTL),
		applyString(lookup, "SECRETS_SOURCE", &cfg.Secrets.Source),
		applyString(lookup, "SECRETS_DIR", &cfg.Secrets.Dir),
		applyBool(lookup, "LOG_JSON", &cfg.Observability.LogJSON),
		applyLogLevel(lookup, "LOG_LEVEL", &cfg.Observability.LogLevel),
		applyBool(lookup, "AUTH_REQUIRED", &cfg.Auth.Required),
		applyString(lookup, "AUTH_STATIC_KEYS", &cfg.Auth.StaticKeys),
	}
	for _, err := range steps {
		if err != nil {
			return Config{}, err
		}
	}

	cfg.Dataset.SchemaSource = SchemaSource(strings.ToLower(schemaSource))
	cfg.AI.Strategies = splitList(strategies)
	cfg.AI.Provider = strings.ToLower(cfg.AI.Provider)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if c.HTTP.Address == "" {
		return fmt.Errorf("http address is required")
	}
	if c.Dataset.Table == "" {
		return fmt.Errorf("dataset table is required")
	}
	switch c.Dataset.SchemaSource {
	case SchemaSourceEmbedded, SchemaSourceObjectStore:
	case SchemaSourceFile:
		if c.Dataset.SchemaPath == "" {
			return fmt.Errorf("%sDATASET_SCHEMA_PATH is required for schema source %q", envPrefix, c.Dataset.SchemaSource)
		}
	case SchemaSourceCatalog:
		if c.Catalog.DSN == "" {
			return fmt.Errorf("%sCATALOG_DSN is required for schema source %q", envPrefix, c.Dataset.SchemaSource)
		}
	default:
		return fmt.Errorf("invalid %sDATASET_SCHEMA_SOURCE: %q", envPrefix, c.Dataset.SchemaSource)
	}
	switch c.Dataset.Dialect {
	case "backtick", "double_quote":
	default:
		return fmt.Errorf("invalid %sDATASET_DIALECT: %q", envPrefix, c.Dataset.Dialect)
	}
	switch c.AI.Provider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("invalid %sAI_PROVIDER: %q", envPrefix, c.AI.Provider)
	}
	if c.AI.Temperature < 0 || c.AI.Temperature > 2 {
		return fmt.Errorf("invalid %sAI_TEMPERATURE: %v", envPrefix, c.AI.Temperature)
	}
	if c.AI.TopP <= 0 || c.AI.TopP > 1 {
		return fmt.Errorf("invalid %sAI_TOP_P: %v", envPrefix, c.AI.TopP)
	}
	if len(c.AI.Strategies) == 0 {
		return fmt.Errorf("at least one conversion strategy is required")
	}
	switch c.Secrets.Source {
	case "env":
	case "file":
		if c.Secrets.Dir == "" {
			return fmt.Errorf("%sSECRETS_DIR is required for file secrets", envPrefix)
		}
	default:
		return fmt.Errorf("invalid %sSECRETS_SOURCE: %q", envPrefix, c.Secrets.Source)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("invalid %sCACHE_TTL: %s", envPrefix, c.Cache.TTL)
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "budgetlens-api"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 90 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Catalog: CatalogConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    10,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "budgetlens",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			AutoCreateBucket: true,
		},
		Dataset: DatasetConfig{
			Table:        "massi-financial-analysis.finnish_finance_data.budget_transactions",
			SchemaSource: SchemaSourceEmbedded,
			DataPrefix:   "datasets/budget_transactions",
			RowLimit:     5000,
			Dialect:      "backtick",
		},
		AI: AIConfig{
			Enabled:         false,
			Provider:        "gemini",
			BaseURL:         "https://generativelanguage.googleapis.com",
			Model:           "gemini-2.0-flash-001",
			APIKeySecret:    "model-api-key",
			Temperature:     0.2,
			TopP:            0.8,
			TopK:            40,
			MaxOutputTokens: 8192,
			Timeout:         60 * time.Second,
			RatePerSecond:   2,
			RateBurst:       4,
			Strategies:      []string{"plain", "structured", "few_shot"},
		},
		Cache: CacheConfig{TTL: time.Hour},
		Secrets: SecretsConfig{
			Source: "env",
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Auth.Required = true
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
		cfg.Secrets.Source = "file"
		cfg.Secrets.Dir = "/run/secrets"
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

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(envPrefix + key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(envPrefix + key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", envPrefix, key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(envPrefix + key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", envPrefix, key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(envPrefix + key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", envPrefix, key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(envPrefix + key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", envPrefix, key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(envPrefix + key)
	if !ok {
		return nil
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s%s: %q", envPrefix, key, raw)
	}
	return nil
}
