package config

import (
	"log/slog"
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	cfg, err := Load("budgetlens-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != ":8080" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Auth.Required {
		t.Fatal("Auth.Required should default to false in dev")
	}
	if cfg.Catalog.DSN != "" {
		t.Fatalf("Catalog.DSN = %q, want empty", cfg.Catalog.DSN)
	}
	if cfg.Dataset.Table != "massi-financial-analysis.finnish_finance_data.budget_transactions" {
		t.Fatalf("Dataset.Table = %q", cfg.Dataset.Table)
	}
	if cfg.Dataset.SchemaSource != SchemaSourceEmbedded {
		t.Fatalf("Dataset.SchemaSource = %q", cfg.Dataset.SchemaSource)
	}
	if cfg.AI.Temperature != 0.2 || cfg.AI.TopP != 0.8 || cfg.AI.TopK != 40 || cfg.AI.MaxOutputTokens != 8192 {
		t.Fatalf("AI generation defaults = %+v", cfg.AI)
	}
	if cfg.Cache.TTL != time.Hour {
		t.Fatalf("Cache.TTL = %s", cfg.Cache.TTL)
	}
	if want := []string{"plain", "structured", "few_shot"}; !reflect.DeepEqual(cfg.AI.Strategies, want) {
		t.Fatalf("AI.Strategies = %v, want %v", cfg.AI.Strategies, want)
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	cfg, err := Load("budgetlens-api", mapLookup(map[string]string{"BUDGETLENS_PROFILE": "prod"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required should default to true in prod")
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.ObjectStore.UseSSL {
		t.Fatal("ObjectStore.UseSSL should default to true in prod")
	}
	if cfg.Secrets.Source != "file" || cfg.Secrets.Dir != "/run/secrets" {
		t.Fatalf("Secrets = %+v", cfg.Secrets)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	cfg, err := Load("budgetlens-api", mapLookup(map[string]string{
		"BUDGETLENS_PROFILE":               "test",
		"BUDGETLENS_HTTP_ADDR":             ":9999",
		"BUDGETLENS_HTTP_READ_TIMEOUT":     "2s",
		"BUDGETLENS_LOG_LEVEL":             "error",
		"BUDGETLENS_AUTH_REQUIRED":         "true",
		"BUDGETLENS_AUTH_STATIC_KEYS":      "k1:analyst:query_reader",
		"BUDGETLENS_CATALOG_DSN":           "postgres://example",
		"BUDGETLENS_CATALOG_MAX_OPEN_CONNS": "42",
		"BUDGETLENS_OBJECTSTORE_BUCKET":    "budget-prod",
		"BUDGETLENS_DATASET_TABLE":         "finance.budget",
		"BUDGETLENS_DATASET_SCHEMA_SOURCE": "Catalog",
		"BUDGETLENS_DATASET_ROW_LIMIT":     "250",
		"BUDGETLENS_DATASET_DIALECT":       "double_quote",
		"BUDGETLENS_AI_ENABLED":            "true",
		"BUDGETLENS_AI_PROVIDER":           "OpenAI",
		"BUDGETLENS_AI_BASE_URL":           "https://api.example.com",
		"BUDGETLENS_AI_MODEL":              "gpt-5.2",
		"BUDGETLENS_AI_TEMPERATURE":        "0.3",
		"BUDGETLENS_AI_TOP_K":              "20",
		"BUDGETLENS_AI_TIMEOUT":            "21s",
		"BUDGETLENS_AI_STRATEGIES":         " structured , few_shot ",
		"BUDGETLENS_CACHE_TTL":             "10m",
	}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.Address != ":9999" || cfg.HTTP.ReadTimeout != 2*time.Second {
		t.Fatalf("HTTP = %+v", cfg.HTTP)
	}
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.Auth.Required || cfg.Auth.StaticKeys != "k1:analyst:query_reader" {
		t.Fatalf("Auth = %+v", cfg.Auth)
	}
	if cfg.Catalog.DSN != "postgres://example" || cfg.Catalog.MaxOpenConns != 42 {
		t.Fatalf("Catalog = %+v", cfg.Catalog)
	}
	if cfg.ObjectStore.Bucket != "budget-prod" {
		t.Fatalf("ObjectStore.Bucket = %q", cfg.ObjectStore.Bucket)
	}
	if cfg.Dataset.Table != "finance.budget" || cfg.Dataset.SchemaSource != SchemaSourceCatalog {
		t.Fatalf("Dataset = %+v", cfg.Dataset)
	}
	if cfg.Dataset.RowLimit != 250 || cfg.Dataset.Dialect != "double_quote" {
		t.Fatalf("Dataset = %+v", cfg.Dataset)
	}
	if !cfg.AI.Enabled || cfg.AI.Provider != "openai" || cfg.AI.Model != "gpt-5.2" {
		t.Fatalf("AI = %+v", cfg.AI)
	}
	if cfg.AI.Temperature != 0.3 || cfg.AI.TopK != 20 || cfg.AI.Timeout != 21*time.Second {
		t.Fatalf("AI = %+v", cfg.AI)
	}
	if want := []string{"structured", "few_shot"}; !reflect.DeepEqual(cfg.AI.Strategies, want) {
		t.Fatalf("AI.Strategies = %v, want %v", cfg.AI.Strategies, want)
	}
	if cfg.Cache.TTL != 10*time.Minute {
		t.Fatalf("Cache.TTL = %s", cfg.Cache.TTL)
	}
}

func TestLoadErrorsOnInvalidValues(t *testing.T) {
	tests := []map[string]string{
		{"BUDGETLENS_PROFILE": "oops"},
		{"BUDGETLENS_HTTP_READ_TIMEOUT": "NaN"},
		{"BUDGETLENS_CATALOG_MAX_OPEN_CONNS": "oops"},
		{"BUDGETLENS_AI_TEMPERATURE": "bad"},
		{"BUDGETLENS_AI_TEMPERATURE": "3"},
		{"BUDGETLENS_AI_TOP_P": "0"},
		{"BUDGETLENS_AI_PROVIDER": "llama"},
		{"BUDGETLENS_AI_STRATEGIES": " , "},
		{"BUDGETLENS_AUTH_REQUIRED": "not-bool"},
		{"BUDGETLENS_LOG_LEVEL": "verbose"},
		{"BUDGETLENS_DATASET_TABLE": ""},
		{"BUDGETLENS_DATASET_SCHEMA_SOURCE": "ftp"},
		{"BUDGETLENS_DATASET_SCHEMA_SOURCE": "file"},
		{"BUDGETLENS_DATASET_SCHEMA_SOURCE": "catalog"},
		{"BUDGETLENS_DATASET_DIALECT": "brackets"},
		{"BUDGETLENS_SECRETS_SOURCE": "file"},
		{"BUDGETLENS_CACHE_TTL": "0s"},
	}
	for _, env := range tests {
		if _, err := Load("budgetlens-api", mapLookup(env)); err == nil {
			t.Fatalf("Load() expected error for env %#v", env)
		}
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
