package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/budgetlens/budgetlens/internal/api"
	"github.com/budgetlens/budgetlens/internal/ask"
	"github.com/budgetlens/budgetlens/internal/auth"
	"github.com/budgetlens/budgetlens/internal/catalog"
	catalogpostgres "github.com/budgetlens/budgetlens/internal/catalog/postgres"
	"github.com/budgetlens/budgetlens/internal/config"
	"github.com/budgetlens/budgetlens/internal/contextcache"
	"github.com/budgetlens/budgetlens/internal/dataset"
	"github.com/budgetlens/budgetlens/internal/llm"
	"github.com/budgetlens/budgetlens/internal/nl2q"
	"github.com/budgetlens/budgetlens/internal/observability"
	duckdbengine "github.com/budgetlens/budgetlens/internal/query/duckdb"
	"github.com/budgetlens/budgetlens/internal/schema"
	"github.com/budgetlens/budgetlens/internal/secrets"
	"github.com/budgetlens/budgetlens/internal/storage"
	s3store "github.com/budgetlens/budgetlens/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("budgetlens-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		catalogDB   *sql.DB
		catalogRepo *catalogpostgres.Repository
		history     catalog.ConversionLog
	)
	catalogDB, err = catalogpostgres.Open(ctx, catalogpostgres.DBConfigFrom(cfg.Catalog))
	switch {
	case errors.Is(err, catalogpostgres.ErrDisabled):
		logger.Warn("catalog database not configured; keeping conversion history in memory")
		history = catalog.NewMemoryLog(catalog.MaxListLimit)
	case err != nil:
		logger.Error("failed to open catalog db", slog.Any("error", err))
		os.Exit(1)
	default:
		defer func() { _ = catalogDB.Close() }()
		catalogRepo = catalogpostgres.NewRepository(catalogDB)
		history = catalogRepo
	}

	objectStore, err := s3store.New(ctx, s3store.Config{
		Endpoint:         cfg.ObjectStore.Endpoint,
		Region:           cfg.ObjectStore.Region,
		Bucket:           cfg.ObjectStore.Bucket,
		AccessKeyID:      cfg.ObjectStore.AccessKeyID,
		SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
		UseSSL:           cfg.ObjectStore.UseSSL,
		Prefix:           cfg.ObjectStore.Prefix,
		AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
	})
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}

	provider, err := schemaProvider(cfg, objectStore, catalogRepo)
	if err != nil {
		logger.Error("failed to configure schema source", slog.Any("error", err))
		os.Exit(1)
	}
	registry, err := schema.NewRegistry(provider, logger)
	if err != nil {
		logger.Error("failed to initialize schema registry", slog.Any("error", err))
		os.Exit(1)
	}

	dialect, err := nl2q.DialectByName(cfg.Dataset.Dialect)
	if err != nil {
		logger.Error("invalid dialect", slog.Any("error", err))
		os.Exit(1)
	}
	engine, err := duckdbengine.NewEngine(objectStore, duckdbengine.Config{
		Prefix:   cfg.Dataset.DataPrefix,
		Table:    cfg.Dataset.Table,
		RowLimit: cfg.Dataset.RowLimit,
	}, logger)
	if err != nil {
		logger.Error("failed to initialize query engine", slog.Any("error", err))
		os.Exit(1)
	}
	years := dataset.NewYearCache(engine, cfg.Dataset.Table, dialect.QuoteIdent, cfg.Cache.TTL)

	deps := api.Dependencies{
		Logger:   logger,
		Schema:   registry,
		Years:    years,
		Executor: engine,
		History:  history,
		Table:    cfg.Dataset.Table,
		RowLimit: cfg.Dataset.RowLimit,
		Readiness: api.CombineReadinessChecks(
			api.CheckSchema(registry),
			checkCatalog(catalogRepo),
			api.CheckObjectStoreConfig(cfg),
		),
		DependencyTimeout: 2 * time.Second,
	}

	if cfg.AI.Enabled {
		cache := contextcache.New(cfg.Cache.TTL)
		go evictLoop(ctx, cache, cfg.Cache.TTL, logger)

		service, err := buildAskService(cfg, registry, dialect, cache, engine, history, years, logger)
		if err != nil {
			logger.Error("failed to initialize question pipeline", slog.Any("error", err))
			os.Exit(1)
		}
		deps.Asker = service
	} else {
		logger.Warn("model access disabled; translate and ask endpoints will return 501")
	}

	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("table", cfg.Dataset.Table),
			slog.String("schema_source", provider.Source()),
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
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

func schemaProvider(cfg config.Config, store storage.ObjectStore, repo *catalogpostgres.Repository) (schema.Provider, error) {
	switch cfg.Dataset.SchemaSource {
	case config.SchemaSourceFile:
		return schema.FileProvider{Path: cfg.Dataset.SchemaPath}, nil
	case config.SchemaSourceObjectStore:
		key, err := storage.BuildSchemaPath(cfg.Dataset.DataPrefix)
		if err != nil {
			return nil, err
		}
		return schema.ObjectProvider{Store: store, Key: key}, nil
	case config.SchemaSourceCatalog:
		if repo == nil {
			return nil, errors.New("schema source catalog requires a catalog database")
		}
		return schema.CatalogProvider{Columns: repo, Table: cfg.Dataset.Table}, nil
	default:
		return schema.EmbeddedProvider{}, nil
	}
}

func buildAskService(
	cfg config.Config,
	registry *schema.Registry,
	dialect nl2q.Dialect,
	cache *contextcache.Cache,
	executor *duckdbengine.Engine,
	history catalog.ConversionLog,
	years *dataset.YearCache,
	logger *slog.Logger,
) (*ask.Service, error) {
	secretStore, err := secrets.FromConfig(cfg.Secrets.Source, cfg.Secrets.Dir)
	if err != nil {
		return nil, err
	}
	model, err := llm.New(llm.Config{
		Provider:      cfg.AI.Provider,
		BaseURL:       cfg.AI.BaseURL,
		Model:         cfg.AI.Model,
		APIKeySecret:  cfg.AI.APIKeySecret,
		Secrets:       secretStore,
		Timeout:       cfg.AI.Timeout,
		RatePerSecond: cfg.AI.RatePerSecond,
		RateBurst:     cfg.AI.RateBurst,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}
	pack, err := nl2q.DefaultPack()
	if err != nil {
		return nil, err
	}
	converter, err := nl2q.NewConverter(nl2q.ConverterConfig{
		Table:   cfg.Dataset.Table,
		Dialect: dialect,
		Params: llm.Params{
			Temperature:     cfg.AI.Temperature,
			TopP:            cfg.AI.TopP,
			TopK:            cfg.AI.TopK,
			MaxOutputTokens: cfg.AI.MaxOutputTokens,
		},
	}, registry, model, nl2q.NewBuilder(pack, dialect, cache, logger), logger)
	if err != nil {
		return nil, err
	}
	strategies, err := nl2q.StrategiesByName(converter, cfg.AI.Strategies)
	if err != nil {
		return nil, err
	}
	return ask.NewService(nl2q.NewChain(logger, strategies...), ask.Config{
		Table:    cfg.Dataset.Table,
		RowLimit: cfg.Dataset.RowLimit,
	}, ask.Options{
		Executor: executor,
		History:  history,
		Years:    years,
		Logger:   logger,
	})
}

// checkCatalog avoids handing a typed nil repository to api.CheckCatalog.
func checkCatalog(repo *catalogpostgres.Repository) api.ReadinessCheck {
	if repo == nil {
		return nil
	}
	return api.CheckCatalog(repo)
}

func evictLoop(ctx context.Context, cache *contextcache.Cache, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if evicted := cache.EvictExpired(); evicted > 0 {
				logger.Debug("context cache entries evicted", slog.Int("evicted", evicted))
			}
		}
	}
}
