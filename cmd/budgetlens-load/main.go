package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	catalogpostgres "github.com/budgetlens/budgetlens/internal/catalog/postgres"
	"github.com/budgetlens/budgetlens/internal/config"
	"github.com/budgetlens/budgetlens/internal/dataset"
	"github.com/budgetlens/budgetlens/internal/observability"
	"github.com/budgetlens/budgetlens/internal/schema"
	s3store "github.com/budgetlens/budgetlens/internal/storage/s3"
)

func main() {
	csvPath := flag.String("csv", "-", "ledger CSV export to load; - reads stdin")
	publishSchema := flag.Bool("publish-schema", true, "write schema.json next to the partitions")
	syncCatalog := flag.Bool("sync-catalog", true, "replace the catalog column list when a catalog DSN is configured")
	flag.Parse()

	cfg, err := config.LoadFromEnv("budgetlens-load")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *csvPath, *publishSchema, *syncCatalog); err != nil {
		logger.Error("dataset load failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger, csvPath string, publishSchema, syncCatalog bool) error {
	var input io.Reader = os.Stdin
	if csvPath != "-" {
		file, err := os.Open(csvPath)
		if err != nil {
			return err
		}
		defer func() { _ = file.Close() }()
		input = file
	}
	rows, err := dataset.ReadCSV(input)
	if err != nil {
		return err
	}

	store, err := s3store.New(ctx, s3store.Config{
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
		return err
	}
	loader, err := dataset.NewLoader(store, cfg.Dataset.DataPrefix, logger)
	if err != nil {
		return err
	}
	report, err := loader.Load(ctx, rows)
	if err != nil {
		return err
	}

	fields, err := schema.EmbeddedProvider{}.LoadFields(ctx)
	if err != nil {
		return err
	}
	if publishSchema {
		key, err := loader.PublishSchema(ctx, fields)
		if err != nil {
			return err
		}
		report.SchemaKey = key
	}

	if syncCatalog {
		db, err := catalogpostgres.Open(ctx, catalogpostgres.DBConfigFrom(cfg.Catalog))
		switch {
		case errors.Is(err, catalogpostgres.ErrDisabled):
			logger.Info("catalog database not configured; skipping column sync")
		case err != nil:
			return err
		default:
			defer func() { _ = db.Close() }()
			if err := catalogpostgres.NewRepository(db).ReplaceColumns(ctx, cfg.Dataset.Table, fields); err != nil {
				return err
			}
			logger.Info("catalog columns replaced", slog.String("table", cfg.Dataset.Table), slog.Int("columns", len(fields)))
		}
	}

	logger.Info("dataset loaded",
		slog.Int64("rows", report.Rows),
		slog.Int("partitions", len(report.Partitions)),
		slog.String("schema_key", report.SchemaKey),
		slog.Duration("duration", report.Duration),
	)
	return nil
}
