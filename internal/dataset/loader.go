package dataset

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/budgetlens/budgetlens/internal/observability"
	"github.com/budgetlens/budgetlens/internal/schema"
	"github.com/budgetlens/budgetlens/internal/storage"
)

// Loader publishes rows to the object store under a dataset prefix. Each
// year is written as one parquet file, replacing any earlier part for the
// same year.
type Loader struct {
	store  storage.ObjectStore
	prefix string
	logger *slog.Logger
}

type PartitionReport struct {
	Year     int    `json:"year"`
	Key      string `json:"key"`
	Rows     int64  `json:"rows"`
	Bytes    int64  `json:"bytes"`
	Replaced int    `json:"replaced"`
}

type LoadReport struct {
	Partitions []PartitionReport `json:"partitions"`
	SchemaKey  string            `json:"schema_key,omitempty"`
	Rows       int64             `json:"rows"`
	Duration   time.Duration     `json:"duration"`
}

func NewLoader(store storage.ObjectStore, prefix string, logger *slog.Logger) (*Loader, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	cleaned, err := storage.CleanDatasetPrefix(prefix)
	if err != nil {
		return nil, err
	}
	return &Loader{store: store, prefix: cleaned, logger: observability.LoggerOrDiscard(logger)}, nil
}

// Load writes one partition per year in rows. Stale part files of a
// rewritten year are deleted after the new file is in place.
func (l *Loader) Load(ctx context.Context, rows []Row) (LoadReport, error) {
	if len(rows) == 0 {
		return LoadReport{}, fmt.Errorf("no rows to load")
	}
	start := time.Now()
	years, groups := PartitionByYear(rows)
	report := LoadReport{Partitions: make([]PartitionReport, 0, len(years))}

	for _, year := range years {
		partition, err := l.writeYear(ctx, year, groups[year])
		if err != nil {
			return report, err
		}
		report.Partitions = append(report.Partitions, partition)
		report.Rows += partition.Rows
		l.logger.Info("partition written",
			slog.Int("year", year),
			slog.String("key", partition.Key),
			slog.Int64("rows", partition.Rows),
			slog.Int64("bytes", partition.Bytes),
		)
	}
	report.Duration = time.Since(start)
	return report, nil
}

func (l *Loader) writeYear(ctx context.Context, year int, rows []Row) (PartitionReport, error) {
	key, err := storage.BuildYearPartitionPath(l.prefix, year, 0)
	if err != nil {
		return PartitionReport{}, err
	}
	encoded, err := EncodeParquet(rows)
	if err != nil {
		return PartitionReport{}, fmt.Errorf("encode year %d: %w", year, err)
	}
	info, err := l.store.Put(ctx, key, bytes.NewReader(encoded.Data), int64(len(encoded.Data)), storage.PutOptions{
		ContentType: storage.ParquetContentType,
		Metadata: map[string]string{
			"year": strconv.Itoa(year),
			"rows": strconv.FormatInt(encoded.RowCount, 10),
		},
	})
	if err != nil {
		return PartitionReport{}, fmt.Errorf("upload %s: %w", key, err)
	}

	partitionDir, err := storage.BuildYearPartitionDir(l.prefix, year)
	if err != nil {
		return PartitionReport{}, err
	}
	existing, err := l.store.List(ctx, partitionDir+"/")
	if err != nil {
		return PartitionReport{}, fmt.Errorf("list %s: %w", partitionDir, err)
	}
	replaced := 0
	for _, object := range existing {
		if object.Key == key || !storage.IsParquetKey(object.Key) {
			continue
		}
		if err := l.store.Delete(ctx, object.Key); err != nil {
			return PartitionReport{}, fmt.Errorf("delete stale %s: %w", object.Key, err)
		}
		replaced++
	}

	size := info.Size
	if size == 0 {
		size = int64(len(encoded.Data))
	}
	return PartitionReport{Year: year, Key: key, Rows: encoded.RowCount, Bytes: size, Replaced: replaced}, nil
}

// PublishSchema writes the schema document next to the partitions so that
// the objectstore schema source can read it.
func (l *Loader) PublishSchema(ctx context.Context, fields []schema.Field) (string, error) {
	if len(fields) == 0 {
		return "", fmt.Errorf("schema fields are required")
	}
	key, err := storage.BuildSchemaPath(l.prefix)
	if err != nil {
		return "", err
	}
	payload, err := json.MarshalIndent(struct {
		Fields []schema.Field `json:"fields"`
	}{Fields: fields}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal schema: %w", err)
	}
	if _, err := l.store.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)), storage.PutOptions{
		ContentType: storage.JSONContentType,
	}); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	l.logger.Info("schema published", slog.String("key", key), slog.Int("fields", len(fields)))
	return key, nil
}
