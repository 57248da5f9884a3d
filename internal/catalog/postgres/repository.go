package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/budgetlens/budgetlens/internal/catalog"
	"github.com/budgetlens/budgetlens/internal/schema"
)

type Repository struct {
	db *sql.DB
}

var _ catalog.Repository = (*Repository)(nil)

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping catalog db: %w", err)
	}
	return nil
}

// ListColumns returns the columns of table in position order.
func (r *Repository) ListColumns(ctx context.Context, table string) ([]schema.Field, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT column_name, column_type, description
FROM dataset_column
WHERE table_name = $1
ORDER BY position ASC`, table)
	if err != nil {
		return nil, fmt.Errorf("list dataset columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	fields := make([]schema.Field, 0)
	for rows.Next() {
		var (
			field      schema.Field
			columnType string
		)
		if err := rows.Scan(&field.Name, &columnType, &field.Description); err != nil {
			return nil, fmt.Errorf("scan dataset column row: %w", err)
		}
		field.Type = schema.FieldType(columnType)
		fields = append(fields, field)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dataset column rows: %w", err)
	}
	if len(fields) == 0 {
		return nil, catalog.ErrNotFound
	}
	return fields, nil
}

// ReplaceColumns swaps the full column set of table in one transaction.
func (r *Repository) ReplaceColumns(ctx context.Context, table string, fields []schema.Field) error {
	if strings.TrimSpace(table) == "" {
		return fmt.Errorf("table name is required")
	}
	if len(fields) == 0 {
		return fmt.Errorf("at least one column is required")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace columns tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
DELETE FROM dataset_column
WHERE table_name = $1`, table); err != nil {
		return fmt.Errorf("delete dataset columns: %w", err)
	}
	for position, field := range fields {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO dataset_column (table_name, position, column_name, column_type, description)
VALUES ($1, $2, $3, $4, $5)`, table, position, field.Name, string(field.Type), field.Description); err != nil {
			return fmt.Errorf("insert dataset column %q: %w", field.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace columns tx: %w", err)
	}
	return nil
}

func (r *Repository) InsertConversion(ctx context.Context, in catalog.InsertConversionInput) (catalog.Conversion, error) {
	id := in.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	warnings := in.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	warningsJSON, err := json.Marshal(warnings)
	if err != nil {
		return catalog.Conversion{}, fmt.Errorf("encode warnings: %w", err)
	}
	outcome := in.Outcome()

	query := `
INSERT INTO conversion_log (conversion_id, question, query_text, explanation, strategy, outcome, failure_kind, warnings_json, row_count, duration_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9, $10)
RETURNING created_at`
	var createdAt time.Time
	if err := r.db.QueryRowContext(ctx, query,
		id.String(),
		in.Question,
		in.Query,
		in.Explanation,
		in.Strategy,
		string(outcome),
		in.FailureKind,
		string(warningsJSON),
		nullableInt(in.RowCount),
		in.DurationMs,
	).Scan(&createdAt); err != nil {
		return catalog.Conversion{}, fmt.Errorf("insert conversion: %w", err)
	}

	return catalog.Conversion{
		ID:          id,
		Question:    in.Question,
		Query:       in.Query,
		Explanation: in.Explanation,
		Strategy:    in.Strategy,
		Outcome:     outcome,
		FailureKind: in.FailureKind,
		Warnings:    in.Warnings,
		RowCount:    in.RowCount,
		DurationMs:  in.DurationMs,
		CreatedAt:   createdAt,
	}, nil
}

const conversionColumns = `conversion_id, question, query_text, explanation, strategy, outcome, failure_kind, warnings_json, row_count, duration_ms, created_at`

func (r *Repository) GetConversion(ctx context.Context, id uuid.UUID) (catalog.Conversion, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+conversionColumns+`
FROM conversion_log
WHERE conversion_id = $1`, id.String())
	conversion, err := scanConversion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.Conversion{}, catalog.ErrNotFound
		}
		return catalog.Conversion{}, fmt.Errorf("get conversion: %w", err)
	}
	return conversion, nil
}

// ListConversions returns the newest conversions first.
func (r *Repository) ListConversions(ctx context.Context, filter catalog.ConversionFilter) ([]catalog.Conversion, error) {
	var outcome *string
	if filter.Outcome != "" {
		value := string(filter.Outcome)
		outcome = &value
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+conversionColumns+`
FROM conversion_log
WHERE ($1::text IS NULL OR outcome = $1)
  AND ($2::timestamptz IS NULL OR created_at < $2)
ORDER BY created_at DESC
LIMIT $3`, outcome, filter.Before, filter.NormalizedLimit())
	if err != nil {
		return nil, fmt.Errorf("list conversions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	conversions := make([]catalog.Conversion, 0)
	for rows.Next() {
		conversion, err := scanConversion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversion row: %w", err)
		}
		conversions = append(conversions, conversion)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversion rows: %w", err)
	}
	return conversions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversion(row rowScanner) (catalog.Conversion, error) {
	var (
		conversion   catalog.Conversion
		id           string
		outcome      string
		warningsJSON []byte
		rowCount     sql.NullInt64
	)
	if err := row.Scan(
		&id,
		&conversion.Question,
		&conversion.Query,
		&conversion.Explanation,
		&conversion.Strategy,
		&outcome,
		&conversion.FailureKind,
		&warningsJSON,
		&rowCount,
		&conversion.DurationMs,
		&conversion.CreatedAt,
	); err != nil {
		return catalog.Conversion{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return catalog.Conversion{}, fmt.Errorf("parse conversion id %q: %w", id, err)
	}
	conversion.ID = parsed
	conversion.Outcome = catalog.Outcome(outcome)
	if len(warningsJSON) > 0 {
		if err := json.Unmarshal(warningsJSON, &conversion.Warnings); err != nil {
			return catalog.Conversion{}, fmt.Errorf("decode warnings: %w", err)
		}
	}
	if rowCount.Valid {
		count := int(rowCount.Int64)
		conversion.RowCount = &count
	}
	return conversion, nil
}

func nullableInt(value *int) any {
	if value == nil {
		return nil
	}
	return int64(*value)
}
