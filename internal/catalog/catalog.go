// Package catalog holds the durable metadata of the service: the column
// catalog of the dataset and the log of past conversions.
package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/budgetlens/budgetlens/internal/schema"
)

var ErrNotFound = errors.New("catalog: not found")

// ColumnStore serves the dataset's column definitions.
type ColumnStore interface {
	ListColumns(ctx context.Context, table string) ([]schema.Field, error)
	ReplaceColumns(ctx context.Context, table string, fields []schema.Field) error
}

// ConversionLog records every conversion attempt served by the API.
type ConversionLog interface {
	InsertConversion(ctx context.Context, in InsertConversionInput) (Conversion, error)
	GetConversion(ctx context.Context, id uuid.UUID) (Conversion, error)
	ListConversions(ctx context.Context, filter ConversionFilter) ([]Conversion, error)
}

type Repository interface {
	HealthCheck(ctx context.Context) error
	ColumnStore
	ConversionLog
}

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

type Conversion struct {
	ID          uuid.UUID `json:"id"`
	Question    string    `json:"question"`
	Query       string    `json:"query,omitempty"`
	Explanation string    `json:"explanation"`
	Strategy    string    `json:"strategy"`
	Outcome     Outcome   `json:"outcome"`
	FailureKind string    `json:"failure_kind,omitempty"`
	Warnings    []string  `json:"warnings,omitempty"`
	RowCount    *int      `json:"row_count,omitempty"`
	DurationMs  int64     `json:"duration_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

type InsertConversionInput struct {
	// ID is generated when zero.
	ID          uuid.UUID
	Question    string
	Query       string
	Explanation string
	Strategy    string
	FailureKind string
	Warnings    []string
	RowCount    *int
	DurationMs  int64
}

// Outcome is success exactly when a query was produced.
func (in InsertConversionInput) Outcome() Outcome {
	if in.Query != "" && in.FailureKind == "" {
		return OutcomeSuccess
	}
	return OutcomeFailure
}

type ConversionFilter struct {
	Limit   int
	Outcome Outcome
	Before  *time.Time
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// NormalizedLimit clamps Limit into [1, MaxListLimit].
func (f ConversionFilter) NormalizedLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultListLimit
	case f.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return f.Limit
	}
}
