package schema

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/budgetlens/budgetlens/internal/storage"
)

//go:embed budget_schema.json
var budgetSchemaJSON []byte

// EmbeddedProvider serves the built-in Finnish state budget schema.
type EmbeddedProvider struct{}

func (EmbeddedProvider) Source() string { return "embedded" }

func (EmbeddedProvider) LoadFields(context.Context) ([]Field, error) {
	return DecodeJSON("embedded", budgetSchemaJSON)
}

// BudgetSchemaJSON exposes the embedded document, e.g. for seeding a catalog.
func BudgetSchemaJSON() []byte {
	out := make([]byte, len(budgetSchemaJSON))
	copy(out, budgetSchemaJSON)
	return out
}

type FileProvider struct {
	Path string
}

func (p FileProvider) Source() string { return "file:" + p.Path }

func (p FileProvider) LoadFields(context.Context) ([]Field, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &LoadError{Source: p.Source(), Reason: "schema file missing", Err: err}
		}
		return nil, &LoadError{Source: p.Source(), Reason: "read schema file", Err: err}
	}
	return DecodeJSON(p.Source(), data)
}

// ObjectProvider reads a schema document stored next to the dataset files.
type ObjectProvider struct {
	Store storage.ObjectStore
	Key   string
}

func (p ObjectProvider) Source() string { return "objectstore:" + p.Key }

func (p ObjectProvider) LoadFields(ctx context.Context) ([]Field, error) {
	if p.Store == nil {
		return nil, &LoadError{Source: p.Source(), Reason: "object store is not configured"}
	}
	body, err := p.Store.Get(ctx, p.Key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, &LoadError{Source: p.Source(), Reason: "schema object missing", Err: err}
		}
		return nil, &LoadError{Source: p.Source(), Reason: "fetch schema object", Err: err}
	}
	defer func() { _ = body.Close() }()
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &LoadError{Source: p.Source(), Reason: "read schema object", Err: err}
	}
	return DecodeJSON(p.Source(), data)
}

// ColumnSource lists column definitions of a table, typically from the
// Postgres catalog.
type ColumnSource interface {
	ListColumns(ctx context.Context, table string) ([]Field, error)
}

type CatalogProvider struct {
	Columns ColumnSource
	Table   string
}

func (p CatalogProvider) Source() string { return fmt.Sprintf("catalog:%s", p.Table) }

func (p CatalogProvider) LoadFields(ctx context.Context) ([]Field, error) {
	if p.Columns == nil {
		return nil, &LoadError{Source: p.Source(), Reason: "catalog is not configured"}
	}
	fields, err := p.Columns.ListColumns(ctx, p.Table)
	if err != nil {
		return nil, &LoadError{Source: p.Source(), Reason: "list catalog columns", Err: err}
	}
	return fields, nil
}
