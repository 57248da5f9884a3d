package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/budgetlens/budgetlens/internal/config"
)

func TestOpenRequiresDSN(t *testing.T) {
	_, err := Open(context.Background(), DBConfig{})
	if !errors.Is(err, ErrDisabled) {
		t.Fatalf("Open() error = %v, want %v", err, ErrDisabled)
	}
}

func TestDBConfigFrom(t *testing.T) {
	cfg := DBConfigFrom(config.CatalogConfig{DSN: "postgres://x", MaxOpenConns: 7, ConnMaxLifetime: time.Minute})
	if cfg.DSN != "postgres://x" || cfg.MaxOpenConns != 7 || cfg.ConnMaxLifetime != time.Minute {
		t.Fatalf("DBConfigFrom() = %+v", cfg)
	}
}
