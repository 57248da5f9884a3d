package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

func TestEnvStore(t *testing.T) {
	store := EnvStore{Lookup: func(key string) (string, bool) {
		if key == "BUDGETLENS_SECRET_MODEL_API_KEY" {
			return " abc \n", true
		}
		return "", false
	}}
	value, err := store.Get(context.Background(), "model-api-key")
	if err != nil || value != "abc" {
		t.Fatalf("Get() = %q, %v", value, err)
	}
	if _, err := store.Get(context.Background(), "other"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(other) error = %v, want ErrNotFound", err)
	}
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "model-api-key"), []byte("from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	store := FileStore{Dir: dir}
	value, err := store.Get(context.Background(), "model-api-key")
	if err != nil || value != "from-file" {
		t.Fatalf("Get() = %q, %v", value, err)
	}
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) error = %v", err)
	}
	if _, err := store.Get(context.Background(), "../etc/passwd"); err == nil {
		t.Fatal("expected invalid name error")
	}
}

type countingStore struct {
	calls atomic.Int32
	err   error
}

func (s *countingStore) Get(context.Context, string) (string, error) {
	s.calls.Add(1)
	if s.err != nil {
		return "", s.err
	}
	return "secret", nil
}

func TestCachedRetrievesOnce(t *testing.T) {
	inner := &countingStore{}
	cached := NewCached(inner)
	for range 5 {
		value, err := cached.Get(context.Background(), "model-api-key")
		if err != nil || value != "secret" {
			t.Fatalf("Get() = %q, %v", value, err)
		}
	}
	if got := inner.calls.Load(); got != 1 {
		t.Fatalf("inner calls = %d, want 1", got)
	}
}

func TestCachedDoesNotCacheFailures(t *testing.T) {
	inner := &countingStore{err: ErrNotFound}
	cached := NewCached(inner)
	if _, err := cached.Get(context.Background(), "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v", err)
	}
	inner.err = nil
	if value, err := cached.Get(context.Background(), "k"); err != nil || value != "secret" {
		t.Fatalf("Get() after provisioning = %q, %v", value, err)
	}
}

func TestFromConfig(t *testing.T) {
	if _, err := FromConfig("file", ""); err == nil {
		t.Fatal("expected error for file source without dir")
	}
	if _, err := FromConfig("vault", ""); err == nil {
		t.Fatal("expected error for unknown source")
	}
	if _, err := FromConfig("env", ""); err != nil {
		t.Fatalf("FromConfig(env) error = %v", err)
	}
}
