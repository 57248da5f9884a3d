// Package secrets resolves credentials by logical name.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

var ErrNotFound = errors.New("secret not found")

type Store interface {
	Get(ctx context.Context, name string) (string, error)
}

// EnvStore maps a name like "model-api-key" to BUDGETLENS_SECRET_MODEL_API_KEY.
type EnvStore struct {
	Lookup func(string) (string, bool)
}

func (s EnvStore) Get(_ context.Context, name string) (string, error) {
	lookup := s.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	key := EnvKey(name)
	value, ok := lookup(key)
	value = strings.TrimSpace(value)
	if !ok || value == "" {
		return "", fmt.Errorf("%w: %s (env %s)", ErrNotFound, name, key)
	}
	return value, nil
}

func EnvKey(name string) string {
	upper := strings.ToUpper(strings.TrimSpace(name))
	upper = strings.NewReplacer("-", "_", ".", "_", "/", "_").Replace(upper)
	return "BUDGETLENS_SECRET_" + upper
}

// FileStore reads one secret per file, the layout used by mounted secret
// volumes.
type FileStore struct {
	Dir string
}

func (s FileStore) Get(_ context.Context, name string) (string, error) {
	clean := filepath.Base(strings.TrimSpace(name))
	if clean == "." || clean == "/" || clean != strings.TrimSpace(name) {
		return "", fmt.Errorf("invalid secret name %q", name)
	}
	data, err := os.ReadFile(filepath.Join(s.Dir, clean))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return "", fmt.Errorf("read secret %s: %w", name, err)
	}
	value := strings.TrimSpace(string(data))
	if value == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrNotFound, name)
	}
	return value, nil
}

// Cached memoizes successful lookups for the lifetime of the process.
// Failures are not cached so a secret provisioned later is picked up.
type Cached struct {
	inner Store
	group singleflight.Group

	mu     sync.RWMutex
	values map[string]string
}

func NewCached(inner Store) *Cached {
	return &Cached{inner: inner, values: make(map[string]string)}
}

func (c *Cached) Get(ctx context.Context, name string) (string, error) {
	c.mu.RLock()
	value, ok := c.values[name]
	c.mu.RUnlock()
	if ok {
		return value, nil
	}

	result, err, _ := c.group.Do(name, func() (any, error) {
		value, err := c.inner.Get(ctx, name)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.values[name] = value
		c.mu.Unlock()
		return value, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// FromConfig builds the configured store wrapped in a process cache.
func FromConfig(source, dir string) (*Cached, error) {
	switch source {
	case "env", "":
		return NewCached(EnvStore{}), nil
	case "file":
		if strings.TrimSpace(dir) == "" {
			return nil, fmt.Errorf("secrets dir is required for file source")
		}
		return NewCached(FileStore{Dir: dir}), nil
	default:
		return nil, fmt.Errorf("unknown secrets source %q", source)
	}
}
