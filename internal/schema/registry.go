package schema

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"sync"
)

// Registry loads the schema from its provider once per process and serves
// immutable copies afterwards. A failed load is retried on the next call.
type Registry struct {
	provider Provider
	logger   *slog.Logger

	mu          sync.Mutex
	loaded      bool
	fields      []Field
	info        map[string]FieldInfo
	fingerprint string
}

func NewRegistry(provider Provider, logger *slog.Logger) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("schema provider is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{provider: provider, logger: logger}, nil
}

func (r *Registry) Fields(ctx context.Context) ([]Field, error) {
	if err := r.ensure(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.fields), nil
}

// Info returns the schema keyed by column name.
func (r *Registry) Info(ctx context.Context) (map[string]FieldInfo, error) {
	if err := r.ensure(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.info), nil
}

func (r *Registry) Fingerprint(ctx context.Context) (string, error) {
	if err := r.ensure(ctx); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fingerprint, nil
}

// Reload discards the cached schema and loads it again.
func (r *Registry) Reload(ctx context.Context) error {
	r.mu.Lock()
	r.loaded = false
	r.mu.Unlock()
	return r.ensure(ctx)
}

func (r *Registry) ensure(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return nil
	}

	source := r.provider.Source()
	raw, err := r.provider.LoadFields(ctx)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			return err
		}
		return &LoadError{Source: source, Reason: "provider failed", Err: err}
	}
	fields, err := validate(source, raw)
	if err != nil {
		return err
	}

	info := make(map[string]FieldInfo, len(fields))
	for _, f := range fields {
		info[f.Name] = FieldInfo{Type: f.Type, Description: f.Description}
	}
	r.fields = fields
	r.info = info
	r.fingerprint = Fingerprint(fields)
	r.loaded = true
	r.logger.Info("schema loaded",
		slog.String("source", source),
		slog.Int("fields", len(fields)),
		slog.String("fingerprint", r.fingerprint[:12]),
	)
	return nil
}
