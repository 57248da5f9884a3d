package catalog

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLog is a bounded in-process ConversionLog used when no catalog
// database is configured. The oldest entries are dropped first.
type MemoryLog struct {
	capacity int
	now      func() time.Time

	mu      sync.RWMutex
	entries []Conversion
}

func NewMemoryLog(capacity int) *MemoryLog {
	if capacity <= 0 {
		capacity = MaxListLimit
	}
	return &MemoryLog{capacity: capacity, now: time.Now}
}

func (m *MemoryLog) InsertConversion(_ context.Context, in InsertConversionInput) (Conversion, error) {
	id := in.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	entry := Conversion{
		ID:          id,
		Question:    in.Question,
		Query:       in.Query,
		Explanation: in.Explanation,
		Strategy:    in.Strategy,
		Outcome:     in.Outcome(),
		FailureKind: in.FailureKind,
		Warnings:    slices.Clone(in.Warnings),
		RowCount:    in.RowCount,
		DurationMs:  in.DurationMs,
		CreatedAt:   m.now().UTC(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	if len(m.entries) > m.capacity {
		m.entries = slices.Delete(m.entries, 0, len(m.entries)-m.capacity)
	}
	return entry, nil
}

func (m *MemoryLog) GetConversion(_ context.Context, id uuid.UUID) (Conversion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, entry := range m.entries {
		if entry.ID == id {
			return entry, nil
		}
	}
	return Conversion{}, ErrNotFound
}

// ListConversions returns the newest entries first.
func (m *MemoryLog) ListConversions(_ context.Context, filter ConversionFilter) ([]Conversion, error) {
	limit := filter.NormalizedLimit()

	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Conversion, 0, min(limit, len(m.entries)))
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		entry := m.entries[i]
		if filter.Outcome != "" && entry.Outcome != filter.Outcome {
			continue
		}
		if filter.Before != nil && !entry.CreatedAt.Before(*filter.Before) {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}
