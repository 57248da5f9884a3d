package dataset

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/budgetlens/budgetlens/internal/query"
)

// Years is the inclusive range of Vuosi values present in the dataset.
type Years struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// YearCache asks the executor for the dataset's year range and keeps the
// answer for ttl. Concurrent callers share one query.
type YearCache struct {
	executor query.Executor
	table    string
	quote    func(string) string
	ttl      time.Duration
	now      func() time.Time

	group     singleflight.Group
	mu        sync.Mutex
	years     Years
	fetchedAt time.Time
}

func NewYearCache(executor query.Executor, table string, quote func(string) string, ttl time.Duration) *YearCache {
	if quote == nil {
		quote = func(name string) string { return "`" + name + "`" }
	}
	return &YearCache{executor: executor, table: table, quote: quote, ttl: ttl, now: time.Now}
}

func (p *YearCache) Years(ctx context.Context) (Years, error) {
	p.mu.Lock()
	if !p.fetchedAt.IsZero() && p.now().Sub(p.fetchedAt) < p.ttl {
		years := p.years
		p.mu.Unlock()
		return years, nil
	}
	p.mu.Unlock()

	value, err, _ := p.group.Do("years", func() (any, error) {
		years, err := p.fetch(ctx)
		if err != nil {
			return Years{}, err
		}
		p.mu.Lock()
		p.years = years
		p.fetchedAt = p.now()
		p.mu.Unlock()
		return years, nil
	})
	if err != nil {
		return Years{}, err
	}
	return value.(Years), nil
}

func (p *YearCache) fetch(ctx context.Context) (Years, error) {
	sqlText := fmt.Sprintf("SELECT MIN(%[1]s) AS min_year, MAX(%[1]s) AS max_year FROM %[2]s",
		p.quote("Vuosi"), p.quote(p.table))
	result, err := p.executor.Execute(ctx, query.Request{SQL: sqlText, Table: p.table, RowLimit: 1})
	if err != nil {
		return Years{}, err
	}
	if len(result.Rows) == 0 || len(result.Rows[0]) < 2 {
		return Years{}, fmt.Errorf("year range query returned no rows")
	}
	minYear, okMin := asInt(result.Rows[0][0])
	maxYear, okMax := asInt(result.Rows[0][1])
	if !okMin || !okMax {
		return Years{}, fmt.Errorf("dataset has no years")
	}
	return Years{Min: minYear, Max: maxYear}, nil
}

func asInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int16:
		return int(v), true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		if math.Trunc(v) != v {
			return 0, false
		}
		return int(v), true
	default:
		return 0, false
	}
}
