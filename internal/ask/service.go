// Package ask runs a question end to end. It translates the question into a
// query, executes it against the dataset, picks a chart archetype and budget
// indicators for the rows and records the attempt in the conversion log.
package ask

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/budgetlens/budgetlens/internal/analytics"
	"github.com/budgetlens/budgetlens/internal/catalog"
	"github.com/budgetlens/budgetlens/internal/dataset"
	"github.com/budgetlens/budgetlens/internal/nl2q"
	"github.com/budgetlens/budgetlens/internal/observability"
	"github.com/budgetlens/budgetlens/internal/query"
	"github.com/budgetlens/budgetlens/internal/viz"
)

// YearSource reports the year range present in the dataset.
type YearSource interface {
	Years(ctx context.Context) (dataset.Years, error)
}

type Config struct {
	Table    string
	RowLimit int
}

type Service struct {
	translator nl2q.Strategy
	executor   query.Executor
	history    catalog.ConversionLog
	years      YearSource
	config     Config
	logger     *slog.Logger
	now        func() time.Time
}

// Options carries the optional collaborators. A nil Executor limits the
// service to translation; a nil History skips recording.
type Options struct {
	Executor query.Executor
	History  catalog.ConversionLog
	Years    YearSource
	Logger   *slog.Logger
}

func NewService(translator nl2q.Strategy, cfg Config, opts Options) (*Service, error) {
	if translator == nil {
		return nil, errors.New("translator is required")
	}
	return &Service{
		translator: translator,
		executor:   opts.Executor,
		history:    opts.History,
		years:      opts.Years,
		config:     cfg,
		logger:     observability.LoggerOrDiscard(opts.Logger),
		now:        time.Now,
	}, nil
}

// CanExecute reports whether an executor is configured.
func (s *Service) CanExecute() bool {
	return s.executor != nil
}

type Translation struct {
	ID         uuid.UUID   `json:"id"`
	Conversion nl2q.Result `json:"conversion"`
	DurationMs int64       `json:"duration_ms"`
}

type Answer struct {
	Translation
	Columns       []string          `json:"columns"`
	Rows          [][]any           `json:"rows"`
	RowCount      int               `json:"row_count"`
	Visualization viz.VizType       `json:"visualization"`
	Title         string            `json:"title"`
	Shape         viz.Shape         `json:"shape"`
	Analytics     *analytics.Report `json:"analytics,omitempty"`
	Execution     ExecutionRef      `json:"execution"`
}

type ExecutionRef struct {
	DurationMs   int64 `json:"duration_ms"`
	ScannedFiles int   `json:"scanned_files"`
	ScannedBytes int64 `json:"scanned_bytes"`
}

// Translate converts a question without executing it. A failed conversion
// is returned both in the result and as *nl2q.Error.
func (s *Service) Translate(ctx context.Context, req nl2q.Request) (Translation, error) {
	start := s.now()
	req = s.withAvailableYears(ctx, req)
	result := s.translator.Attempt(ctx, req)
	translation := Translation{Conversion: result, DurationMs: s.now().Sub(start).Milliseconds()}
	translation.ID = s.record(ctx, req, result, nil, translation.DurationMs)
	return translation, result.Err()
}

// Ask translates, executes and classifies. Execution failures are reported
// as *nl2q.Error of kind execution wrapping the executor's error.
func (s *Service) Ask(ctx context.Context, req nl2q.Request, preference viz.VizType) (Answer, error) {
	start := s.now()
	req = s.withAvailableYears(ctx, req)
	result := s.translator.Attempt(ctx, req)
	answer := Answer{Translation: Translation{Conversion: result}}
	if !result.OK() {
		answer.DurationMs = s.now().Sub(start).Milliseconds()
		answer.ID = s.record(ctx, req, result, nil, answer.DurationMs)
		return answer, result.Err()
	}
	if s.executor == nil {
		answer.DurationMs = s.now().Sub(start).Milliseconds()
		err := &nl2q.Error{Kind: nl2q.KindExecution, Message: "query execution is not configured"}
		answer.ID = s.recordFailure(ctx, req, result, err, answer.DurationMs)
		return answer, err
	}

	if !query.IsReadOnly(result.Query) {
		answer.DurationMs = s.now().Sub(start).Milliseconds()
		err := &nl2q.Error{
			Kind:    nl2q.KindExecution,
			Message: "generated query is not a single read-only statement",
			Cause:   &query.ExecutionError{Kind: query.KindPermissionDenied, Message: "only SELECT/WITH queries are executed"},
		}
		answer.ID = s.recordFailure(ctx, req, result, err, answer.DurationMs)
		return answer, err
	}

	executed, err := s.executor.Execute(ctx, query.Request{SQL: result.Query, Table: s.config.Table, RowLimit: s.config.RowLimit})
	answer.DurationMs = s.now().Sub(start).Milliseconds()
	if err != nil {
		execErr := &nl2q.Error{Kind: nl2q.KindExecution, Message: executionMessage(err), Cause: err}
		s.logger.Warn("generated query failed",
			slog.String("strategy", result.Strategy),
			slog.String("kind", string(query.KindOf(err))),
			slog.Any("error", err),
		)
		answer.ID = s.recordFailure(ctx, req, result, execErr, answer.DurationMs)
		return answer, execErr
	}

	answer.Columns = executed.Columns
	answer.Rows = executed.Rows
	answer.RowCount = len(executed.Rows)
	answer.Shape = viz.InferShape(executed.Columns, executed.Rows)
	answer.Visualization = viz.Choose(answer.Shape, preference)
	answer.Title = viz.SuggestTitle(req.Question, executed.Columns, executed.Rows)
	answer.Analytics = analytics.Analyze(executed.Columns, executed.Rows)
	answer.Execution = ExecutionRef{
		DurationMs:   executed.Duration.Milliseconds(),
		ScannedFiles: executed.ScannedFiles,
		ScannedBytes: executed.ScannedBytes,
	}
	rowCount := answer.RowCount
	answer.ID = s.record(ctx, req, result, &rowCount, answer.DurationMs)
	return answer, nil
}

func (s *Service) withAvailableYears(ctx context.Context, req nl2q.Request) nl2q.Request {
	if req.AvailableYears != nil || s.years == nil {
		return req
	}
	years, err := s.years.Years(ctx)
	if err != nil {
		s.logger.Warn("available years unknown", slog.Any("error", err))
		return req
	}
	req.AvailableYears = &nl2q.YearRange{Min: years.Min, Max: years.Max}
	return req
}

func (s *Service) record(ctx context.Context, req nl2q.Request, result nl2q.Result, rowCount *int, durationMs int64) uuid.UUID {
	in := catalog.InsertConversionInput{
		Question:    req.Question,
		Query:       result.Query,
		Explanation: result.Explanation,
		Strategy:    result.Strategy,
		FailureKind: string(result.Failure),
		Warnings:    result.Warnings,
		RowCount:    rowCount,
		DurationMs:  durationMs,
	}
	return s.insert(ctx, in)
}

func (s *Service) recordFailure(ctx context.Context, req nl2q.Request, result nl2q.Result, err *nl2q.Error, durationMs int64) uuid.UUID {
	in := catalog.InsertConversionInput{
		Question:    req.Question,
		Query:       result.Query,
		Explanation: err.Message,
		Strategy:    result.Strategy,
		FailureKind: string(err.Kind),
		Warnings:    result.Warnings,
		DurationMs:  durationMs,
	}
	return s.insert(ctx, in)
}

func (s *Service) insert(ctx context.Context, in catalog.InsertConversionInput) uuid.UUID {
	if s.history == nil {
		return uuid.Nil
	}
	// Detached so that a request cancelled after conversion is still logged.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	entry, err := s.history.InsertConversion(recordCtx, in)
	if err != nil {
		s.logger.Warn("conversion not recorded", slog.Any("error", err))
		return uuid.Nil
	}
	return entry.ID
}

func executionMessage(err error) string {
	var execErr *query.ExecutionError
	if errors.As(err, &execErr) && execErr.Message != "" {
		return execErr.Message
	}
	return err.Error()
}
