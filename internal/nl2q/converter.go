package nl2q

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/budgetlens/budgetlens/internal/llm"
	"github.com/budgetlens/budgetlens/internal/observability"
	"github.com/budgetlens/budgetlens/internal/schema"
)

type State string

const (
	StateIdle         State = "idle"
	StatePromptBuilt  State = "prompt_built"
	StateModelInvoked State = "model_invoked"
	StateParsed       State = "parsed"
	StateModelFailed  State = "model_failed"
	StateSanitized    State = "sanitized"
	StateParseFailed  State = "parse_failed"
	StateDone         State = "done"
)

const TableInfoNotSet = "Table information not set"

// Result is the single outcome shape of a conversion. An empty Query means
// failure, in which case Explanation names the cause.
type Result struct {
	Query       string       `json:"query,omitempty"`
	Explanation string       `json:"explanation"`
	Confidence  *float64     `json:"confidence,omitempty"`
	Assumptions []string     `json:"assumptions,omitempty"`
	Warnings    []string     `json:"warnings,omitempty"`
	Strategy    string       `json:"strategy"`
	Source      ResponseKind `json:"source,omitempty"`
	Failure     ErrorKind    `json:"failure,omitempty"`
	Path        []State      `json:"path"`

	cause error
}

func (r Result) OK() bool {
	return r.Query != "" && r.Failure == ""
}

// Err returns the failure as *Error, or nil on success.
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	return &Error{Kind: r.Failure, Message: r.Explanation, Cause: r.cause}
}

// SchemaSource is the part of the schema registry a converter reads.
type SchemaSource interface {
	Fields(ctx context.Context) ([]schema.Field, error)
	Fingerprint(ctx context.Context) (string, error)
}

type ConverterConfig struct {
	Table   string
	Dialect Dialect
	Params  llm.Params
}

// Converter runs one prompt variant through build, invoke, parse and
// sanitize. It never retries.
type Converter struct {
	table     string
	params    llm.Params
	schema    SchemaSource
	model     llm.Model
	builder   *Builder
	sanitizer Sanitizer
	validator Validator
	logger    *slog.Logger
}

func NewConverter(cfg ConverterConfig, source SchemaSource, model llm.Model, builder *Builder, logger *slog.Logger) (*Converter, error) {
	if strings.TrimSpace(cfg.Table) == "" {
		return nil, errors.New("table is required")
	}
	if source == nil {
		return nil, errors.New("schema source is required")
	}
	if model == nil {
		return nil, errors.New("model is required")
	}
	if builder == nil {
		return nil, errors.New("prompt builder is required")
	}
	if cfg.Dialect.Quote == 0 {
		cfg.Dialect = Backtick
	}
	if cfg.Params == (llm.Params{}) {
		cfg.Params = llm.DefaultParams()
	}
	return &Converter{
		table:     strings.TrimSpace(cfg.Table),
		params:    cfg.Params,
		schema:    source,
		model:     model,
		builder:   builder,
		sanitizer: NewSanitizer(cfg.Dialect),
		validator: NewValidator(builder.Pack(), cfg.Dialect),
		logger:    observability.LoggerOrDiscard(logger),
	}, nil
}

func (c *Converter) Table() string {
	return c.table
}

func (c *Converter) Convert(ctx context.Context, req Request, variant Variant) Result {
	run := &conversion{result: Result{Strategy: string(variant)}}
	run.enter(StateIdle)
	result := c.convert(ctx, req, variant, run)

	outcome := "success"
	if !result.OK() {
		outcome = string(result.Failure)
	}
	observability.ObserveConversion(string(variant), outcome)
	return result
}

func (c *Converter) convert(ctx context.Context, req Request, variant Variant, run *conversion) Result {
	if strings.TrimSpace(req.Question) == "" {
		return run.fail(KindInvalidRequest, "Question is empty", nil)
	}
	if req.Filters.YearStart != nil && req.Filters.YearEnd != nil && *req.Filters.YearStart > *req.Filters.YearEnd {
		return run.fail(KindInvalidRequest, fmt.Sprintf("Year range %d to %d is inverted", *req.Filters.YearStart, *req.Filters.YearEnd), nil)
	}

	fields, err := c.schema.Fields(ctx)
	if errors.Is(err, schema.ErrEmptySchema) {
		return run.fail(KindSchemaEmpty, TableInfoNotSet, nil)
	}
	if err != nil {
		c.logger.Error("schema unavailable", slog.Any("error", err))
		return run.fail(KindSchemaLoad, "Schema could not be loaded: "+err.Error(), err)
	}
	if len(fields) == 0 {
		return run.fail(KindSchemaEmpty, TableInfoNotSet, nil)
	}
	fingerprint, err := c.schema.Fingerprint(ctx)
	if err != nil {
		return run.fail(KindSchemaLoad, "Schema could not be loaded: "+err.Error(), err)
	}

	prompt := c.builder.Build(c.table, fields, fingerprint, req, variant)
	run.enter(StatePromptBuilt)

	started := time.Now()
	text, err := c.model.Generate(ctx, llm.Request{
		Prompt:     prompt,
		Params:     c.params,
		Structured: variant == VariantStructured,
	})
	run.enter(StateModelInvoked)
	if err != nil {
		kind := llm.KindOf(err)
		c.logger.Warn("model invocation failed",
			slog.String("strategy", string(variant)),
			slog.String("kind", string(kind)),
			slog.Int64("duration_ms", time.Since(started).Milliseconds()),
			slog.Any("error", err),
		)
		run.enter(StateModelFailed)
		return run.fail(KindModelInvocation, fmt.Sprintf("Error generating SQL: model invocation failed (%s): %s", kind, describe(err)), err)
	}

	parsed := Parse(text)
	observability.ObserveParsedResponse(string(parsed.Kind))
	if !parsed.OK() {
		run.enter(StateParseFailed)
		c.logger.Info("model response unparseable", slog.String("strategy", string(variant)), slog.Int("response_chars", len(text)))
		return run.fail(KindParse, parsed.Explanation, nil)
	}
	run.enter(StateParsed)

	query := c.sanitizer.Sanitize(parsed.Query, schema.ProtectedNames(fields))
	query = c.sanitizer.QualifyTable(query, c.table)
	run.enter(StateSanitized)

	result := run.done()
	result.Query = query
	result.Explanation = parsed.Explanation
	result.Confidence = parsed.Confidence
	result.Assumptions = parsed.Assumptions
	result.Source = parsed.Kind
	result.Warnings = c.validator.Check(query, c.table, fields)
	c.logger.Debug("query generated",
		slog.String("strategy", string(variant)),
		slog.String("source", string(parsed.Kind)),
		slog.Int("warnings", len(result.Warnings)),
	)
	return result
}

func describe(err error) string {
	var llmErr *llm.Error
	if errors.As(err, &llmErr) {
		if llmErr.Message != "" {
			return llmErr.Message
		}
		if llmErr.Err != nil {
			return llmErr.Err.Error()
		}
	}
	return err.Error()
}

type conversion struct {
	result Result
}

func (c *conversion) enter(state State) {
	c.result.Path = append(c.result.Path, state)
}

func (c *conversion) done() Result {
	c.enter(StateDone)
	return c.result
}

func (c *conversion) fail(kind ErrorKind, explanation string, cause error) Result {
	if strings.TrimSpace(explanation) == "" {
		explanation = NoExplanation
	}
	c.result.Failure = kind
	c.result.Explanation = explanation
	c.result.cause = cause
	return c.done()
}
