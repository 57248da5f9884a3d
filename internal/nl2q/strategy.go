package nl2q

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/budgetlens/budgetlens/internal/llm"
	"github.com/budgetlens/budgetlens/internal/observability"
)

// Strategy is one independent attempt at a conversion.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, req Request) Result
}

type variantStrategy struct {
	variant   Variant
	converter *Converter
}

func (s variantStrategy) Name() string {
	return string(s.variant)
}

func (s variantStrategy) Attempt(ctx context.Context, req Request) Result {
	return s.converter.Convert(ctx, req, s.variant)
}

func PlainStrategy(c *Converter) Strategy {
	return variantStrategy{variant: VariantPlain, converter: c}
}

func StructuredStrategy(c *Converter) Strategy {
	return variantStrategy{variant: VariantStructured, converter: c}
}

func FewShotStrategy(c *Converter) Strategy {
	return variantStrategy{variant: VariantFewShot, converter: c}
}

// StrategiesByName maps configured names to strategies, keeping their order.
func StrategiesByName(c *Converter, names []string) ([]Strategy, error) {
	out := make([]Strategy, 0, len(names))
	for _, name := range names {
		switch Variant(strings.ToLower(strings.TrimSpace(name))) {
		case VariantPlain:
			out = append(out, PlainStrategy(c))
		case VariantStructured:
			out = append(out, StructuredStrategy(c))
		case VariantFewShot:
			out = append(out, FewShotStrategy(c))
		default:
			return nil, fmt.Errorf("unknown strategy %q", name)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one strategy is required")
	}
	return out, nil
}

// Chain tries its strategies strictly in order and returns the first
// result with a query. Failures that no other prompt can fix end the chain
// early.
type Chain struct {
	strategies []Strategy
	logger     *slog.Logger
}

func NewChain(logger *slog.Logger, strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies, logger: observability.LoggerOrDiscard(logger)}
}

func (c *Chain) Name() string {
	return "chain"
}

func (c *Chain) Attempt(ctx context.Context, req Request) Result {
	if len(c.strategies) == 0 {
		return Result{
			Strategy:    c.Name(),
			Failure:     KindInvalidRequest,
			Explanation: "No conversion strategy configured",
			Path:        []State{StateIdle, StateDone},
		}
	}
	var last Result
	for i, strategy := range c.strategies {
		last = strategy.Attempt(ctx, req)
		last.Strategy = strategy.Name()
		if last.OK() {
			if i > 0 {
				c.logger.Info("fallback strategy succeeded", slog.String("strategy", strategy.Name()), slog.Int("attempt", i+1))
			}
			return last
		}
		if terminal(last) {
			break
		}
		if ctx.Err() != nil {
			break
		}
		c.logger.Debug("strategy failed, escalating",
			slog.String("strategy", strategy.Name()),
			slog.String("failure", string(last.Failure)),
		)
	}
	return last
}

func terminal(r Result) bool {
	switch r.Failure {
	case KindInvalidRequest, KindSchemaLoad, KindSchemaEmpty:
		return true
	case KindModelInvocation:
		switch llm.KindOf(r.cause) {
		case llm.KindCredentials, llm.KindAuth, llm.KindQuota:
			return true
		}
	}
	return false
}
