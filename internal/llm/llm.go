// Package llm is the text generation boundary. It hides provider wire formats
// behind Model and reports every failure as *Error.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/budgetlens/budgetlens/internal/secrets"
)

type Params struct {
	Temperature     float64
	TopP            float64
	TopK            int
	MaxOutputTokens int
}

func DefaultParams() Params {
	return Params{Temperature: 0.2, TopP: 0.8, TopK: 40, MaxOutputTokens: 8192}
}

type Request struct {
	Prompt string
	Params Params
	// Structured asks the provider for a JSON object with sql, explanation,
	// confidence and assumptions.
	Structured bool
}

type Model interface {
	Provider() string
	Generate(ctx context.Context, req Request) (string, error)
}

type ErrorKind string

const (
	KindCredentials ErrorKind = "credentials"
	KindTransport   ErrorKind = "transport"
	KindTimeout     ErrorKind = "timeout"
	KindAuth        ErrorKind = "auth"
	KindQuota       ErrorKind = "quota"
	KindStatus      ErrorKind = "status"
	KindMalformed   ErrorKind = "malformed_response"
	KindEmpty       ErrorKind = "empty_response"
	KindBlocked     ErrorKind = "blocked"
)

type Error struct {
	Kind       ErrorKind
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s generation failed (%s, status=%d): %s", e.Provider, e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s generation failed (%s): %s", e.Provider, e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, or KindTransport for foreign errors.
func KindOf(err error) ErrorKind {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Kind
	}
	return KindTransport
}

type Config struct {
	Provider      string
	BaseURL       string
	Model         string
	APIKeySecret  string
	Secrets       secrets.Store
	Timeout       time.Duration
	RatePerSecond float64
	RateBurst     int
	HTTPClient    *http.Client
	Logger        *slog.Logger
}

// New builds the client for cfg.Provider.
func New(cfg Config) (Model, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "gemini":
		return NewGemini(cfg)
	case "openai":
		return NewOpenAI(cfg)
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

func classifyStatus(code int) ErrorKind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindAuth
	case code == http.StatusTooManyRequests:
		return KindQuota
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return KindTimeout
	default:
		return KindStatus
	}
}

func classifyTransport(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindTransport
}

// truncate shortens s to at most maxLen bytes without splitting a rune.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
