package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/budgetlens/budgetlens/internal/observability"
	"github.com/budgetlens/budgetlens/internal/secrets"
)

// httpClient carries what both providers share: credentials, rate limiting,
// timeouts and latency metrics.
type httpClient struct {
	provider     string
	baseURL      string
	model        string
	apiKeySecret string
	secrets      secrets.Store
	client       *http.Client
	limiter      *rate.Limiter
	logger       *slog.Logger
}

func newHTTPClient(provider, defaultBaseURL, defaultModel string, cfg Config) (*httpClient, error) {
	if cfg.Secrets == nil {
		return nil, fmt.Errorf("secret store is required")
	}
	if strings.TrimSpace(cfg.APIKeySecret) == "" {
		return nil, fmt.Errorf("api key secret name is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	return &httpClient{
		provider:     provider,
		baseURL:      baseURL,
		model:        model,
		apiKeySecret: strings.TrimSpace(cfg.APIKeySecret),
		secrets:      cfg.Secrets,
		client:       client,
		limiter:      rate.NewLimiter(limit, burst),
		logger:       observability.LoggerOrDiscard(cfg.Logger),
	}, nil
}

func (c *httpClient) apiKey(ctx context.Context) (string, error) {
	key, err := c.secrets.Get(ctx, c.apiKeySecret)
	if err != nil {
		return "", &Error{Kind: KindCredentials, Provider: c.provider, Message: "api key unavailable", Err: err}
	}
	return key, nil
}

// postJSON sends payload and returns the raw body of a 2xx response.
func (c *httpClient) postJSON(ctx context.Context, url string, headers map[string]string, payload any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &Error{Kind: classifyTransport(err), Provider: c.provider, Message: "rate limiter wait", Err: err}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Provider: c.provider, Message: "marshal request", Err: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindTransport, Provider: c.provider, Message: "build request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		observability.ObserveModelRequest(c.provider, "error", time.Since(start))
		return nil, &Error{Kind: classifyTransport(err), Provider: c.provider, Message: "request failed", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	observability.ObserveModelRequest(c.provider, strconv.Itoa(resp.StatusCode), time.Since(start))
	if err != nil {
		return nil, &Error{Kind: classifyTransport(err), Provider: c.provider, StatusCode: resp.StatusCode, Message: "read response body", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.WarnContext(ctx, "model request rejected",
			slog.String("provider", c.provider),
			slog.Int("status", resp.StatusCode),
			slog.String("body", truncate(string(raw), 300)),
		)
		return nil, &Error{
			Kind:       classifyStatus(resp.StatusCode),
			Provider:   c.provider,
			StatusCode: resp.StatusCode,
			Message:    truncate(strings.TrimSpace(string(raw)), 200),
		}
	}
	return raw, nil
}
