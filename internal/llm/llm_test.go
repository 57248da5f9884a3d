package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/budgetlens/budgetlens/internal/secrets"
)

type staticSecrets map[string]string

func (s staticSecrets) Get(_ context.Context, name string) (string, error) {
	if v, ok := s[name]; ok {
		return v, nil
	}
	return "", secrets.ErrNotFound
}

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:      baseURL,
		Model:        "test-model",
		APIKeySecret: "model-api-key",
		Secrets:      staticSecrets{"model-api-key": "k-123"},
		Timeout:      2 * time.Second,
	}
}

func TestGeminiSendsGenerationConfigAndReturnsText(t *testing.T) {
	var captured geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/test-model:generateContent" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "k-123" {
			t.Errorf("api key header = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"SQL:\n"},{"text":"` + "```sql\\nSELECT 1\\n```" + `"}]}}]}`))
	}))
	defer srv.Close()

	model, err := NewGemini(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("NewGemini() error = %v", err)
	}
	text, err := model.Generate(context.Background(), Request{Prompt: "question", Params: DefaultParams()})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !strings.Contains(text, "SELECT 1") || !strings.HasPrefix(text, "SQL:") {
		t.Fatalf("Generate() = %q", text)
	}
	cfg := captured.GenerationConfig
	if cfg.Temperature != 0.2 || cfg.TopP != 0.8 || cfg.TopK != 40 || cfg.MaxOutputTokens != 8192 {
		t.Fatalf("generation config = %+v", cfg)
	}
	if cfg.ResponseMimeType != "" {
		t.Fatalf("plain request should not set response mime type, got %q", cfg.ResponseMimeType)
	}
	if captured.Contents[0].Parts[0].Text != "question" {
		t.Fatalf("prompt = %+v", captured.Contents)
	}
}

func TestGeminiStructuredRequestsJSON(t *testing.T) {
	payload := buildGeminiPayload(Request{Prompt: "q", Structured: true})
	if payload.GenerationConfig.ResponseMimeType != "application/json" {
		t.Fatalf("ResponseMimeType = %q", payload.GenerationConfig.ResponseMimeType)
	}
	if !json.Valid(payload.GenerationConfig.ResponseSchema) {
		t.Fatal("response schema is not valid json")
	}
	if payload.GenerationConfig.TopK != 40 {
		t.Fatalf("zero params should fall back to defaults, got %+v", payload.GenerationConfig)
	}
}

func TestGeminiErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   ErrorKind
	}{
		{name: "quota", status: http.StatusTooManyRequests, body: `{"error":{"code":429}}`, want: KindQuota},
		{name: "auth", status: http.StatusForbidden, body: `denied`, want: KindAuth},
		{name: "server", status: http.StatusInternalServerError, body: `oops`, want: KindStatus},
		{name: "redirect", status: http.StatusMultipleChoices, body: `{"candidates":[{"content":{"parts":[{"text":"SELECT 1"}]}}]}`, want: KindStatus},
		{name: "malformed", status: http.StatusOK, body: `{not json`, want: KindMalformed},
		{name: "empty", status: http.StatusOK, body: `{"candidates":[]}`, want: KindEmpty},
		{name: "blocked", status: http.StatusOK, body: `{"promptFeedback":{"blockReason":"SAFETY"}}`, want: KindBlocked},
		{name: "embedded error", status: http.StatusOK, body: `{"error":{"code":401,"message":"bad key"}}`, want: KindAuth},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			model, err := NewGemini(testConfig(srv.URL))
			if err != nil {
				t.Fatal(err)
			}
			_, err = model.Generate(context.Background(), Request{Prompt: "q"})
			var llmErr *Error
			if !errors.As(err, &llmErr) {
				t.Fatalf("error = %v, want *Error", err)
			}
			if llmErr.Kind != tc.want {
				t.Fatalf("Kind = %q, want %q", llmErr.Kind, tc.want)
			}
			if KindOf(err) != tc.want {
				t.Fatalf("KindOf() = %q", KindOf(err))
			}
		})
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	tests := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"abcdef", 3, "abc..."},
		{"Nettokertymä", 12, "Nettokertym..."},
		{"ääää", 3, "ä..."},
		{"ä", 1, "..."},
	}
	for _, tc := range tests {
		got := truncate(tc.in, tc.maxLen)
		if got != tc.want {
			t.Fatalf("truncate(%q, %d) = %q, want %q", tc.in, tc.maxLen, got, tc.want)
		}
		if !utf8.ValidString(got) {
			t.Fatalf("truncate(%q, %d) = %q is not valid UTF-8", tc.in, tc.maxLen, got)
		}
	}
}

func TestMissingCredentialIsReported(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Secrets = staticSecrets{}
	model, err := NewGemini(cfg)
	if err != nil {
		t.Fatal(err)
	}
	_, err = model.Generate(context.Background(), Request{Prompt: "q"})
	if KindOf(err) != KindCredentials {
		t.Fatalf("KindOf() = %q, want credentials", KindOf(err))
	}
	if !errors.Is(err, secrets.ErrNotFound) {
		t.Fatalf("error should wrap secrets.ErrNotFound: %v", err)
	}
}

func TestTimeoutIsClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	model, err := NewOpenAI(testConfig(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = model.Generate(ctx, Request{Prompt: "q"})
	if KindOf(err) != KindTimeout {
		t.Fatalf("KindOf() = %q, want timeout (err=%v)", KindOf(err), err)
	}
}

func TestOpenAIPayloadAndResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer k-123" {
			t.Errorf("Authorization = %q", got)
		}
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if payload["model"] != "test-model" || payload["top_p"] != 0.8 {
			t.Errorf("payload = %v", payload)
		}
		if _, ok := payload["response_format"]; !ok {
			t.Errorf("structured request should set response_format")
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"sql\":\"SELECT 1\"}"}}]}`))
	}))
	defer srv.Close()

	model, err := NewOpenAI(testConfig(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	text, err := model.Generate(context.Background(), Request{Prompt: "q", Structured: true})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if text != `{"sql":"SELECT 1"}` {
		t.Fatalf("Generate() = %q", text)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{Provider: "llama"}); err == nil {
		t.Fatal("expected unknown provider error")
	}
	if _, err := New(Config{Provider: "gemini", APIKeySecret: "k"}); err == nil {
		t.Fatal("expected missing secret store error")
	}
	if _, err := New(Config{Provider: "openai", Secrets: staticSecrets{}}); err == nil {
		t.Fatal("expected missing secret name error")
	}
	model, err := New(Config{Provider: "Gemini", APIKeySecret: "k", Secrets: staticSecrets{}})
	if err != nil || model.Provider() != "gemini" {
		t.Fatalf("New() = %v, %v", model, err)
	}
}
