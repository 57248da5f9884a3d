package budgetctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

type call struct {
	method string
	path   string
	body   any
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("budgetctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "budgetlens API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 90*time.Second), "HTTP timeout (e.g. 90s)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	command := strings.TrimSpace(fs.Arg(0))
	req, err := buildCall(command, fs.Args()[1:], stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n\n", err)
		writeUsage(stderr)
		return 2
	}

	endpoint := strings.TrimRight(*baseURL, "/") + req.path
	code, responseBody, err := doRequest(ctx, client, req.method, endpoint, *apiKey, req.body)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

func buildCall(command string, args []string, stderr io.Writer) (call, error) {
	switch command {
	case "health":
		return call{method: http.MethodGet, path: "/v1/health"}, nil
	case "ready":
		return call{method: http.MethodGet, path: "/v1/ready"}, nil
	case "schema":
		return call{method: http.MethodGet, path: "/v1/schema"}, nil
	case "translate", "ask":
		return questionCall(command, args, stderr)
	case "query":
		fs := flag.NewFlagSet("query", flag.ContinueOnError)
		fs.SetOutput(stderr)
		rowLimit := fs.Int("row-limit", 0, "maximum rows to return")
		if err := fs.Parse(args); err != nil {
			return call{}, err
		}
		sqlText := strings.TrimSpace(strings.Join(fs.Args(), " "))
		if sqlText == "" {
			return call{}, fmt.Errorf("query requires an SQL statement")
		}
		body := map[string]any{"sql": sqlText}
		if *rowLimit > 0 {
			body["row_limit"] = *rowLimit
		}
		return call{method: http.MethodPost, path: "/v1/query", body: body}, nil
	case "history":
		fs := flag.NewFlagSet("history", flag.ContinueOnError)
		fs.SetOutput(stderr)
		limit := fs.Int("limit", 0, "maximum entries to list")
		outcome := fs.String("outcome", "", "success or failure")
		before := fs.String("before", "", "list entries created before this RFC3339 time")
		if err := fs.Parse(args); err != nil {
			return call{}, err
		}
		if fs.NArg() == 1 {
			return call{method: http.MethodGet, path: "/v1/history/" + url.PathEscape(fs.Arg(0))}, nil
		}
		if fs.NArg() > 1 {
			return call{}, fmt.Errorf("history accepts at most one conversion id")
		}
		values := url.Values{}
		if *limit > 0 {
			values.Set("limit", strconv.Itoa(*limit))
		}
		if *outcome != "" {
			values.Set("outcome", *outcome)
		}
		if *before != "" {
			values.Set("before", *before)
		}
		path := "/v1/history"
		if encoded := values.Encode(); encoded != "" {
			path += "?" + encoded
		}
		return call{method: http.MethodGet, path: path}, nil
	default:
		return call{}, fmt.Errorf("unknown command %q", command)
	}
}

func questionCall(command string, args []string, stderr io.Writer) (call, error) {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	fs.SetOutput(stderr)
	yearStart := fs.Int("year-start", 0, "first year to include")
	yearEnd := fs.Int("year-end", 0, "last year to include")
	visualization := ""
	if command == "ask" {
		fs.StringVar(&visualization, "viz", "", "preferred visualization")
	}
	if err := fs.Parse(args); err != nil {
		return call{}, err
	}
	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		return call{}, fmt.Errorf("%s requires a question", command)
	}

	body := map[string]any{"question": question}
	filters := map[string]any{}
	if *yearStart > 0 {
		filters["year_start"] = *yearStart
	}
	if *yearEnd > 0 {
		filters["year_end"] = *yearEnd
	}
	if len(filters) > 0 {
		body["filters"] = filters
	}
	if visualization != "" {
		body["visualization"] = visualization
	}
	path := "/v1/ask"
	if command == "translate" {
		path = "/v1/query/translate"
	}
	return call{method: http.MethodPost, path: path, body: body}, nil
}

func doRequest(ctx context.Context, client *http.Client, method, endpoint, apiKey string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: budgetctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health                                   GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready                                    GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  schema                                   GET /v1/schema")
	_, _ = fmt.Fprintln(w, "  translate [-year-start N] [-year-end N] <question>")
	_, _ = fmt.Fprintln(w, "                                           POST /v1/query/translate")
	_, _ = fmt.Fprintln(w, "  ask [-viz TYPE] [-year-start N] [-year-end N] <question>")
	_, _ = fmt.Fprintln(w, "                                           POST /v1/ask")
	_, _ = fmt.Fprintln(w, "  query [-row-limit N] <sql>               POST /v1/query")
	_, _ = fmt.Fprintln(w, "  history [-limit N] [-outcome O] [id]     GET /v1/history")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
