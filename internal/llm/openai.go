package llm

import (
	"context"
	"encoding/json"
	"strings"
)

const (
	openAIDefaultBaseURL = "https://api.openai.com"
	openAIDefaultModel   = "gpt-4o-mini"
)

// OpenAI talks to any OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	http *httpClient
}

func NewOpenAI(cfg Config) (*OpenAI, error) {
	c, err := newHTTPClient("openai", openAIDefaultBaseURL, openAIDefaultModel, cfg)
	if err != nil {
		return nil, err
	}
	return &OpenAI{http: c}, nil
}

func (o *OpenAI) Provider() string { return o.http.provider }

const openAISystemPrompt = "You translate questions about Finnish state budget data into analytical SQL. " +
	"Follow the output format requested in the user message exactly."

func buildOpenAIPayload(model string, req Request) map[string]any {
	params := req.Params
	if params == (Params{}) {
		params = DefaultParams()
	}
	payload := map[string]any{
		"model": model,
		"messages": []map[string]string{
			{"role": "system", "content": openAISystemPrompt},
			{"role": "user", "content": req.Prompt},
		},
		"temperature": params.Temperature,
		"top_p":       params.TopP,
		"max_tokens":  params.MaxOutputTokens,
	}
	if req.Structured {
		payload["response_format"] = map[string]string{"type": "json_object"}
	}
	return payload
}

func (o *OpenAI) Generate(ctx context.Context, req Request) (string, error) {
	key, err := o.http.apiKey(ctx)
	if err != nil {
		return "", err
	}
	raw, err := o.http.postJSON(ctx, o.http.baseURL+"/v1/chat/completions",
		map[string]string{"Authorization": "Bearer " + key},
		buildOpenAIPayload(o.http.model, req))
	if err != nil {
		return "", err
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &Error{Kind: KindMalformed, Provider: o.Provider(), Message: "decode chat completion response", Err: err}
	}
	if len(parsed.Choices) == 0 {
		return "", &Error{Kind: KindEmpty, Provider: o.Provider(), Message: "empty chat completion choices"}
	}
	content := parsed.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		if parsed.Choices[0].FinishReason == "content_filter" {
			return "", &Error{Kind: KindBlocked, Provider: o.Provider(), Message: "completion blocked by content filter"}
		}
		return "", &Error{Kind: KindEmpty, Provider: o.Provider(), Message: "model returned empty content"}
	}
	return content, nil
}
