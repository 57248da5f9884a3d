package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	geminiDefaultBaseURL = "https://generativelanguage.googleapis.com"
	geminiDefaultModel   = "gemini-2.0-flash-001"
)

// Gemini calls the generateContent endpoint of the Gemini API.
type Gemini struct {
	http *httpClient
}

func NewGemini(cfg Config) (*Gemini, error) {
	c, err := newHTTPClient("gemini", geminiDefaultBaseURL, geminiDefaultModel, cfg)
	if err != nil {
		return nil, err
	}
	return &Gemini{http: c}, nil
}

func (g *Gemini) Provider() string { return g.http.provider }

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature      float64         `json:"temperature"`
	TopP             float64         `json:"topP"`
	TopK             int             `json:"topK"`
	MaxOutputTokens  int             `json:"maxOutputTokens"`
	ResponseMimeType string          `json:"responseMimeType,omitempty"`
	ResponseSchema   json.RawMessage `json:"responseSchema,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// geminiAnswerSchema constrains structured output to the answer object.
var geminiAnswerSchema = json.RawMessage(`{
  "type": "OBJECT",
  "properties": {
    "sql": {"type": "STRING"},
    "explanation": {"type": "STRING"},
    "confidence": {"type": "NUMBER"},
    "assumptions": {"type": "ARRAY", "items": {"type": "STRING"}}
  },
  "required": ["sql", "explanation"]
}`)

func buildGeminiPayload(req Request) geminiRequest {
	params := req.Params
	if params == (Params{}) {
		params = DefaultParams()
	}
	payload := geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: req.Prompt}},
		}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     params.Temperature,
			TopP:            params.TopP,
			TopK:            params.TopK,
			MaxOutputTokens: params.MaxOutputTokens,
		},
	}
	if req.Structured {
		payload.GenerationConfig.ResponseMimeType = "application/json"
		payload.GenerationConfig.ResponseSchema = geminiAnswerSchema
	}
	return payload
}

func (g *Gemini) Generate(ctx context.Context, req Request) (string, error) {
	key, err := g.http.apiKey(ctx)
	if err != nil {
		return "", err
	}
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.http.baseURL, g.http.model)
	raw, err := g.http.postJSON(ctx, url, map[string]string{"x-goog-api-key": key}, buildGeminiPayload(req))
	if err != nil {
		return "", err
	}

	var parsed geminiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &Error{Kind: KindMalformed, Provider: g.Provider(), Message: "decode generateContent response", Err: err}
	}
	if parsed.Error != nil {
		return "", &Error{Kind: classifyStatus(parsed.Error.Code), Provider: g.Provider(), StatusCode: parsed.Error.Code, Message: parsed.Error.Message}
	}
	if parsed.PromptFeedback != nil && parsed.PromptFeedback.BlockReason != "" {
		return "", &Error{Kind: KindBlocked, Provider: g.Provider(), Message: "prompt blocked: " + parsed.PromptFeedback.BlockReason}
	}
	if len(parsed.Candidates) == 0 {
		return "", &Error{Kind: KindEmpty, Provider: g.Provider(), Message: "no candidates returned"}
	}

	var text strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	if strings.TrimSpace(text.String()) == "" {
		reason := parsed.Candidates[0].FinishReason
		if reason == "SAFETY" {
			return "", &Error{Kind: KindBlocked, Provider: g.Provider(), Message: "candidate blocked by safety filter"}
		}
		return "", &Error{Kind: KindEmpty, Provider: g.Provider(), Message: "candidate has no text (finish reason " + reason + ")"}
	}
	return text.String(), nil
}
