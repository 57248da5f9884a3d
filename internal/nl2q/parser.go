package nl2q

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ResponseKind tags which extraction path produced a ParsedResponse.
type ResponseKind string

const (
	KindFencedBlock    ResponseKind = "fenced_block"
	KindStructuredJSON ResponseKind = "structured_json"
	KindFallbackSpan   ResponseKind = "fallback_span"
	KindUnparseable    ResponseKind = "unparseable"
)

const NoExplanation = "No explanation provided."

type ParsedResponse struct {
	Kind        ResponseKind
	Query       string
	Explanation string
	Confidence  *float64
	Assumptions []string
}

func (p ParsedResponse) OK() bool {
	return p.Kind != KindUnparseable && p.Query != ""
}

var (
	markedFencePattern = regexp.MustCompile("(?is)SQL:\\s*```sql\\s+(.*?)\\s*```")
	sqlFencePattern    = regexp.MustCompile("(?is)```sql\\s+(.*?)\\s*```")
	anyFencePattern    = regexp.MustCompile("(?s)```([A-Za-z0-9_-]*)[ \\t]*\\r?\\n?(.*?)```")
	jsonFencePattern   = regexp.MustCompile("(?is)^```(?:json)?\\s*(\\{.*\\})\\s*```$")
	explanationPattern = regexp.MustCompile(`(?is)Explanation:[ \t]*(.*?)(?:\r?\n[ \t]*\r?\n|$)`)
	keywordPattern     = regexp.MustCompile(`(?i)\b(SELECT|WITH)\b`)
	fromPattern        = regexp.MustCompile(`(?i)\bFROM\b`)
	selectPattern      = regexp.MustCompile(`(?i)\bSELECT\b`)
	spanEndPattern     = regexp.MustCompile(`(?i);|\r?\n[ \t]*\r?\n|Explanation:`)
	leadingKeyword     = regexp.MustCompile(`(?i)^(SELECT|WITH)\b`)
)

// Parse extracts a query and explanation from model output. It never fails;
// text it cannot interpret yields KindUnparseable.
func Parse(text string) ParsedResponse {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ParsedResponse{Kind: KindUnparseable, Explanation: NoExplanation}
	}

	if parsed, ok := parseStructured(trimmed); ok {
		return parsed
	}

	explanation := extractExplanation(anyFencePattern.ReplaceAllString(trimmed, "\n\n"))
	if m := markedFencePattern.FindStringSubmatch(trimmed); m != nil && strings.TrimSpace(m[1]) != "" {
		return ParsedResponse{Kind: KindFencedBlock, Query: strings.TrimSpace(m[1]), Explanation: explanation}
	}
	if m := sqlFencePattern.FindStringSubmatch(trimmed); m != nil && strings.TrimSpace(m[1]) != "" {
		return ParsedResponse{Kind: KindFencedBlock, Query: strings.TrimSpace(m[1]), Explanation: explanation}
	}
	for _, m := range anyFencePattern.FindAllStringSubmatch(trimmed, -1) {
		body := strings.TrimSpace(m[2])
		if leadingKeyword.MatchString(body) {
			return ParsedResponse{Kind: KindFallbackSpan, Query: body, Explanation: explanation}
		}
	}
	if start, end := strings.Index(trimmed, "{"), strings.LastIndex(trimmed, "}"); start >= 0 && end > start {
		if parsed, ok := parseStructured(trimmed[start : end+1]); ok {
			return parsed
		}
	}
	if span := bareSpan(trimmed); span != "" {
		return ParsedResponse{Kind: KindFallbackSpan, Query: span, Explanation: explanation}
	}
	return ParsedResponse{Kind: KindUnparseable, Explanation: explanation}
}

// Extract is Parse reduced to (query, present, explanation).
func Extract(text string) (string, bool, string) {
	parsed := Parse(text)
	return parsed.Query, parsed.OK(), parsed.Explanation
}

// Format renders a query and explanation in the fenced response convention
// that Parse reads back.
func Format(query, explanation string) string {
	return "SQL:\n```sql\n" + strings.TrimSpace(query) + "\n```\n\nExplanation: " + strings.TrimSpace(explanation)
}

type structuredAnswer struct {
	SQL         *string  `json:"sql"`
	Query       *string  `json:"query"`
	Explanation *string  `json:"explanation"`
	Confidence  *float64 `json:"confidence"`
	Assumptions []string `json:"assumptions"`
}

func parseStructured(text string) (ParsedResponse, bool) {
	if m := jsonFencePattern.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	if !strings.HasPrefix(text, "{") {
		return ParsedResponse{}, false
	}
	var answer structuredAnswer
	if err := json.Unmarshal([]byte(text), &answer); err != nil {
		return ParsedResponse{}, false
	}
	if answer.SQL == nil && answer.Query == nil && answer.Explanation == nil {
		return ParsedResponse{}, false
	}

	explanation := NoExplanation
	if answer.Explanation != nil && strings.TrimSpace(*answer.Explanation) != "" {
		explanation = strings.TrimSpace(*answer.Explanation)
	}
	query := ""
	switch {
	case answer.SQL != nil && strings.TrimSpace(*answer.SQL) != "":
		query = strings.TrimSpace(*answer.SQL)
	case answer.Query != nil:
		query = strings.TrimSpace(*answer.Query)
	}
	if m := sqlFencePattern.FindStringSubmatch(query); m != nil {
		query = strings.TrimSpace(m[1])
	}
	if query == "" {
		return ParsedResponse{Kind: KindUnparseable, Explanation: explanation}, true
	}
	return ParsedResponse{
		Kind:        KindStructuredJSON,
		Query:       query,
		Explanation: explanation,
		Confidence:  answer.Confidence,
		Assumptions: answer.Assumptions,
	}, true
}

// extractExplanation reads the explanation marker from text whose fenced
// blocks have already been removed.
func extractExplanation(text string) string {
	m := explanationPattern.FindStringSubmatch(text)
	if m == nil {
		return NoExplanation
	}
	explanation := strings.TrimSpace(m[1])
	if explanation == "" {
		return NoExplanation
	}
	return explanation
}

// bareSpan finds an unfenced query: a SELECT or WITH keyword followed by a
// FROM clause, ending at a semicolon, a blank line, an explanation marker or
// the end of the text.
func bareSpan(text string) string {
	for _, loc := range keywordPattern.FindAllStringIndex(text, -1) {
		candidate := text[loc[0]:]
		if end := spanEndPattern.FindStringIndex(candidate); end != nil {
			candidate = candidate[:end[0]]
		}
		candidate = strings.TrimSpace(strings.Trim(candidate, "`"))
		if !fromPattern.MatchString(candidate) {
			continue
		}
		if strings.EqualFold(candidate[:4], "WITH") && !selectPattern.MatchString(candidate) {
			continue
		}
		return candidate
	}
	return ""
}
