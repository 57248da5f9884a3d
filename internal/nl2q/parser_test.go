package nl2q

import "testing"

func TestParseRoundTripsFormat(t *testing.T) {
	pairs := []struct {
		query       string
		explanation string
	}{
		{"SELECT SUM(`Nettokertymä`) FROM t WHERE Vuosi = 2022", "Sums net spending for 2022."},
		{"SELECT Vuosi,\n  SUM(x) AS total\nFROM t\nGROUP BY Vuosi", "Groups totals by year."},
		{"WITH y AS (SELECT 1 AS a FROM t) SELECT a FROM y", "Uses a common table expression."},
		{"SELECT 'Explanation: raw' AS note FROM t", "Adds a note."},
		{"SELECT a FROM t -- Explanation: inline\nWHERE a > 0", "Filters positive a."},
	}
	for _, p := range pairs {
		query, ok, explanation := Extract(Format(p.query, p.explanation))
		if !ok {
			t.Fatalf("Extract(Format(%q)) reported no query", p.query)
		}
		if query != p.query || explanation != p.explanation {
			t.Fatalf("round trip = (%q, %q), want (%q, %q)", query, explanation, p.query, p.explanation)
		}
	}
}

func TestParseIgnoresExplanationInsideFence(t *testing.T) {
	parsed := Parse("```sql\nSELECT 'Explanation: raw' AS note FROM t\n```")
	if parsed.Query != "SELECT 'Explanation: raw' AS note FROM t" {
		t.Fatalf("Query = %q", parsed.Query)
	}
	if parsed.Explanation != NoExplanation {
		t.Fatalf("Explanation = %q, want %q", parsed.Explanation, NoExplanation)
	}
}

func TestParseFencedBlockKind(t *testing.T) {
	parsed := Parse("Here you go:\n```sql\nSELECT a FROM t\n```\nExplanation: Lists a.")
	if parsed.Kind != KindFencedBlock || parsed.Query != "SELECT a FROM t" {
		t.Fatalf("Parse() = %+v", parsed)
	}
	if parsed.Explanation != "Lists a." {
		t.Fatalf("Explanation = %q", parsed.Explanation)
	}
}

func TestParseFallsBackToUntaggedFence(t *testing.T) {
	parsed := Parse("```\nSELECT a FROM t\n```")
	if parsed.Kind != KindFallbackSpan || parsed.Query != "SELECT a FROM t" {
		t.Fatalf("Parse() = %+v", parsed)
	}
	if parsed.Explanation != NoExplanation {
		t.Fatalf("Explanation = %q", parsed.Explanation)
	}
}

func TestParseFallsBackToBareSpan(t *testing.T) {
	parsed := Parse("The query is SELECT SUM(x) FROM t WHERE y = 1; it sums x.")
	if parsed.Kind != KindFallbackSpan {
		t.Fatalf("Kind = %q, want %q", parsed.Kind, KindFallbackSpan)
	}
	if parsed.Query != "SELECT SUM(x) FROM t WHERE y = 1" {
		t.Fatalf("Query = %q", parsed.Query)
	}
}

func TestParseBareSpanStopsAtExplanation(t *testing.T) {
	parsed := Parse("SELECT a FROM t WHERE b = 2\nExplanation: Filters b.")
	if parsed.Query != "SELECT a FROM t WHERE b = 2" || parsed.Explanation != "Filters b." {
		t.Fatalf("Parse() = %+v", parsed)
	}
}

func TestParseUnparseableText(t *testing.T) {
	for _, text := range []string{"", "   ", "I cannot help with that.", "SELECT the best option"} {
		query, ok, explanation := Extract(text)
		if ok || query != "" {
			t.Fatalf("Extract(%q) = %q, %v", text, query, ok)
		}
		if explanation != NoExplanation {
			t.Fatalf("Extract(%q) explanation = %q", text, explanation)
		}
	}
}

func TestParseStructuredJSON(t *testing.T) {
	parsed := Parse(`{"sql": "SELECT a FROM t", "explanation": "Lists a.", "confidence": 0.7, "assumptions": ["a is unique"]}`)
	if parsed.Kind != KindStructuredJSON || parsed.Query != "SELECT a FROM t" || parsed.Explanation != "Lists a." {
		t.Fatalf("Parse() = %+v", parsed)
	}
	if parsed.Confidence == nil || *parsed.Confidence != 0.7 {
		t.Fatalf("Confidence = %v", parsed.Confidence)
	}
	if len(parsed.Assumptions) != 1 {
		t.Fatalf("Assumptions = %v", parsed.Assumptions)
	}
}

func TestParseStructuredJSONVariants(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		query string
	}{
		{"query key", `{"query": "SELECT b FROM t", "explanation": "x"}`, "SELECT b FROM t"},
		{"json fence", "```json\n{\"sql\": \"SELECT c FROM t\", \"explanation\": \"x\"}\n```", "SELECT c FROM t"},
		{"embedded", "Answer follows {\"sql\": \"SELECT d FROM t\", \"explanation\": \"x\"} done", "SELECT d FROM t"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed := Parse(tt.text)
			if parsed.Kind != KindStructuredJSON || parsed.Query != tt.query {
				t.Fatalf("Parse() = %+v", parsed)
			}
		})
	}
}

func TestParseStructuredJSONWithoutQuery(t *testing.T) {
	parsed := Parse(`{"sql": "", "explanation": "The data has no such column."}`)
	if parsed.OK() {
		t.Fatalf("Parse() = %+v, want failure", parsed)
	}
	if parsed.Explanation != "The data has no such column." {
		t.Fatalf("Explanation = %q", parsed.Explanation)
	}
}
