package nl2q

import (
	"strings"
	"testing"
	"time"

	"github.com/budgetlens/budgetlens/internal/contextcache"
	"github.com/budgetlens/budgetlens/internal/schema"
)

const testTable = "massi-financial-analysis.finnish_finance_data.budget_transactions"

func testFields() []schema.Field {
	return []schema.Field{
		{Name: "Vuosi", Type: schema.TypeInteger, Description: "Year"},
		{Name: "Kk", Type: schema.TypeInteger, Description: "Month"},
		{Name: "Ha_Tunnus", Type: schema.TypeString, Description: "Administrative branch code"},
		{Name: "Alkuperäinen_talousarvio", Type: schema.TypeFloat, Description: "Original budget"},
		{Name: "Voimassaoleva_talousarvio", Type: schema.TypeFloat, Description: "Current budget"},
		{Name: "Nettokertymä", Type: schema.TypeFloat, Description: "Net accumulation"},
	}
}

func newTestBuilder(t *testing.T, cache *contextcache.Cache) *Builder {
	t.Helper()
	pack, err := DefaultPack()
	if err != nil {
		t.Fatalf("DefaultPack() error = %v", err)
	}
	return NewBuilder(pack, Backtick, cache, nil)
}

func intPtr(v int) *int { return &v }

func TestBuildSingleYearFilter(t *testing.T) {
	b := newTestBuilder(t, nil)
	prompt := b.Build(testTable, testFields(), "", Request{
		Question: "defense budget 2022",
		Filters:  Filters{YearStart: intPtr(2022), YearEnd: intPtr(2022)},
	}, VariantPlain)

	if !strings.Contains(prompt, "Data must be filtered for the year 2022.") {
		t.Fatalf("prompt lacks the year constraint:\n%s", prompt)
	}
	if strings.Contains(prompt, "year range from") || strings.Contains(prompt, "onwards") || strings.Contains(prompt, "up to") {
		t.Fatalf("prompt contains a foreign year constraint:\n%s", prompt)
	}
	if strings.Count(prompt, "Data must be filtered for the year") != 1 {
		t.Fatalf("prompt repeats the year constraint")
	}
}

func TestBuildYearRangeFilter(t *testing.T) {
	b := newTestBuilder(t, nil)
	prompt := b.Build(testTable, testFields(), "", Request{
		Question: "military budget development",
		Filters: Filters{
			YearStart: intPtr(2020),
			YearEnd:   intPtr(2023),
			Extra:     map[string]string{"Ha_Tunnus": "27"},
		},
		AvailableYears: &YearRange{Min: 2018, Max: 2024},
	}, VariantPlain)

	for _, want := range []string{
		"Data must cover the year range from 2020 to 2023 inclusive.",
		"Column `Ha_Tunnus` must equal '27'.",
		"The data covers ONLY the years 2018 through 2024 (inclusive).",
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt lacks %q:\n%s", want, prompt)
		}
	}
}

func TestBuildSectionOrder(t *testing.T) {
	b := newTestBuilder(t, nil)
	prompt := b.Build(testTable, testFields(), "", Request{
		Question:       "How much was spent in 2023?",
		Filters:        Filters{YearStart: intPtr(2023), YearEnd: intPtr(2023)},
		AvailableYears: &YearRange{Min: 2020, Max: 2024},
	}, VariantPlain)

	markers := []string{"TABLE:", "SCHEMA:", "DOMAIN GLOSSARY:", "ACTIVE FILTERS", "AVAILABLE DATA:", "EXAMPLES:", "RESPONSE FORMAT:"}
	last := -1
	for _, marker := range markers {
		idx := strings.Index(prompt, marker)
		if idx < 0 {
			t.Fatalf("prompt lacks %q", marker)
		}
		if idx <= last {
			t.Fatalf("section %q out of order", marker)
		}
		last = idx
	}
	if !strings.HasSuffix(prompt, "Question: How much was spent in 2023?\n") {
		t.Fatalf("prompt does not end with the question:\n%s", prompt)
	}
	if strings.LastIndex(prompt, "Question: How much") < last {
		t.Fatal("question is not the last section")
	}
}

func TestBuildQuotesTableAndSchema(t *testing.T) {
	b := newTestBuilder(t, nil)
	prompt := b.Build(testTable, testFields(), "", Request{Question: "q"}, VariantPlain)

	if !strings.Contains(prompt, "exactly as `"+testTable+"`") {
		t.Fatalf("prompt lacks the qualified table:\n%s", prompt)
	}
	if !strings.Contains(prompt, "- `Nettokertymä` (FLOAT): Net accumulation") {
		t.Fatalf("prompt lacks the schema line:\n%s", prompt)
	}
	if !strings.Contains(prompt, "'27' = Puolustusministeriö") {
		t.Fatalf("prompt lacks branch codes:\n%s", prompt)
	}
}

func TestBuildExamplesQuoteNonASCIIColumns(t *testing.T) {
	b := newTestBuilder(t, nil)
	prompt := b.Build(testTable, testFields(), "", Request{Question: "q"}, VariantFewShot)

	if strings.Contains(prompt, "SUM(Alkuperäinen_talousarvio)") || strings.Contains(prompt, "SUM(Nettokertymä)") {
		t.Fatalf("examples carry unquoted non-ASCII columns:\n%s", prompt)
	}
	if !strings.Contains(prompt, "SUM(`Nettokertymä`)") {
		t.Fatalf("examples lack quoted columns:\n%s", prompt)
	}
	if !strings.Contains(prompt, "FROM `"+testTable+"`") {
		t.Fatalf("examples do not use the qualified table:\n%s", prompt)
	}
}

func TestBuildVariantsDifferInExamplesAndFormat(t *testing.T) {
	b := newTestBuilder(t, nil)
	req := Request{Question: "q"}

	plain := b.Build(testTable, testFields(), "", req, VariantPlain)
	fewShot := b.Build(testTable, testFields(), "", req, VariantFewShot)
	structured := b.Build(testTable, testFields(), "", req, VariantStructured)

	if strings.Contains(plain, "Example 3:") {
		t.Fatal("plain prompt should carry two examples")
	}
	if !strings.Contains(fewShot, "Example 4:") {
		t.Fatal("few-shot prompt should carry every example")
	}
	if !strings.Contains(structured, "Respond with a single JSON object") || !strings.Contains(structured, `"confidence":`) {
		t.Fatalf("structured prompt lacks the JSON contract:\n%s", structured)
	}
	if !strings.Contains(plain, "```sql") {
		t.Fatal("plain prompt lacks the fenced convention")
	}
}

func TestBuildCachesGroundingPerFingerprint(t *testing.T) {
	cache := contextcache.New(time.Hour)
	b := newTestBuilder(t, cache)
	fields := testFields()
	fingerprint := schema.Fingerprint(fields)

	first := b.Build(testTable, fields, fingerprint, Request{Question: "a"}, VariantPlain)
	second := b.Build(testTable, fields, fingerprint, Request{Question: "b"}, VariantFewShot)
	if cache.Len() != 1 {
		t.Fatalf("cache.Len() = %d, want 1", cache.Len())
	}
	grounding := b.Grounding(testTable, fields, fingerprint)
	if !strings.HasPrefix(first, grounding) || !strings.HasPrefix(second, grounding) {
		t.Fatal("prompts do not start with the cached grounding")
	}

	b.Build("other.table", fields, fingerprint, Request{Question: "c"}, VariantPlain)
	if cache.Len() != 2 {
		t.Fatalf("cache.Len() = %d, want 2", cache.Len())
	}
}

func TestParsePackRejectsInvalidDocuments(t *testing.T) {
	tests := []string{
		"role: ''\nexamples: []",
		"role: x\nexamples:\n  - question: q\n    sql: SELECT 1",
		"role: x\nexamples:\n  - question: q\n    sql: SELECT 1 FROM {{table}}\n  - question: q2\n    sql: SELECT 2",
		"role: [",
	}
	for _, doc := range tests {
		if _, err := ParsePack([]byte(doc)); err == nil {
			t.Fatalf("ParsePack(%q) expected error", doc)
		}
	}
}
