package nl2q

import "testing"

func TestSanitizeQuotesNonASCIIColumn(t *testing.T) {
	s := NewSanitizer(Backtick)
	got := s.Sanitize("SELECT Nettokertymä FROM budget_transactions", []string{"Nettokertymä"})
	want := "SELECT `Nettokertymä` FROM budget_transactions"
	if got != want {
		t.Fatalf("Sanitize() = %q, want %q", got, want)
	}
}

func TestSanitizeIsIdempotent(t *testing.T) {
	s := NewSanitizer(Backtick)
	protected := []string{"Nettokertymä", "Nettokertymä_ko_vuodelta", "Käytettävissä"}
	queries := []string{
		"SELECT Nettokertymä, Nettokertymä_ko_vuodelta FROM t",
		"SELECT SUM(Käytettävissä) AS k FROM t WHERE Käytettävissä > 0",
		"SELECT `Nettokertymä` FROM t",
		"SELECT 1",
		"",
	}
	for _, q := range queries {
		once := s.Sanitize(q, protected)
		twice := s.Sanitize(once, protected)
		if once != twice {
			t.Fatalf("Sanitize not idempotent for %q: %q != %q", q, once, twice)
		}
	}
}

func TestSanitizeRespectsWordBoundaries(t *testing.T) {
	s := NewSanitizer(Backtick)
	query := "SELECT SubBudgetX, Budget FROM t"
	got := s.Sanitize(query, []string{"Budget"})
	want := "SELECT SubBudgetX, `Budget` FROM t"
	if got != want {
		t.Fatalf("Sanitize() = %q, want %q", got, want)
	}
}

func TestSanitizePrefersLongestName(t *testing.T) {
	s := NewSanitizer(Backtick)
	got := s.Sanitize("SELECT Nettokertymä_ko_vuodelta, Nettokertymä FROM t", []string{"Nettokertymä", "Nettokertymä_ko_vuodelta"})
	want := "SELECT `Nettokertymä_ko_vuodelta`, `Nettokertymä` FROM t"
	if got != want {
		t.Fatalf("Sanitize() = %q, want %q", got, want)
	}
}

func TestSanitizeDoubleQuoteDialect(t *testing.T) {
	s := NewSanitizer(DoubleQuote)
	got := s.Sanitize(`SELECT Nettokertymä, "Käytettävissä" FROM t`, []string{"Nettokertymä", "Käytettävissä"})
	want := `SELECT "Nettokertymä", "Käytettävissä" FROM t`
	if got != want {
		t.Fatalf("Sanitize() = %q, want %q", got, want)
	}
}

func TestSanitizeRewritesInsideStringLiterals(t *testing.T) {
	s := NewSanitizer(Backtick)
	got := s.Sanitize("SELECT 'Nettokertymä' AS label FROM t", []string{"Nettokertymä"})
	want := "SELECT '`Nettokertymä`' AS label FROM t"
	if got != want {
		t.Fatalf("Sanitize() = %q, want %q", got, want)
	}
}

func TestQualifyTable(t *testing.T) {
	s := NewSanitizer(Backtick)
	table := "massi-financial-analysis.finnish_finance_data.budget_transactions"
	qualified := "`" + table + "`"

	tests := []struct {
		in   string
		want string
	}{
		{"SELECT a FROM budget_transactions WHERE x", "SELECT a FROM " + qualified + " WHERE x"},
		{"SELECT a FROM `budget_transactions`", "SELECT a FROM " + qualified},
		{"select a from budget_transactions;", "select a from " + qualified + ";"},
		{"SELECT a FROM " + qualified + " t JOIN budget_transactions b ON t.x = b.x", "SELECT a FROM " + qualified + " t JOIN " + qualified + " b ON t.x = b.x"},
		{"SELECT a FROM budget_transactions_archive", "SELECT a FROM budget_transactions_archive"},
	}
	for _, tt := range tests {
		if got := s.QualifyTable(tt.in, table); got != tt.want {
			t.Fatalf("QualifyTable(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUnquotedOccurrences(t *testing.T) {
	s := NewSanitizer(Backtick)
	got := s.UnquotedOccurrences("SELECT `Nettokertymä`, Käytettävissä FROM t", []string{"Nettokertymä", "Käytettävissä"})
	if len(got) != 1 || got[0] != "Käytettävissä" {
		t.Fatalf("UnquotedOccurrences() = %v", got)
	}
}

func TestDialectByName(t *testing.T) {
	if d, err := DialectByName(""); err != nil || d != Backtick {
		t.Fatalf("DialectByName(\"\") = %v, %v", d, err)
	}
	if d, err := DialectByName("DOUBLE_QUOTE"); err != nil || d != DoubleQuote {
		t.Fatalf("DialectByName(DOUBLE_QUOTE) = %v, %v", d, err)
	}
	if _, err := DialectByName("brackets"); err == nil {
		t.Fatal("DialectByName(brackets) expected error")
	}
	if got := DoubleQuote.QuoteIdent(`a"b`); got != `"a""b"` {
		t.Fatalf("QuoteIdent = %q", got)
	}
}

func TestSanitizeLeavesEitherQuoteStyleAlone(t *testing.T) {
	protected := []string{"Nettokertymä"}
	queries := []string{
		`SELECT SUM("Nettokertymä") FROM t`,
		"SELECT SUM(`Nettokertymä`) FROM t",
	}
	for _, dialect := range []Dialect{Backtick, DoubleQuote} {
		s := NewSanitizer(dialect)
		for _, q := range queries {
			if got := s.Sanitize(q, protected); got != q {
				t.Fatalf("%s: Sanitize(%q) = %q, want unchanged", dialect.Name, q, got)
			}
			if got := s.UnquotedOccurrences(q, protected); len(got) != 0 {
				t.Fatalf("%s: UnquotedOccurrences(%q) = %v, want none", dialect.Name, q, got)
			}
		}
	}
}
