package nl2q

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Dialect describes how the target query language quotes identifiers.
type Dialect struct {
	Name  string
	Quote rune
}

var (
	Backtick    = Dialect{Name: "backtick", Quote: '`'}
	DoubleQuote = Dialect{Name: "double_quote", Quote: '"'}
)

func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", Backtick.Name:
		return Backtick, nil
	case DoubleQuote.Name:
		return DoubleQuote, nil
	default:
		return Dialect{}, fmt.Errorf("unknown identifier dialect %q", name)
	}
}

func (d Dialect) QuoteIdent(name string) string {
	q := string(d.Quote)
	return q + strings.ReplaceAll(name, q, q+q) + q
}

// Sanitizer repairs identifier quoting in generated queries.
type Sanitizer struct {
	dialect Dialect
}

func NewSanitizer(d Dialect) Sanitizer {
	if d.Quote == 0 {
		d = Backtick
	}
	return Sanitizer{dialect: d}
}

func (s Sanitizer) Dialect() Dialect {
	return s.dialect
}

// Sanitize quotes every occurrence of a protected name that is neither
// adjacent to the quote character nor part of a longer identifier. Running
// it twice yields the same text. Occurrences inside string literals are
// rewritten as well.
func (s Sanitizer) Sanitize(query string, protected []string) string {
	names := slices.Clone(protected)
	slices.SortStableFunc(names, func(a, b string) int { return len(b) - len(a) })
	for _, name := range names {
		if name == "" {
			continue
		}
		query = s.quoteOccurrences(query, name)
	}
	return query
}

func (s Sanitizer) quoteOccurrences(query, name string) string {
	var out strings.Builder
	rest := query
	offset := 0
	for {
		idx := strings.Index(rest, name)
		if idx < 0 {
			break
		}
		start := offset + idx
		end := start + len(name)
		if s.unbounded(query, start, end) {
			out.WriteString(query[offset:start])
			out.WriteRune(s.dialect.Quote)
			out.WriteString(name)
			out.WriteRune(s.dialect.Quote)
		} else {
			out.WriteString(query[offset:end])
		}
		offset = end
		rest = query[offset:]
	}
	if offset == 0 {
		return query
	}
	out.WriteString(rest)
	return out.String()
}

// unbounded reports whether query[start:end] stands alone: no identifier
// quote or word rune directly before or after it. Both quote styles count,
// since models emit either regardless of the configured dialect.
func (s Sanitizer) unbounded(query string, start, end int) bool {
	if start > 0 {
		prev, _ := utf8.DecodeLastRuneInString(query[:start])
		if s.isQuoteRune(prev) || isWordRune(prev) {
			return false
		}
	}
	if end < len(query) {
		next, _ := utf8.DecodeRuneInString(query[end:])
		if s.isQuoteRune(next) || isWordRune(next) {
			return false
		}
	}
	return true
}

func (s Sanitizer) isQuoteRune(r rune) bool {
	return r == s.dialect.Quote || r == Backtick.Quote || r == DoubleQuote.Quote
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
}

// QualifyTable rewrites FROM and JOIN references to the bare table name into
// the fully qualified, quoted identifier.
func (s Sanitizer) QualifyTable(query, table string) string {
	q := string(s.dialect.Quote)
	clean := strings.ReplaceAll(strings.TrimSpace(table), q, "")
	if clean == "" {
		return query
	}
	short := clean
	if i := strings.LastIndex(clean, "."); i >= 0 {
		short = clean[i+1:]
	}
	qm := regexp.QuoteMeta(q)
	pattern := regexp.MustCompile(`(?i)\b(FROM|JOIN)(\s+)` + qm + `?` + regexp.QuoteMeta(short) + qm + `?([\s;),]|$)`)
	target := strings.ReplaceAll(s.dialect.QuoteIdent(clean), "$", "$$")
	return pattern.ReplaceAllString(query, "${1}${2}"+target+"${3}")
}

// UnquotedOccurrences lists protected names that still appear unquoted.
func (s Sanitizer) UnquotedOccurrences(query string, protected []string) []string {
	var out []string
	for _, name := range protected {
		if name == "" {
			continue
		}
		for offset := 0; ; {
			idx := strings.Index(query[offset:], name)
			if idx < 0 {
				break
			}
			start := offset + idx
			if s.unbounded(query, start, start+len(name)) {
				out = append(out, name)
				break
			}
			offset = start + len(name)
		}
	}
	return out
}
