package nl2q

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/budgetlens/budgetlens/internal/schema"
)

var (
	aggregatePattern = regexp.MustCompile(`(?i)\b(SUM|COUNT|AVG|MIN|MAX|ANY_VALUE|ARRAY_AGG|STRING_AGG)\s*\(`)
	groupByPattern   = regexp.MustCompile(`(?i)\bGROUP\s+BY\b`)
	wherePattern     = regexp.MustCompile(`(?is)\bWHERE\b(.*)`)
	aliasPattern     = regexp.MustCompile("(?i)\\bAS\\s+([`\"]?[\\pL\\pN_]+[`\"]?)")
	cteNamePattern   = regexp.MustCompile(`(?i)([\pL_][\pL\pN_]*)\s+AS\s*\(`)
	maskedSpans      = regexp.MustCompile("'(?:[^']|'')*'|`[^`]*`|\"[^\"]*\"|--[^\n]*|(?s:/\\*.*?\\*/)")
	sqlToken         = regexp.MustCompile(`[\pL_][\pL\pN_]*|[0-9][0-9.]*|\S`)
)

var sqlKeywords = wordSet(`
	SELECT FROM WHERE AND OR NOT IN IS NULL AS ON JOIN INNER LEFT RIGHT FULL OUTER CROSS
	NATURAL USING GROUP BY ORDER HAVING LIMIT OFFSET DISTINCT ALL ANY SOME UNION INTERSECT
	EXCEPT CASE WHEN THEN ELSE END ASC DESC NULLS FIRST LAST BETWEEN LIKE ILIKE EXISTS WITH
	RECURSIVE TRUE FALSE OVER PARTITION ROWS RANGE PRECEDING FOLLOWING UNBOUNDED CURRENT ROW
	FILTER QUALIFY WINDOW INTERVAL DATE TIMESTAMP YEAR MONTH DAY CURRENT_DATE
	INTEGER INT BIGINT DOUBLE FLOAT REAL DECIMAL NUMERIC VARCHAR TEXT BOOLEAN`)

func wordSet(words string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, word := range strings.Fields(words) {
		set[word] = struct{}{}
	}
	return set
}

// Validator inspects a generated query for likely mistakes. Findings are
// advisory and never block a conversion.
type Validator struct {
	dialect      Dialect
	yearColumn   string
	branchColumn string
	branchCodes  map[string]string
}

func NewValidator(pack Pack, dialect Dialect) Validator {
	if dialect.Quote == 0 {
		dialect = Backtick
	}
	return Validator{
		dialect:      dialect,
		yearColumn:   pack.YearColumn,
		branchColumn: pack.BranchColumn,
		branchCodes:  pack.BranchCodes,
	}
}

// Check returns warnings followed by suggestions, in a stable order.
func (v Validator) Check(query, table string, fields []schema.Field) []string {
	var warnings []string

	known := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		known[strings.ToLower(f.Name)] = struct{}{}
	}
	tableParts := make(map[string]struct{})
	for _, part := range strings.Split(table, ".") {
		tableParts[strings.ToLower(part)] = struct{}{}
	}
	for _, m := range aliasPattern.FindAllStringSubmatch(query, -1) {
		known[strings.ToLower(strings.Trim(m[1], "`\""))] = struct{}{}
	}
	for _, m := range cteNamePattern.FindAllStringSubmatch(query, -1) {
		known[strings.ToLower(m[1])] = struct{}{}
	}
	var unknown []string
	for _, ident := range v.quotedIdentifiers(query) {
		lower := strings.ToLower(ident)
		if _, ok := known[lower]; ok {
			continue
		}
		if _, ok := tableParts[lower]; ok || strings.EqualFold(ident, table) {
			continue
		}
		if !slices.Contains(unknown, ident) {
			unknown = append(unknown, ident)
		}
	}
	for _, ident := range unknown {
		warnings = append(warnings, fmt.Sprintf("Warning: column %s is not part of the schema", v.dialect.QuoteIdent(ident)))
	}
	var unknownBare []string
	for _, ident := range unquotedIdentifiers(query) {
		lower := strings.ToLower(ident)
		if _, ok := known[lower]; ok {
			continue
		}
		if _, ok := tableParts[lower]; ok {
			continue
		}
		if slices.Contains(unknown, ident) || slices.Contains(unknownBare, ident) {
			continue
		}
		unknownBare = append(unknownBare, ident)
		warnings = append(warnings, fmt.Sprintf("Warning: column %s is not part of the schema", ident))
	}

	for _, name := range NewSanitizer(v.dialect).UnquotedOccurrences(query, schema.ProtectedNames(fields)) {
		warnings = append(warnings, fmt.Sprintf("Warning: column %s contains non-ASCII characters and must be quoted", name))
	}

	where := ""
	if m := wherePattern.FindStringSubmatch(query); m != nil {
		where = m[1]
	}
	if v.yearColumn != "" && !v.mentions(where, v.yearColumn) {
		warnings = append(warnings, fmt.Sprintf("Warning: query does not constrain %s; results may span every year", v.yearColumn))
	}

	if v.branchColumn != "" && len(v.branchCodes) > 0 {
		for _, code := range v.branchLiterals(query) {
			if _, ok := v.branchCodes[code]; !ok {
				warnings = append(warnings, fmt.Sprintf("Warning: unusual %s code '%s'", v.branchColumn, code))
			}
		}
	}

	if groupByPattern.MatchString(query) && !aggregatePattern.MatchString(query) {
		warnings = append(warnings, "Suggestion: GROUP BY is used without an aggregate function")
	}
	return warnings
}

func (v Validator) quotedIdentifiers(query string) []string {
	q := string(v.dialect.Quote)
	pattern := regexp.MustCompile(regexp.QuoteMeta(q) + `([^` + regexp.QuoteMeta(q) + `]+)` + regexp.QuoteMeta(q))
	var out []string
	for _, m := range pattern.FindAllStringSubmatch(query, -1) {
		ident := m[1]
		if strings.Contains(ident, ".") {
			continue
		}
		out = append(out, ident)
	}
	return out
}

// unquotedIdentifiers lists bare words that stand in a column position.
// Keywords, function names, qualifiers, table references and aliases
// (a word directly after another word, a number or a closing parenthesis)
// are skipped, as is everything inside literals, quotes and comments.
func unquotedIdentifiers(query string) []string {
	tokens := sqlToken.FindAllString(maskedSpans.ReplaceAllString(query, " "), -1)
	var out []string
	tableRef := false
	for i, tok := range tokens {
		if tok == "." {
			continue
		}
		if !isIdentToken(tok) || isKeyword(tok) {
			tableRef = false
			continue
		}
		prev := ""
		if i > 0 {
			prev = tokens[i-1]
		}
		if isTableKeyword(prev) || (tableRef && prev == ".") {
			tableRef = true
			continue
		}
		tableRef = false
		if prev == ")" || isNumberToken(prev) || (isIdentToken(prev) && !isKeyword(prev)) {
			continue
		}
		if i+1 < len(tokens) && (tokens[i+1] == "(" || tokens[i+1] == ".") {
			continue
		}
		out = append(out, tok)
	}
	return out
}

func isIdentToken(tok string) bool {
	r, _ := utf8.DecodeRuneInString(tok)
	return r == '_' || unicode.IsLetter(r)
}

func isNumberToken(tok string) bool {
	r, _ := utf8.DecodeRuneInString(tok)
	return unicode.IsDigit(r)
}

func isKeyword(tok string) bool {
	_, ok := sqlKeywords[strings.ToUpper(tok)]
	return ok
}

func isTableKeyword(tok string) bool {
	return strings.EqualFold(tok, "FROM") || strings.EqualFold(tok, "JOIN")
}

func (v Validator) mentions(text, column string) bool {
	q := regexp.QuoteMeta(string(v.dialect.Quote))
	pattern := regexp.MustCompile(`(?i)(^|[^\w` + q + `])` + q + `?` + regexp.QuoteMeta(column) + q + `?($|[^\w])`)
	return pattern.MatchString(text)
}

func (v Validator) branchLiterals(query string) []string {
	q := regexp.QuoteMeta(string(v.dialect.Quote))
	col := q + `?` + regexp.QuoteMeta(v.branchColumn) + q + `?`
	eq := regexp.MustCompile(`(?i)` + col + `\s*=\s*'([^']*)'`)
	in := regexp.MustCompile(`(?i)` + col + `\s+IN\s*\(([^)]*)\)`)
	literal := regexp.MustCompile(`'([^']*)'`)

	var codes []string
	for _, m := range eq.FindAllStringSubmatch(query, -1) {
		codes = append(codes, m[1])
	}
	for _, m := range in.FindAllStringSubmatch(query, -1) {
		for _, lit := range literal.FindAllStringSubmatch(m[1], -1) {
			codes = append(codes, lit[1])
		}
	}
	return codes
}
