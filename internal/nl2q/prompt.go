package nl2q

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/budgetlens/budgetlens/internal/contextcache"
	"github.com/budgetlens/budgetlens/internal/observability"
	"github.com/budgetlens/budgetlens/internal/schema"
)

// Variant selects how much guidance a prompt carries and which answer
// format it asks for.
type Variant string

const (
	VariantPlain      Variant = "plain"
	VariantStructured Variant = "structured"
	VariantFewShot    Variant = "few_shot"
)

type YearRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

type Filters struct {
	YearStart *int              `json:"year_start,omitempty"`
	YearEnd   *int              `json:"year_end,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

func (f Filters) Empty() bool {
	return f.YearStart == nil && f.YearEnd == nil && len(f.Extra) == 0
}

type Request struct {
	Question       string     `json:"question"`
	Filters        Filters    `json:"filters"`
	AvailableYears *YearRange `json:"available_years,omitempty"`
}

// Builder assembles prompts. The grounding part (table, schema, glossary) is
// cached per schema fingerprint.
type Builder struct {
	pack      Pack
	sanitizer Sanitizer
	cache     *contextcache.Cache
	logger    *slog.Logger
}

func NewBuilder(pack Pack, dialect Dialect, cache *contextcache.Cache, logger *slog.Logger) *Builder {
	if cache == nil {
		cache = contextcache.New(contextcache.DefaultTTL)
	}
	return &Builder{
		pack:      pack,
		sanitizer: NewSanitizer(dialect),
		cache:     cache,
		logger:    observability.LoggerOrDiscard(logger),
	}
}

func (b *Builder) Pack() Pack {
	return b.pack
}

// Build returns the full prompt in fixed section order: table instructions,
// schema, glossary, active filters, available years, examples with the
// response format, and the question last.
func (b *Builder) Build(table string, fields []schema.Field, fingerprint string, req Request, variant Variant) string {
	var sb strings.Builder
	sb.WriteString(b.Grounding(table, fields, fingerprint))

	if section := filterSection(req.Filters, b.sanitizer.Dialect()); section != "" {
		sb.WriteString("\n\n")
		sb.WriteString(section)
	}
	if req.AvailableYears != nil {
		fmt.Fprintf(&sb, "\n\nAVAILABLE DATA:\nThe data covers ONLY the years %d through %d (inclusive). "+
			"Stay within this range unless the question explicitly asks for other years; in that case still "+
			"write the query so that it returns no rows for the missing years.",
			req.AvailableYears.Min, req.AvailableYears.Max)
	}

	sb.WriteString("\n\n")
	sb.WriteString(b.examplesSection(table, fields, variant))
	sb.WriteString("\n\n")
	sb.WriteString(responseFormat(variant))
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(strings.TrimSpace(req.Question))
	sb.WriteString("\n")
	return sb.String()
}

// Grounding returns sections one to three, from cache when possible.
func (b *Builder) Grounding(table string, fields []schema.Field, fingerprint string) string {
	if fingerprint == "" {
		fingerprint = schema.Fingerprint(fields)
	}
	key := fingerprint + "|" + table + "|" + b.sanitizer.Dialect().Name
	value, hit, _ := b.cache.GetOrBuild(key, func() (string, error) {
		b.cache.EvictExpired()
		return b.buildGrounding(table, fields), nil
	})
	observability.ObserveContextCache(hit)
	if !hit {
		b.logger.Debug("grounding context assembled", slog.String("table", table), slog.Int("fields", len(fields)))
	}
	return value
}

func (b *Builder) buildGrounding(table string, fields []schema.Field) string {
	d := b.sanitizer.Dialect()
	qualified := d.QuoteIdent(table)

	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(b.pack.Role))
	sb.WriteString("\n\nTABLE:\n")
	fmt.Fprintf(&sb, "Query only the table %s and always write it fully qualified and quoted, exactly as %s, in every FROM and JOIN clause.\n", qualified, qualified)
	sb.WriteString("Use only the columns listed below. Column names containing non-ASCII characters (such as ä or ö) must always be quoted")
	fmt.Fprintf(&sb, " with %c.", d.Quote)

	sb.WriteString("\n\nSCHEMA:")
	for _, f := range fields {
		fmt.Fprintf(&sb, "\n- %s (%s)", d.QuoteIdent(f.Name), f.Type)
		if f.Description != "" {
			sb.WriteString(": ")
			sb.WriteString(f.Description)
		}
	}

	sb.WriteString("\n\nDOMAIN GLOSSARY:\nThe data contains Finnish government budget and accounting information.")
	for _, section := range b.pack.Glossary {
		fmt.Fprintf(&sb, "\n%s:", section.Title)
		for _, entry := range section.Entries {
			fmt.Fprintf(&sb, "\n  - %s: %s", entry.Term, entry.Meaning)
		}
	}
	if len(b.pack.BranchCodes) > 0 {
		fmt.Fprintf(&sb, "\nKnown %s codes:", b.pack.BranchColumn)
		codes := make([]string, 0, len(b.pack.BranchCodes))
		for code := range b.pack.BranchCodes {
			codes = append(codes, code)
		}
		slices.Sort(codes)
		for _, code := range codes {
			fmt.Fprintf(&sb, "\n  - '%s' = %s", code, b.pack.BranchCodes[code])
		}
	}
	return sb.String()
}

func filterSection(filters Filters, d Dialect) string {
	var lines []string
	switch {
	case filters.YearStart != nil && filters.YearEnd != nil:
		if *filters.YearStart == *filters.YearEnd {
			lines = append(lines, fmt.Sprintf("Data must be filtered for the year %d.", *filters.YearStart))
		} else {
			lines = append(lines, fmt.Sprintf("Data must cover the year range from %d to %d inclusive.", *filters.YearStart, *filters.YearEnd))
		}
	case filters.YearStart != nil:
		lines = append(lines, fmt.Sprintf("Data must cover the years from %d onwards.", *filters.YearStart))
	case filters.YearEnd != nil:
		lines = append(lines, fmt.Sprintf("Data must cover the years up to %d inclusive.", *filters.YearEnd))
	}
	keys := make([]string, 0, len(filters.Extra))
	for k := range filters.Extra {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("Column %s must equal '%s'.", d.QuoteIdent(k), strings.ReplaceAll(filters.Extra[k], "'", "''")))
	}
	if len(lines) == 0 {
		return ""
	}
	return "ACTIVE FILTERS (hard requirements from the user interface, apply them in addition to the question):\n- " +
		strings.Join(lines, "\n- ")
}

func (b *Builder) examplesSection(table string, fields []schema.Field, variant Variant) string {
	examples := b.pack.Examples
	if variant != VariantFewShot && len(examples) > 2 {
		examples = examples[:2]
	}
	d := b.sanitizer.Dialect()
	protected := schema.ProtectedNames(fields)

	var sb strings.Builder
	sb.WriteString("EXAMPLES:")
	for i, ex := range examples {
		query := strings.ReplaceAll(ex.SQL, tablePlaceholder, d.QuoteIdent(table))
		query = b.sanitizer.Sanitize(query, protected)
		fmt.Fprintf(&sb, "\nExample %d:\nQuestion: %s\n", i+1, ex.Question)
		if variant == VariantStructured {
			payload, _ := json.Marshal(map[string]any{
				"sql":         query,
				"explanation": ex.Explanation,
				"confidence":  0.9,
				"assumptions": []string{},
			})
			sb.Write(payload)
			sb.WriteString("\n")
			continue
		}
		sb.WriteString(Format(query, ex.Explanation))
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func responseFormat(variant Variant) string {
	if variant == VariantStructured {
		return "RESPONSE FORMAT:\nRespond with a single JSON object with the keys \"sql\" (the query), " +
			"\"explanation\" (one or two sentences), \"confidence\" (0 to 1) and \"assumptions\" (list of strings). " +
			"Do not wrap it in markdown."
	}
	return "RESPONSE FORMAT:\nReturn the query after a line \"SQL:\" inside a ```sql fenced block, " +
		"followed by a blank line and a brief explanation starting with \"Explanation:\"."
}
