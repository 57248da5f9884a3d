// Package schema loads the column definitions of the analytical dataset and
// serves them to prompt construction, validation and the HTTP API.
package schema

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"
)

type FieldType string

const (
	TypeInteger   FieldType = "INTEGER"
	TypeFloat     FieldType = "FLOAT"
	TypeNumeric   FieldType = "NUMERIC"
	TypeString    FieldType = "STRING"
	TypeDate      FieldType = "DATE"
	TypeTimestamp FieldType = "TIMESTAMP"
	TypeBoolean   FieldType = "BOOLEAN"
)

var typeAliases = map[string]FieldType{
	"INTEGER":   TypeInteger,
	"INT64":     TypeInteger,
	"BIGINT":    TypeInteger,
	"FLOAT":     TypeFloat,
	"FLOAT64":   TypeFloat,
	"DOUBLE":    TypeFloat,
	"NUMERIC":   TypeNumeric,
	"DECIMAL":   TypeNumeric,
	"STRING":    TypeString,
	"VARCHAR":   TypeString,
	"DATE":      TypeDate,
	"TIMESTAMP": TypeTimestamp,
	"BOOLEAN":   TypeBoolean,
	"BOOL":      TypeBoolean,
}

// ParseFieldType normalizes a type name, accepting common engine aliases.
func ParseFieldType(raw string) (FieldType, bool) {
	t, ok := typeAliases[strings.ToUpper(strings.TrimSpace(raw))]
	return t, ok
}

type Field struct {
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	Description string    `json:"description,omitempty"`
}

func (f Field) Numeric() bool {
	switch f.Type {
	case TypeInteger, TypeFloat, TypeNumeric:
		return true
	default:
		return false
	}
}

// Protected reports whether the column name carries non-ASCII characters and
// therefore has to be quoted in generated queries.
func (f Field) Protected() bool {
	for i := 0; i < len(f.Name); i++ {
		if f.Name[i] >= utf8.RuneSelf {
			return true
		}
	}
	return false
}

type FieldInfo struct {
	Type        FieldType `json:"type"`
	Description string    `json:"description"`
}

// Provider is the source of raw column definitions.
type Provider interface {
	Source() string
	LoadFields(ctx context.Context) ([]Field, error)
}

// ErrEmptySchema marks a definition that exists but lists no columns.
var ErrEmptySchema = errors.New("schema defines no fields")

type LoadError struct {
	Source string
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("load schema from %s: %s: %v", e.Source, e.Reason, e.Err)
	}
	return fmt.Sprintf("load schema from %s: %s", e.Source, e.Reason)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// ProtectedNames returns the non-ASCII column names in schema order.
func ProtectedNames(fields []Field) []string {
	names := make([]string, 0)
	for _, f := range fields {
		if f.Protected() {
			names = append(names, f.Name)
		}
	}
	return names
}

// Fingerprint is a content hash of the schema that is stable under field
// reordering.
func Fingerprint(fields []Field) string {
	sorted := slices.Clone(fields)
	slices.SortFunc(sorted, func(a, b Field) int { return strings.Compare(a.Name, b.Name) })
	payload, _ := json.Marshal(sorted)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// DecodeJSON accepts either a bare array of fields or an object with a
// "fields" array.
func DecodeJSON(source string, data []byte) ([]Field, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, &LoadError{Source: source, Reason: "empty document", Err: ErrEmptySchema}
	}
	var raw []Field
	if strings.HasPrefix(trimmed, "{") {
		var doc struct {
			Fields []Field `json:"fields"`
		}
		if err := json.Unmarshal([]byte(trimmed), &doc); err != nil {
			return nil, &LoadError{Source: source, Reason: "malformed json", Err: err}
		}
		raw = doc.Fields
	} else if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return nil, &LoadError{Source: source, Reason: "malformed json", Err: err}
	}
	return raw, nil
}

func validate(source string, raw []Field) ([]Field, error) {
	if len(raw) == 0 {
		return nil, &LoadError{Source: source, Reason: "empty definition", Err: ErrEmptySchema}
	}
	seen := make(map[string]struct{}, len(raw))
	out := make([]Field, 0, len(raw))
	for i, f := range raw {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return nil, &LoadError{Source: source, Reason: fmt.Sprintf("field %d has no name", i)}
		}
		if f.Type == "" {
			return nil, &LoadError{Source: source, Reason: fmt.Sprintf("field %q has no type", name)}
		}
		t, ok := ParseFieldType(string(f.Type))
		if !ok {
			return nil, &LoadError{Source: source, Reason: fmt.Sprintf("field %q has unknown type %q", name, f.Type)}
		}
		if _, dup := seen[name]; dup {
			return nil, &LoadError{Source: source, Reason: fmt.Sprintf("duplicate field %q", name)}
		}
		seen[name] = struct{}{}
		out = append(out, Field{Name: name, Type: t, Description: strings.TrimSpace(f.Description)})
	}
	return out, nil
}
