package nl2q

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed prompts/budget.yaml
var budgetPackYAML []byte

// Pack is the domain material of a prompt: glossary, worked examples and
// the codes the validator treats as known.
type Pack struct {
	Role         string            `yaml:"role"`
	YearColumn   string            `yaml:"year_column"`
	BranchColumn string            `yaml:"branch_column"`
	BranchCodes  map[string]string `yaml:"branch_codes"`
	Glossary     []GlossarySection `yaml:"glossary"`
	Examples     []Example         `yaml:"examples"`
}

type GlossarySection struct {
	Title   string          `yaml:"title"`
	Entries []GlossaryEntry `yaml:"entries"`
}

type GlossaryEntry struct {
	Term    string `yaml:"term"`
	Meaning string `yaml:"meaning"`
}

// Example SQL uses {{table}} where the qualified table identifier goes.
type Example struct {
	Question    string `yaml:"question"`
	SQL         string `yaml:"sql"`
	Explanation string `yaml:"explanation"`
}

const tablePlaceholder = "{{table}}"

func DefaultPack() (Pack, error) {
	return ParsePack(budgetPackYAML)
}

func LoadPackFile(path string) (Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Pack{}, fmt.Errorf("read prompt pack: %w", err)
	}
	return ParsePack(data)
}

func ParsePack(data []byte) (Pack, error) {
	var pack Pack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return Pack{}, fmt.Errorf("decode prompt pack: %w", err)
	}
	if err := pack.validate(); err != nil {
		return Pack{}, err
	}
	return pack, nil
}

func (p Pack) validate() error {
	if strings.TrimSpace(p.Role) == "" {
		return fmt.Errorf("prompt pack: role is required")
	}
	if len(p.Examples) < 2 || len(p.Examples) > 4 {
		return fmt.Errorf("prompt pack: expected 2 to 4 examples, got %d", len(p.Examples))
	}
	for i, ex := range p.Examples {
		if strings.TrimSpace(ex.Question) == "" || strings.TrimSpace(ex.SQL) == "" {
			return fmt.Errorf("prompt pack: example %d needs a question and sql", i+1)
		}
		if !strings.Contains(ex.SQL, tablePlaceholder) {
			return fmt.Errorf("prompt pack: example %d does not reference %s", i+1, tablePlaceholder)
		}
	}
	return nil
}
