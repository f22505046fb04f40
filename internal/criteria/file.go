package criteria

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/textio/internal/model"
)

//go:embed default_rules.yaml
var defaultRules []byte

type rulesFile struct {
	RuleSets []model.RuleSet `yaml:"rulesets"`
}

// FileSource serves rulesets parsed from YAML
type FileSource struct {
	rulesets []model.RuleSet
}

// NewDefaultSource returns the built-in problem_statement and fsr_notes rules
func NewDefaultSource() (*FileSource, error) {
	return Parse(defaultRules)
}

// LoadFile parses a YAML rules file; an empty path loads the defaults
func LoadFile(path string) (*FileSource, error) {
	if path == "" {
		return NewDefaultSource()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	src, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return src, nil
}

// Parse decodes and validates a rules document
func Parse(data []byte) (*FileSource, error) {
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	for i := range f.RuleSets {
		if f.RuleSets[i].Version == 0 {
			f.RuleSets[i].Version = 1
		}
		if f.RuleSets[i].InputType == "" {
			f.RuleSets[i].InputType = f.RuleSets[i].Name
		}
		if err := validate(f.RuleSets[i]); err != nil {
			return nil, err
		}
	}
	return &FileSource{rulesets: f.RuleSets}, nil
}

// RuleSets returns every ruleset in file order
func (s *FileSource) RuleSets() []model.RuleSet {
	return s.rulesets
}

// RuleSet matches by name first, then by input type
func (s *FileSource) RuleSet(_ context.Context, name string) (model.RuleSet, error) {
	for _, rs := range s.rulesets {
		if rs.Name == name {
			return rs, nil
		}
	}
	for _, rs := range s.rulesets {
		if rs.InputType == name {
			return rs, nil
		}
	}
	return model.RuleSet{}, fmt.Errorf("%w: %q", ErrRulesetNotFound, name)
}
