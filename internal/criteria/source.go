// Package criteria supplies the named, ordered rule sets notes are evaluated against.
package criteria

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ppiankov/textio/internal/model"
)

// ErrRulesetNotFound is returned when no ruleset matches a name or input type
var ErrRulesetNotFound = errors.New("ruleset not found")

// Source resolves a ruleset by name, falling back to input type
type Source interface {
	RuleSet(ctx context.Context, name string) (model.RuleSet, error)
}

// validate rejects rulesets the prompt builder cannot use
func validate(rs model.RuleSet) error {
	if strings.TrimSpace(rs.Name) == "" {
		return fmt.Errorf("ruleset without name")
	}
	if len(rs.Criteria) == 0 {
		return fmt.Errorf("ruleset %s has no criteria", rs.Name)
	}
	seen := make(map[string]bool, len(rs.Criteria))
	for _, c := range rs.Criteria {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("ruleset %s has a criterion without name", rs.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("ruleset %s repeats criterion %s", rs.Name, c.Name)
		}
		if c.Weight <= 0 {
			return fmt.Errorf("ruleset %s criterion %s: weight must be positive", rs.Name, c.Name)
		}
		seen[c.Name] = true
	}
	return nil
}
