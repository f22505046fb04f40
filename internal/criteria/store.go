package criteria

import (
	"context"
	"errors"
	"fmt"

	"github.com/ppiankov/textio/internal/model"
	"github.com/ppiankov/textio/internal/store"
)

// RuleSetLoader reads rulesets from the warehouse
type RuleSetLoader interface {
	LoadRuleSet(ctx context.Context, name string) (*model.RuleSet, error)
}

// StoreSource serves rulesets from the RULESETS and CRITERIA tables,
// falling back to another source when the warehouse has none
type StoreSource struct {
	loader   RuleSetLoader
	fallback Source
}

// NewStoreSource creates a warehouse-backed source; fallback may be nil
func NewStoreSource(loader RuleSetLoader, fallback Source) *StoreSource {
	return &StoreSource{loader: loader, fallback: fallback}
}

// RuleSet loads from the warehouse, then the fallback
func (s *StoreSource) RuleSet(ctx context.Context, name string) (model.RuleSet, error) {
	rs, err := s.loader.LoadRuleSet(ctx, name)
	switch {
	case err == nil:
		if verr := validate(*rs); verr != nil {
			return model.RuleSet{}, fmt.Errorf("stored ruleset: %w", verr)
		}
		return *rs, nil
	case errors.Is(err, store.ErrNotFound):
		if s.fallback != nil {
			return s.fallback.RuleSet(ctx, name)
		}
		return model.RuleSet{}, fmt.Errorf("%w: %q", ErrRulesetNotFound, name)
	default:
		return model.RuleSet{}, fmt.Errorf("load ruleset %q: %w", name, err)
	}
}
