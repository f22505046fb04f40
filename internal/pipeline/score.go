package pipeline

import (
	"context"
	"strings"

	"github.com/ppiankov/textio/internal/model"
	"github.com/ppiankov/textio/internal/realign"
	"github.com/ppiankov/textio/internal/score"
	"github.com/ppiankov/textio/internal/store"
)

// ScoreCriterion overrides the weight of one criterion, or adds one
type ScoreCriterion struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
}

// ScoreRequest is the body of an authenticated scoring call
type ScoreRequest struct {
	InputType string           `json:"inputType"`
	Text      string           `json:"text"`
	Criteria  []ScoreCriterion `json:"criteria,omitempty"`
}

// Score evaluates text and returns the weighted score.
// A model failure yields a zero score with Error set, not an error.
func (p *Pipeline) Score(ctx context.Context, req ScoreRequest) (*score.WeightedScore, error) {
	if err := checkText(req.Text); err != nil {
		return nil, err
	}
	rs, err := p.ruleset(ctx, model.EvaluationRequest{RulesetName: req.InputType})
	if err != nil {
		return nil, err
	}

	crit := rs.Criteria
	if len(req.Criteria) > 0 {
		crit = make([]model.Criterion, 0, len(req.Criteria))
		for _, c := range req.Criteria {
			name := strings.TrimSpace(c.Name)
			if name == "" {
				return nil, invalid("criterion without name")
			}
			base, ok := rs.Find(name)
			if !ok {
				base = model.Criterion{Name: name}
			}
			base.Weight = c.Weight
			crit = append(crit, base)
		}
	}

	out, err := p.evaluate(ctx, req.Text, rs, crit)
	if err != nil {
		return nil, err
	}
	if out.Failed() {
		return &score.WeightedScore{
			Criteria:      map[string]score.CriterionScore{},
			TotalCriteria: len(crit),
			Error:         out.Err,
		}, nil
	}

	result := score.Weighted(out.Evaluation, crit)
	return &result, nil
}

// Realign locates suggestions in text. Inline keeps unlocated suggestions
// with null offsets; otherwise they are dropped.
func (p *Pipeline) Realign(text string, suggestions []model.Suggestion, inline bool) []model.Suggestion {
	if inline {
		return realign.Inline(text, suggestions)
	}
	return realign.Batch(text, suggestions)
}

// History returns persisted evaluations for an input or a session
func (p *Pipeline) History(ctx context.Context, q store.HistoryQuery) ([]store.HistoryEntry, error) {
	if p.history == nil {
		return nil, ErrNoStore
	}
	if q.UserInputID == nil && q.AppSessionID == "" {
		return nil, invalid("userInputId or appSessionId is required")
	}
	return p.history.History(ctx, q)
}

// InputState returns the latest saved value of an input field
func (p *Pipeline) InputState(ctx context.Context, appSessionID, inputField, lineItemID string) (*store.InputState, error) {
	if p.history == nil {
		return nil, ErrNoStore
	}
	if appSessionID == "" || inputField == "" {
		return nil, invalid("appSessionId and inputField are required")
	}
	return p.history.InputState(ctx, appSessionID, inputField, lineItemID)
}
