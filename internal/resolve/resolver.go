// Package resolve turns raw model text into a typed evaluation or rewrite.
//
// Resolution runs four tiers in order and stops at the first success:
// direct JSON, JSON inside fenced blocks, single-field recovery of the
// rewrite value, and a structured failure. Resolve never panics and never
// returns a nil evaluation map.
package resolve

import (
	"encoding/json"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/textio/internal/metrics"
	"github.com/ppiankov/textio/internal/model"
)

// Tier identifies which stage produced an Outcome
type Tier int

const (
	TierDirect Tier = iota + 1
	TierFenced
	TierField
	TierFailure
)

func (t Tier) String() string {
	switch t {
	case TierDirect:
		return "direct"
	case TierFenced:
		return "fenced"
	case TierField:
		return "field"
	case TierFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// DefaultFailureMessage is shown when no tier could read the response
const DefaultFailureMessage = "The model returned a response that could not be read. Please try again."

// Outcome is the resolved model response
type Outcome struct {
	Step        model.Step
	Tier        Tier
	Evaluation  model.Evaluation   // Never nil
	Suggestions []model.Suggestion // Evaluate only, offsets not yet located
	Rewrite     string             // Rewrite only; an "Error: " sentinel on failure
	Err         string             // User-facing message, set on failure
	ExtraKeys   []string           // Evaluation keys outside the criteria, dropped
	MissingKeys []string           // Criteria the model did not answer
}

// Failed reports whether every tier failed
func (o Outcome) Failed() bool {
	return o.Tier == TierFailure
}

// Resolver parses and repairs model output
type Resolver struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New creates a resolver; both arguments may be nil
func New(logger *zap.Logger, m *metrics.Metrics) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{logger: logger, metrics: m}
}

// Resolve runs the tiers against raw for the given step
func (r *Resolver) Resolve(raw string, step model.Step, criteria []model.Criterion) Outcome {
	if !step.Valid() {
		return r.Failure(step, "unknown step")
	}

	out, ok := r.direct(raw, step, criteria)
	if ok {
		out.Tier = TierDirect
		return r.finish(out)
	}

	for _, block := range fencedBlocks(raw) {
		if out, ok := r.direct(block, step, criteria); ok {
			out.Tier = TierFenced
			return r.finish(out)
		}
	}

	if step == model.StepRewrite {
		if value, ok := recoverField(raw, "rewrite"); ok {
			return r.finish(Outcome{
				Step:       step,
				Tier:       TierField,
				Evaluation: model.Evaluation{},
				Rewrite:    value,
			})
		}
	}

	r.logger.Warn("model response unreadable",
		zap.String("step", step.String()),
		zap.Int("length", len(raw)),
		zap.String("head", head(raw, 200)))
	return r.Failure(step, DefaultFailureMessage)
}

// Failure builds the tier-4 outcome for step with a user-facing message
func (r *Resolver) Failure(step model.Step, message string) Outcome {
	if message == "" {
		message = DefaultFailureMessage
	}
	out := Outcome{
		Step:       step,
		Tier:       TierFailure,
		Evaluation: model.Evaluation{},
		Err:        message,
	}
	if step == model.StepRewrite {
		out.Rewrite = model.RewriteErrorPrefix + message
	}
	r.metrics.ObserveResolve(step.String(), TierFailure.String())
	return out
}

func (r *Resolver) finish(out Outcome) Outcome {
	if len(out.ExtraKeys) > 0 {
		r.logger.Warn("dropped evaluation keys outside the criteria", zap.Strings("keys", out.ExtraKeys))
	}
	if len(out.MissingKeys) > 0 {
		r.logger.Info("model omitted criteria", zap.Strings("keys", out.MissingKeys))
	}
	r.logger.Debug("model response resolved",
		zap.String("step", out.Step.String()),
		zap.String("tier", out.Tier.String()))
	r.metrics.ObserveResolve(out.Step.String(), out.Tier.String())
	return out
}

// direct is tier 1 on s
func (r *Resolver) direct(s string, step model.Step, criteria []model.Criterion) (Outcome, bool) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &top); err != nil || top == nil {
		return Outcome{}, false
	}

	if step == model.StepRewrite {
		var rewrite string
		raw, ok := top["rewrite"]
		if !ok || json.Unmarshal(raw, &rewrite) != nil || strings.TrimSpace(rewrite) == "" {
			return Outcome{}, false
		}
		return Outcome{Step: step, Evaluation: model.Evaluation{}, Rewrite: rewrite}, true
	}

	known := make(map[string]model.Criterion, len(criteria))
	for _, c := range criteria {
		known[c.Name] = c
	}

	body, wrapped := top, false
	if raw, ok := top["evaluation"]; ok {
		var inner map[string]json.RawMessage
		if json.Unmarshal(raw, &inner) != nil || inner == nil {
			return Outcome{}, false
		}
		body, wrapped = inner, true
	} else if !hasAny(top, known) {
		return Outcome{}, false
	}

	out := Outcome{Step: step, Evaluation: make(model.Evaluation, len(body))}
	for key, raw := range body {
		c, ok := known[key]
		if !ok {
			if wrapped || key != "suggestions" {
				out.ExtraKeys = append(out.ExtraKeys, key)
			}
			continue
		}
		result, ok := decodeResult(raw)
		if !ok {
			r.logger.Warn("unreadable criterion result", zap.String("criterion", key))
			continue
		}
		result.DisplayName = c.Label()
		out.Evaluation[key] = result
	}
	sort.Strings(out.ExtraKeys)

	for _, c := range criteria {
		if _, ok := out.Evaluation[c.Name]; !ok {
			out.MissingKeys = append(out.MissingKeys, c.Name)
		}
	}

	if raw, ok := top["suggestions"]; ok {
		var suggestions []model.Suggestion
		if err := json.Unmarshal(raw, &suggestions); err == nil {
			out.Suggestions = suggestions
		} else {
			r.logger.Debug("ignoring malformed suggestions", zap.Error(err))
		}
	}
	return out, true
}

func hasAny(obj map[string]json.RawMessage, known map[string]model.Criterion) bool {
	for k := range obj {
		if _, ok := known[k]; ok {
			return true
		}
	}
	return false
}

// decodeResult reads {passed, justification, question}; passed may be a
// bool or the strings "true"/"false"
func decodeResult(raw json.RawMessage) (model.CriterionResult, bool) {
	var fields struct {
		Passed        json.RawMessage `json:"passed"`
		Justification string          `json:"justification"`
		Question      string          `json:"question"`
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return model.CriterionResult{}, false
	}

	passed, ok := parsePassed(fields.Passed)
	if !ok {
		return model.CriterionResult{}, false
	}

	result := model.CriterionResult{
		Passed:        passed,
		Justification: strings.TrimSpace(fields.Justification),
	}
	if !passed {
		result.Question = strings.TrimSpace(fields.Question)
	}
	return result, true
}

func parsePassed(raw json.RawMessage) (bool, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "yes", "pass", "passed":
			return true, true
		case "false", "no", "fail", "failed":
			return false, true
		}
	}
	return false, false
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
