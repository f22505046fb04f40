// Package pipeline orchestrates evaluate and rewrite calls: prompt, model,
// resolution, scoring, realignment, correlation and background persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/textio/internal/correlation"
	"github.com/ppiankov/textio/internal/criteria"
	"github.com/ppiankov/textio/internal/llm"
	"github.com/ppiankov/textio/internal/model"
	"github.com/ppiankov/textio/internal/persist"
	"github.com/ppiankov/textio/internal/prompt"
	"github.com/ppiankov/textio/internal/resolve"
	"github.com/ppiankov/textio/internal/store"
)

var (
	// ErrInvalidRequest marks caller mistakes: missing text, unknown ruleset, bad answers
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNoStore is returned by read endpoints when no warehouse is configured
	ErrNoStore = errors.New("history store not configured")
)

// UnavailableMessage is the user-facing error when the model cannot be reached
const UnavailableMessage = "The language model is unavailable right now. Please try again."

// ModelClient completes one prompt; *llm.Completer satisfies it
type ModelClient interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

// Recorder takes records for background persistence
type Recorder interface {
	RecordEvaluation(rec persist.EvaluationRecord)
	RecordRewrite(rec persist.RewriteRecord)
}

// HistoryReader serves persisted rows
type HistoryReader interface {
	History(ctx context.Context, q store.HistoryQuery) ([]store.HistoryEntry, error)
	InputState(ctx context.Context, appSessionID, inputField, lineItemID string) (*store.InputState, error)
}

// Deps are the collaborators of a Pipeline. Recorder and History may be nil.
type Deps struct {
	Rules          criteria.Source
	Model          ModelClient
	Resolver       *resolve.Resolver
	Tracker        *correlation.Tracker
	Recorder       Recorder
	History        HistoryReader
	Logger         *zap.Logger
	DefaultRuleset string
}

// Pipeline serves evaluate, rewrite and scoring calls
type Pipeline struct {
	rules          criteria.Source
	model          ModelClient
	resolver       *resolve.Resolver
	tracker        *correlation.Tracker
	recorder       Recorder
	history        HistoryReader
	logger         *zap.Logger
	defaultRuleset string
}

// New creates a pipeline
func New(d Deps) *Pipeline {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	resolver := d.Resolver
	if resolver == nil {
		resolver = resolve.New(logger, nil)
	}
	return &Pipeline{
		rules:          d.Rules,
		model:          d.Model,
		resolver:       resolver,
		tracker:        d.Tracker,
		recorder:       d.Recorder,
		history:        d.History,
		logger:         logger,
		defaultRuleset: d.DefaultRuleset,
	}
}

// EvaluateResult is the response to an evaluate call.
// UserInputID and EvaluationID are always null; rows are written later.
type EvaluateResult struct {
	RewriteUUID  string             `json:"rewriteUuid"`
	ReviewID     string             `json:"reviewId"`
	UserInputID  *int64             `json:"userInputId"`
	EvaluationID *int64             `json:"evaluationId"`
	Score        int                `json:"score"`
	Evaluation   model.Evaluation   `json:"evaluation"`
	Suggestions  []model.Suggestion `json:"suggestions,omitempty"`
	Error        string             `json:"error,omitempty"`
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// ruleset picks the ruleset by name, then input field, then the default
func (p *Pipeline) ruleset(ctx context.Context, req model.EvaluationRequest) (model.RuleSet, error) {
	name := strings.TrimSpace(req.RulesetName)
	if name == "" {
		name = strings.TrimSpace(req.Session.InputField)
	}
	if name == "" {
		name = p.defaultRuleset
	}
	if name == "" {
		return model.RuleSet{}, invalid("rulesetName is required")
	}

	rs, err := p.rules.RuleSet(ctx, name)
	if errors.Is(err, criteria.ErrRulesetNotFound) {
		return model.RuleSet{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if err != nil {
		return model.RuleSet{}, fmt.Errorf("load ruleset: %w", err)
	}
	return rs, nil
}

// complete runs the model and resolves its answer. A transport failure
// becomes the structured failure outcome.
func (p *Pipeline) complete(ctx context.Context, pr prompt.Prompt, step model.Step, crit []model.Criterion) resolve.Outcome {
	start := time.Now()
	resp, err := p.model.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: pr.System,
		UserPrompt:   pr.User,
	})
	if err != nil {
		p.logger.Error("model call failed",
			zap.String("step", step.String()),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return p.resolver.Failure(step, UnavailableMessage)
	}

	out := p.resolver.Resolve(resp.Content, step, crit)
	p.logger.Debug("model response resolved",
		zap.String("step", step.String()),
		zap.String("tier", out.Tier.String()),
		zap.Int("tokens", resp.TokensUsed),
		zap.Duration("elapsed", time.Since(start)))
	return out
}

func checkText(text string) error {
	if strings.TrimSpace(text) == "" {
		return invalid("text is required")
	}
	return nil
}
