package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/ppiankov/textio/internal/model"
	"github.com/ppiankov/textio/internal/persist"
	"github.com/ppiankov/textio/internal/prompt"
	"github.com/ppiankov/textio/internal/realign"
	"github.com/ppiankov/textio/internal/resolve"
	"github.com/ppiankov/textio/internal/score"
)

// Evaluate scores text against its ruleset and issues a question id for
// every failed criterion that carries a question
func (p *Pipeline) Evaluate(ctx context.Context, req model.EvaluationRequest) (*EvaluateResult, error) {
	if err := checkText(req.Text); err != nil {
		return nil, err
	}
	rs, err := p.ruleset(ctx, req)
	if err != nil {
		return nil, err
	}

	out, err := p.evaluate(ctx, req.Text, rs, rs.Criteria)
	if err != nil {
		return nil, err
	}

	cc := p.tracker.NewContext()
	logger := p.logger.With(zap.String("rewrite_uuid", cc.RewriteUUID), zap.String("ruleset", rs.Name))

	var questions []model.IssuedQuestion
	for _, name := range out.Evaluation.Failed(rs.Criteria) {
		result := out.Evaluation[name]
		if result.Question == "" {
			continue
		}
		result.RewriteID = p.tracker.IssuePerCriterionID()
		out.Evaluation[name] = result
		questions = append(questions, model.IssuedQuestion{
			RewriteID:   result.RewriteID,
			RewriteUUID: cc.RewriteUUID,
			Criterion:   name,
			DisplayName: result.DisplayName,
			Question:    result.Question,
		})
	}
	if len(questions) > 0 {
		// Failure is logged by the tracker; the store copy still links later
		_ = p.tracker.Register(ctx, cc, questions)
	}

	result := &EvaluateResult{
		RewriteUUID: cc.RewriteUUID,
		ReviewID:    cc.ReviewID,
		Score:       score.Percentage(out.Evaluation, rs.Criteria),
		Evaluation:  out.Evaluation,
		Error:       out.Err,
	}
	if len(out.Suggestions) > 0 {
		result.Suggestions = realign.Inline(req.Text, out.Suggestions)
	}

	logger.Info("evaluated note",
		zap.String("tier", out.Tier.String()),
		zap.Int("score", result.Score),
		zap.Int("questions", len(questions)))

	if p.recorder != nil && !out.Failed() {
		p.recorder.RecordEvaluation(persist.EvaluationRecord{
			Context:    cc,
			Ruleset:    rs.Name,
			Text:       req.Text,
			Session:    req.Session,
			Score:      result.Score,
			Evaluation: out.Evaluation,
			Questions:  questions,
		})
	}
	return result, nil
}

// evaluate builds the evaluate prompt for crit and resolves the model answer
func (p *Pipeline) evaluate(ctx context.Context, text string, rs model.RuleSet, crit []model.Criterion) (resolve.Outcome, error) {
	pr, err := prompt.Build(prompt.Input{
		Text:      text,
		Criteria:  crit,
		Advice:    rs.Advice,
		Step:      model.StepEvaluate,
		InputType: rs.InputType,
	})
	if err != nil {
		return resolve.Outcome{}, invalid("%v", err)
	}
	return p.complete(ctx, pr, model.StepEvaluate, crit), nil
}

// ScoreNote evaluates text against the default ruleset without issuing
// questions or persisting anything
func (p *Pipeline) ScoreNote(ctx context.Context, text string) (int, model.Evaluation, error) {
	if err := checkText(text); err != nil {
		return 0, nil, err
	}
	rs, err := p.ruleset(ctx, model.EvaluationRequest{})
	if err != nil {
		return 0, nil, err
	}
	out, err := p.evaluate(ctx, text, rs, rs.Criteria)
	if err != nil {
		return 0, nil, err
	}
	if out.Failed() {
		return 0, out.Evaluation, &FailureError{Message: out.Err}
	}
	return score.Percentage(out.Evaluation, rs.Criteria), out.Evaluation, nil
}

// FailureError reports a model response that could not be used
type FailureError struct {
	Message string
}

func (e *FailureError) Error() string { return e.Message }
