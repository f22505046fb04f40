package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/ppiankov/textio/internal/model"
	"github.com/ppiankov/textio/internal/persist"
	"github.com/ppiankov/textio/internal/prompt"
	"github.com/ppiankov/textio/internal/realign"
)

// Rewrite produces an improved note from text and the user's answers.
// Answers that do not resolve to an issued question are dropped.
func (p *Pipeline) Rewrite(ctx context.Context, req model.EvaluationRequest) (*model.RewriteResult, error) {
	if err := checkText(req.Text); err != nil {
		return nil, err
	}
	rs, err := p.ruleset(ctx, req)
	if err != nil {
		return nil, err
	}

	linked, skipped := p.tracker.LinkAnswerToPrompt(ctx, req.RewriteUUID, req.Answers)

	answers := req.Answers.Compact()
	var questions map[string]model.IssuedQuestion
	if answers.Format == model.AnswerFormatList {
		kept := make([]model.RewriteAnswer, 0, len(linked))
		questions = make(map[string]model.IssuedQuestion, len(linked))
		for _, l := range linked {
			kept = append(kept, l.Answer)
			questions[l.Answer.RewriteID] = l.Question
		}
		answers = model.NewAnswerList(kept...)
	}

	pr, err := prompt.Build(prompt.Input{
		Text:      req.Text,
		Criteria:  rs.Criteria,
		Advice:    rs.Advice,
		Step:      model.StepRewrite,
		Answers:   answers,
		Questions: questions,
		Skeleton:  rs.Skeleton,
		InputType: rs.InputType,
	})
	if err != nil {
		return nil, invalid("%v", err)
	}

	out := p.complete(ctx, pr, model.StepRewrite, rs.Criteria)
	result := &model.RewriteResult{Rewrite: out.Rewrite}
	if !out.Failed() {
		result.Changes = realign.Changes(req.Text, out.Rewrite)
	}

	rewriteUUID := req.RewriteUUID
	if rewriteUUID == "" && len(linked) > 0 {
		rewriteUUID = linked[0].Question.RewriteUUID
	}

	p.logger.Info("rewrote note",
		zap.String("rewrite_uuid", rewriteUUID),
		zap.String("ruleset", rs.Name),
		zap.String("tier", out.Tier.String()),
		zap.Int("linked", len(linked)),
		zap.Int("skipped", len(skipped)))

	if p.recorder != nil {
		p.recorder.RecordRewrite(persist.RewriteRecord{
			RewriteUUID: rewriteUUID,
			UserInputID: req.UserInputID,
			Session:     req.Session,
			Linked:      linked,
			Rewrite:     out.Rewrite,
		})
	}
	return result, nil
}
