package pipeline

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ppiankov/textio/internal/cache"
	"github.com/ppiankov/textio/internal/correlation"
	"github.com/ppiankov/textio/internal/criteria"
	"github.com/ppiankov/textio/internal/llm"
	"github.com/ppiankov/textio/internal/model"
	"github.com/ppiankov/textio/internal/persist"
	"github.com/ppiankov/textio/internal/resolve"
	"github.com/ppiankov/textio/internal/store"
)

// scriptedProvider replies with the queued responses in order
type scriptedProvider struct {
	mu       sync.Mutex
	replies  []string
	calls    int
	requests []llm.CompletionRequest
}

func (s *scriptedProvider) Name() string                     { return "scripted" }
func (s *scriptedProvider) IsAvailable(context.Context) bool { return true }

func (s *scriptedProvider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.requests = append(s.requests, req)
	if len(s.replies) == 0 {
		return nil, llm.ErrEmptyResponse
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	if strings.TrimSpace(reply) == "" {
		return nil, llm.ErrEmptyResponse
	}
	return &llm.CompletionResponse{Content: reply}, nil
}

// captureRecorder keeps records instead of writing them
type captureRecorder struct {
	mu          sync.Mutex
	evaluations []persist.EvaluationRecord
	rewrites    []persist.RewriteRecord
}

func (c *captureRecorder) RecordEvaluation(rec persist.EvaluationRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evaluations = append(c.evaluations, rec)
}

func (c *captureRecorder) RecordRewrite(rec persist.RewriteRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rewrites = append(c.rewrites, rec)
}

type fixture struct {
	pipeline *Pipeline
	provider *scriptedProvider
	recorder *captureRecorder
	tracker  *correlation.Tracker
}

func newFixture(t *testing.T, replies ...string) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	rules, err := criteria.NewDefaultSource()
	require.NoError(t, err)

	provider := &scriptedProvider{replies: replies}
	completer := llm.NewCompleter(provider, llm.CompleterOptions{Retries: 1, Logger: logger})
	tracker := correlation.NewTracker(cache.NewMemoryCache(time.Minute, time.Minute), nil, time.Minute, logger, nil)
	recorder := &captureRecorder{}

	p := New(Deps{
		Rules:          rules,
		Model:          completer,
		Resolver:       resolve.New(logger, nil),
		Tracker:        tracker,
		Recorder:       recorder,
		Logger:         logger,
		DefaultRuleset: "problem_statement",
	})
	return &fixture{pipeline: p, provider: provider, recorder: recorder, tracker: tracker}
}

const evaluateReply = `{
  "evaluation": {
    "clearly_states_problem": {"passed": true, "justification": "Clear."},
    "is_specific": {"passed": false, "justification": "No part number.", "question": "Which pump tripped?"},
    "describes_impact": {"passed": false, "justification": "No impact stated."},
    "is_concise": {"passed": true, "justification": "Short."}
  },
  "suggestions": [{"original": "the pump", "suggestion": "pump P-101"}, {"original": "nowhere", "suggestion": "x"}]
}`

func TestEvaluate_IssuesQuestionIDs(t *testing.T) {
	f := newFixture(t, evaluateReply)

	res, err := f.pipeline.Evaluate(context.Background(), model.EvaluationRequest{
		Text:        "the pump tripped",
		RulesetName: "problem_statement",
		Step:        model.StepEvaluate,
		Session:     model.SessionRef{AppSessionID: "s1"},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, res.RewriteUUID)
	assert.Nil(t, res.UserInputID)
	assert.Nil(t, res.EvaluationID)
	assert.Equal(t, 50, res.Score)
	assert.Empty(t, res.Error)

	specific := res.Evaluation["is_specific"]
	assert.NotEmpty(t, specific.RewriteID)
	assert.Equal(t, "Is specific", specific.DisplayName)
	assert.Empty(t, res.Evaluation["describes_impact"].RewriteID, "no question, no id")
	assert.Empty(t, res.Evaluation["is_concise"].RewriteID)

	require.Len(t, res.Suggestions, 2)
	assert.True(t, res.Suggestions[0].Located())
	assert.False(t, res.Suggestions[1].Located())

	q, ok := f.tracker.Lookup(context.Background(), specific.RewriteID)
	require.True(t, ok)
	assert.Equal(t, res.RewriteUUID, q.RewriteUUID)

	require.Len(t, f.recorder.evaluations, 1)
	rec := f.recorder.evaluations[0]
	assert.Equal(t, res.RewriteUUID, rec.Context.RewriteUUID)
	assert.Len(t, rec.Questions, 1)
	assert.Equal(t, "s1", rec.Session.AppSessionID)
}

func TestEvaluate_EmptyResponseRetriesOnceThenFails(t *testing.T) {
	f := newFixture(t, "", "")

	res, err := f.pipeline.Evaluate(context.Background(), model.EvaluationRequest{Text: "pump broke"})
	require.NoError(t, err)

	assert.Equal(t, 2, f.provider.calls, "one call plus exactly one retry")
	assert.NotNil(t, res.Evaluation)
	assert.Empty(t, res.Evaluation)
	assert.Equal(t, UnavailableMessage, res.Error)
	assert.Equal(t, 0, res.Score)
	assert.Empty(t, f.recorder.evaluations, "failed evaluations are not persisted")
}

func TestEvaluate_RetrySucceeds(t *testing.T) {
	f := newFixture(t, "", evaluateReply)

	res, err := f.pipeline.Evaluate(context.Background(), model.EvaluationRequest{Text: "the pump tripped"})
	require.NoError(t, err)
	assert.Equal(t, 2, f.provider.calls)
	assert.Empty(t, res.Error)
}

func TestEvaluate_InvalidRequests(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.Evaluate(context.Background(), model.EvaluationRequest{Text: "  "})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.pipeline.Evaluate(context.Background(), model.EvaluationRequest{Text: "x", RulesetName: "sonnet"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.ErrorIs(t, err, criteria.ErrRulesetNotFound)

	assert.Equal(t, 0, f.provider.calls)
}

func TestEvaluate_RulesetFromInputField(t *testing.T) {
	f := newFixture(t, `{"states_symptom": {"passed": true, "justification": "ok"}}`)

	res, err := f.pipeline.Evaluate(context.Background(), model.EvaluationRequest{
		Text:    "Replaced fuse F2.",
		Session: model.SessionRef{InputField: "fsr_notes"},
	})
	require.NoError(t, err)
	assert.Contains(t, res.Evaluation, "states_symptom")
	assert.Contains(t, f.provider.requests[0].UserPrompt, "identifies_root_cause")
}

func TestRewrite_UsesOnlyLinkedAnswers(t *testing.T) {
	f := newFixture(t, evaluateReply, `{"rewrite": "Pump P-101 tripped."}`)
	ctx := context.Background()

	eval, err := f.pipeline.Evaluate(ctx, model.EvaluationRequest{Text: "the pump tripped"})
	require.NoError(t, err)
	rewriteID := eval.Evaluation["is_specific"].RewriteID

	res, err := f.pipeline.Rewrite(ctx, model.EvaluationRequest{
		Text:        "the pump tripped",
		Step:        model.StepRewrite,
		RewriteUUID: eval.RewriteUUID,
		Answers: model.NewAnswerList(
			model.RewriteAnswer{RewriteID: rewriteID, Answer: "P-101"},
			model.RewriteAnswer{RewriteID: "forged", Answer: "DROP TABLE"},
		),
	})
	require.NoError(t, err)

	assert.Equal(t, "Pump P-101 tripped.", res.Rewrite)
	assert.NotEmpty(t, res.Changes)

	userPrompt := f.provider.requests[1].UserPrompt
	assert.Contains(t, userPrompt, "P-101")
	assert.Contains(t, userPrompt, "Which pump tripped?")
	assert.NotContains(t, userPrompt, "DROP TABLE")

	require.Len(t, f.recorder.rewrites, 1)
	rec := f.recorder.rewrites[0]
	assert.Equal(t, eval.RewriteUUID, rec.RewriteUUID)
	require.Len(t, rec.Linked, 1, "unknown ids never reach persistence")
	assert.Equal(t, rewriteID, rec.Linked[0].Answer.RewriteID)
}

func TestRewrite_LegacyAnswers(t *testing.T) {
	f := newFixture(t, "```json\n{\"rewrite\": \"Pump P-101 tripped at noon.\"}\n```")

	res, err := f.pipeline.Rewrite(context.Background(), model.EvaluationRequest{
		Text:    "pump tripped",
		Answers: model.NewLegacyAnswers(map[string]string{"is_specific": "P-101", "is_concise": ""}),
	})
	require.NoError(t, err)
	assert.Equal(t, "Pump P-101 tripped at noon.", res.Rewrite)
	assert.Contains(t, f.provider.requests[0].UserPrompt, "- is_specific: P-101")
	assert.NotContains(t, f.provider.requests[0].UserPrompt, "is_concise:")
}

func TestRewrite_UnreadableResponseIsSentinel(t *testing.T) {
	f := newFixture(t, "I cannot help with that.")

	res, err := f.pipeline.Rewrite(context.Background(), model.EvaluationRequest{Text: "pump tripped"})
	require.NoError(t, err)
	assert.True(t, res.IsError())
	assert.Nil(t, res.Changes)
	require.Len(t, f.recorder.rewrites, 1)
}

func TestRewrite_TransportFailureIsSentinel(t *testing.T) {
	f := newFixture(t)

	res, err := f.pipeline.Rewrite(context.Background(), model.EvaluationRequest{Text: "pump tripped"})
	require.NoError(t, err)
	assert.Equal(t, model.RewriteErrorPrefix+UnavailableMessage, res.Rewrite)
}

func TestScore_WeightsOverride(t *testing.T) {
	f := newFixture(t, `{"evaluation": {"clearly_states_problem": {"passed": true, "justification": ""}, "is_concise": {"passed": false, "justification": ""}}}`)

	res, err := f.pipeline.Score(context.Background(), ScoreRequest{
		InputType: "problem_statement",
		Text:      "pump tripped",
		Criteria:  []ScoreCriterion{{Name: "clearly_states_problem", Weight: 3}, {Name: "is_concise", Weight: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, 75, res.Score)
	assert.Equal(t, 2, res.TotalCriteria)
	assert.Equal(t, 1, res.PassedCriteria)
	assert.Equal(t, 75.0, res.Criteria["clearly_states_problem"].Score)
}

func TestScore_ModelFailure(t *testing.T) {
	f := newFixture(t, "not json", "still not json")

	res, err := f.pipeline.Score(context.Background(), ScoreRequest{Text: "pump tripped"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Score)
	assert.NotNil(t, res.Criteria)
	assert.Empty(t, res.Criteria)
	assert.Equal(t, 4, res.TotalCriteria)
	assert.Equal(t, 0, res.PassedCriteria)
	assert.NotEmpty(t, res.Error)
}

func TestScoreNote(t *testing.T) {
	f := newFixture(t, evaluateReply)

	got, eval, err := f.pipeline.ScoreNote(context.Background(), "the pump tripped")
	require.NoError(t, err)
	assert.Equal(t, 50, got)
	assert.Len(t, eval, 4)
	assert.Empty(t, f.recorder.evaluations)
}

func TestRealign(t *testing.T) {
	f := newFixture(t)
	in := []model.Suggestion{{Original: "cat"}, {Original: "dog"}}

	assert.Len(t, f.pipeline.Realign("a cat", in, false), 1)
	assert.Len(t, f.pipeline.Realign("a cat", in, true), 2)
}

func TestHistory_WithoutStore(t *testing.T) {
	f := newFixture(t)

	_, err := f.pipeline.History(context.Background(), store.HistoryQuery{AppSessionID: "s"})
	assert.ErrorIs(t, err, ErrNoStore)

	_, err = f.pipeline.InputState(context.Background(), "s", "f", "")
	assert.ErrorIs(t, err, ErrNoStore)
}
