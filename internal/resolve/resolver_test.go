package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ppiankov/textio/internal/model"
)

var criteria = []model.Criterion{
	{Name: "clearly_states_problem", DisplayName: "Clear problem"},
	{Name: "is_concise"},
}

func newResolver(t *testing.T) *Resolver {
	return New(zaptest.NewLogger(t), nil)
}

func TestResolve_EvaluateDirect(t *testing.T) {
	raw := `{"evaluation":{"clearly_states_problem":{"passed":true,"justification":"ok"},"is_concise":{"passed":false,"justification":"long","question":"Can you shorten it?"}}}`

	out := newResolver(t).Resolve(raw, model.StepEvaluate, criteria)

	require.Equal(t, TierDirect, out.Tier)
	assert.True(t, out.Evaluation["clearly_states_problem"].Passed)
	assert.Equal(t, "Clear problem", out.Evaluation["clearly_states_problem"].DisplayName)
	assert.Equal(t, "is_concise", out.Evaluation["is_concise"].DisplayName)
	assert.Equal(t, "Can you shorten it?", out.Evaluation["is_concise"].Question)
	assert.Empty(t, out.ExtraKeys)
	assert.Empty(t, out.MissingKeys)
}

func TestResolve_EvaluateBareCriterionObject(t *testing.T) {
	raw := `{"clearly_states_problem":{"passed":"false","justification":"vague","question":"What failed?"},"suggestions":[{"original":"it broke","suggestion":"pump P-101 tripped"}]}`

	out := newResolver(t).Resolve(raw, model.StepEvaluate, criteria)

	require.Equal(t, TierDirect, out.Tier)
	assert.False(t, out.Evaluation["clearly_states_problem"].Passed)
	assert.Empty(t, out.ExtraKeys, "top-level suggestions is not a criterion key")
	assert.Equal(t, []string{"is_concise"}, out.MissingKeys)
	require.Len(t, out.Suggestions, 1)
	assert.Equal(t, "it broke", out.Suggestions[0].Original)
	assert.Equal(t, "pump P-101 tripped", out.Suggestions[0].Replacement)
}

func TestResolve_ToleratesExtraAndMissingKeys(t *testing.T) {
	raw := `{"evaluation":{"clearly_states_problem":{"passed":true,"justification":"ok"}, "extra_field":{"passed":false}}}`

	out := newResolver(t).Resolve(raw, model.StepEvaluate, criteria)

	require.False(t, out.Failed())
	assert.Len(t, out.Evaluation, 1)
	assert.True(t, out.Evaluation["clearly_states_problem"].Passed)
	_, invented := out.Evaluation["is_concise"]
	assert.False(t, invented, "missing criterion must not be invented")
	assert.Equal(t, []string{"extra_field"}, out.ExtraKeys)
	assert.Equal(t, []string{"is_concise"}, out.MissingKeys)
}

func TestResolve_ClosedVocabulary(t *testing.T) {
	inputs := []string{
		`{"evaluation":{"a":{"passed":true},"b":{"passed":false},"is_concise":{"passed":true}}}`,
		"```json\n{\"evaluation\":{\"zzz\":{\"passed\":true},\"clearly_states_problem\":{\"passed\":false}}}\n```",
		`{"is_concise":{"passed":true},"other":{"passed":true}}`,
	}
	allowed := map[string]bool{"clearly_states_problem": true, "is_concise": true}

	r := newResolver(t)
	for _, in := range inputs {
		out := r.Resolve(in, model.StepEvaluate, criteria)
		for key := range out.Evaluation {
			assert.True(t, allowed[key], "unexpected key %q from %s", key, in)
		}
	}
}

func TestResolve_FenceStrippingIsLossless(t *testing.T) {
	payloads := []string{
		`{"evaluation":{"clearly_states_problem":{"passed":true,"justification":"ok"},"is_concise":{"passed":false,"justification":"no","question":"Why?"}}}`,
		`{"evaluation":{}}`,
	}
	r := newResolver(t)

	for _, p := range payloads {
		plain := r.Resolve(p, model.StepEvaluate, criteria)
		for _, wrapped := range []string{
			"```json\n" + p + "\n```",
			"```\n" + p + "\n```",
			"Here you go:\n```JSON\n" + p + "\n```\nThanks",
		} {
			fenced := r.Resolve(wrapped, model.StepEvaluate, criteria)
			assert.Equal(t, TierFenced, fenced.Tier)
			assert.Equal(t, plain.Evaluation, fenced.Evaluation)
		}
	}
}

func TestResolve_SecondFencedBlock(t *testing.T) {
	raw := "```\nnot json\n```\nand\n```json\n{\"rewrite\":\"fixed note\"}\n```"

	out := newResolver(t).Resolve(raw, model.StepRewrite, nil)

	assert.Equal(t, TierFenced, out.Tier)
	assert.Equal(t, "fixed note", out.Rewrite)
}

func TestResolve_RewriteFieldRecovery(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"trailing garbage", `{"rewrite": "Pump \"A\" tripped.\nReset done.", "notes": oops}`, "Pump \"A\" tripped.\nReset done."},
		{"truncated", `{"rewrite": "Pump tripped at 14:00 and`, "Pump tripped at 14:00 and"},
		{"backslash", `{"rewrite": "path C:\\temp", broken`, `path C:\temp`},
		{"unknown escape kept", `{"rewrite": "tab\there", x`, `tab\there`},
		{"key mentioned in prose first", `I will "rewrite" it. {"rewrite": "done" bad`, "done"},
	}

	r := newResolver(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := r.Resolve(tt.raw, model.StepRewrite, nil)
			require.Equal(t, TierField, out.Tier)
			assert.Equal(t, tt.want, out.Rewrite)
			assert.NotNil(t, out.Evaluation)
		})
	}
}

func TestResolve_FieldRecoveryNotUsedForEvaluate(t *testing.T) {
	out := newResolver(t).Resolve(`{"rewrite": "text" broken`, model.StepEvaluate, criteria)

	assert.Equal(t, TierFailure, out.Tier)
	assert.NotNil(t, out.Evaluation)
	assert.Empty(t, out.Evaluation)
	assert.NotEmpty(t, out.Err)
}

func TestResolve_RewriteFailureSentinel(t *testing.T) {
	for _, raw := range []string{"I cannot help with that.", `{"rewrite": ""}`, `{"rewrite": null}`, "```\n```"} {
		out := newResolver(t).Resolve(raw, model.StepRewrite, nil)
		assert.Equal(t, TierFailure, out.Tier, raw)
		assert.True(t, model.IsRewriteError(out.Rewrite), raw)
		assert.NotNil(t, out.Evaluation)
	}
}

func TestResolve_EmptyEvaluationObjectIsDirect(t *testing.T) {
	out := newResolver(t).Resolve(`{"evaluation":{}}`, model.StepEvaluate, criteria)

	assert.Equal(t, TierDirect, out.Tier)
	assert.Empty(t, out.Evaluation)
	assert.Equal(t, []string{"clearly_states_problem", "is_concise"}, out.MissingKeys)
}

func TestResolve_UnreadableCriterionSkipped(t *testing.T) {
	raw := `{"evaluation":{"clearly_states_problem":"yes","is_concise":{"passed":null}}}`

	out := newResolver(t).Resolve(raw, model.StepEvaluate, criteria)

	assert.Equal(t, TierDirect, out.Tier)
	assert.Empty(t, out.Evaluation)
	assert.Len(t, out.MissingKeys, 2)
}

func TestResolve_PassedCriterionDropsQuestion(t *testing.T) {
	raw := `{"evaluation":{"is_concise":{"passed":true,"justification":"fine","question":"n/a"}}}`

	out := newResolver(t).Resolve(raw, model.StepEvaluate, criteria)

	assert.Empty(t, out.Evaluation["is_concise"].Question)
}

func TestFailure(t *testing.T) {
	r := newResolver(t)

	eval := r.Failure(model.StepEvaluate, "model timed out")
	assert.Equal(t, "model timed out", eval.Err)
	assert.NotNil(t, eval.Evaluation)
	assert.Empty(t, eval.Rewrite)

	rw := r.Failure(model.StepRewrite, "")
	assert.Equal(t, model.RewriteErrorPrefix+DefaultFailureMessage, rw.Rewrite)
}

func TestFencedBlocks(t *testing.T) {
	blocks := fencedBlocks("a ```json\n{}\n``` b ```\n[1]\n``` c ```unterminated")
	assert.Equal(t, []string{"{}", "[1]"}, blocks)

	inline := fencedBlocks("```{\"rewrite\":\"x\"}```")
	assert.Equal(t, []string{`{"rewrite":"x"}`}, inline)
}
