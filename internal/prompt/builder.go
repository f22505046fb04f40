// Package prompt renders the system/user prompt pair sent to the model.
// Output depends only on the Input: no clock, no randomness, sorted map keys.
package prompt

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/textio/internal/model"
)

var (
	// ErrNoCriteria is returned for an evaluate prompt without criteria
	ErrNoCriteria = errors.New("prompt: no criteria to evaluate against")

	// ErrUnknownStep is returned for a step other than evaluate or rewrite
	ErrUnknownStep = errors.New("prompt: unknown step")
)

const (
	noteOpen  = "<<<NOTE"
	noteClose = "NOTE>>>"
)

const baseSystem = `You are a senior technical writing reviewer for field-service and engineering notes.
You answer with a single JSON object and nothing else: no prose, no markdown, no code fences.`

// Input is everything a prompt is built from
type Input struct {
	Text      string
	Criteria  []model.Criterion
	Advice    []string
	Step      model.Step
	Answers   model.AnswerSet
	Questions map[string]model.IssuedQuestion // By rewrite id; used to label list answers
	Skeleton  string                          // Ruleset skeleton; empty falls back to InputType
	InputType string
}

// Prompt is the rendered pair
type Prompt struct {
	System string
	User   string
}

// Build renders the prompt for in.Step
func Build(in Input) (Prompt, error) {
	switch in.Step {
	case model.StepEvaluate:
		if len(in.Criteria) == 0 {
			return Prompt{}, ErrNoCriteria
		}
		return Prompt{System: system(in.Advice), User: evaluateUser(in)}, nil
	case model.StepRewrite:
		return Prompt{System: system(in.Advice), User: rewriteUser(in)}, nil
	default:
		return Prompt{}, fmt.Errorf("%w: %d", ErrUnknownStep, int(in.Step))
	}
}

func system(advice []string) string {
	var b strings.Builder
	b.WriteString(baseSystem)
	if len(advice) > 0 {
		b.WriteString("\n\nHouse style:\n")
		for _, a := range advice {
			a = strings.TrimSpace(a)
			if a == "" {
				continue
			}
			fmt.Fprintf(&b, "- %s\n", a)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func evaluateUser(in Input) string {
	names := model.CriterionNames(in.Criteria)

	var b strings.Builder
	b.WriteString("Evaluate the technical note below against each of these criteria:\n")
	for _, n := range names {
		fmt.Fprintf(&b, "- %s\n", n)
	}

	b.WriteString("\n")
	writeNote(&b, in.Text)

	b.WriteString("\nOutput format:\n")
	b.WriteString(`Return one JSON object with a single key "evaluation".` + "\n")
	fmt.Fprintf(&b, "The keys of \"evaluation\" must be exactly: %s. Do not add, rename or omit keys.\n", quoteList(names))
	b.WriteString(`Each value is an object {"passed": true|false, "justification": "<one sentence>", "question": "<only when passed is false>"}.` + "\n")
	b.WriteString(`When passed is false, "question" asks the author for the missing information needed to pass.` + "\n")
	b.WriteString(`You may add a top-level "suggestions" array of {"original": "<exact substring of the note>", "suggestion": "<replacement>"}.` + "\n")
	b.WriteString("Do not wrap the JSON in markdown code fences.")
	return b.String()
}

func rewriteUser(in Input) string {
	var b strings.Builder
	b.WriteString("Rewrite the technical note below so that it would pass every criterion, using the author's answers to the review questions.\n\n")
	writeNote(&b, in.Text)

	b.WriteString("\nAuthor answers:\n")
	writeAnswers(&b, in)

	b.WriteString("\nKeep part numbers, error codes, model names and other technical spellings exactly as written.\n")
	b.WriteString("Do not invent facts that are not in the note or the answers.\n")
	b.WriteString("\nFollow this structure for the rewrite:\n")
	b.WriteString(skeletonFor(in.Skeleton, in.InputType))
	b.WriteString("\n\nOutput format:\n")
	b.WriteString(`Return one JSON object {"rewrite": "<improved note>"} and nothing else. Escape newlines as \n.` + "\n")
	b.WriteString("Do not wrap the JSON in markdown code fences.")
	return b.String()
}

func writeNote(b *strings.Builder, text string) {
	b.WriteString(noteOpen)
	b.WriteString("\n")
	b.WriteString(text)
	b.WriteString("\n")
	b.WriteString(noteClose)
	b.WriteString("\n")
}

func writeAnswers(b *strings.Builder, in Input) {
	answers := in.Answers.Compact()
	if answers.Empty() {
		b.WriteString("(none)\n")
		return
	}
	switch answers.Format {
	case model.AnswerFormatList:
		for i, a := range answers.List {
			fmt.Fprintf(b, "%d. (%s) ", i+1, a.RewriteID)
			q, ok := in.Questions[a.RewriteID]
			if ok && q.Question != "" {
				fmt.Fprintf(b, "[%s] Q: %s\n   A: %s\n", q.DisplayName, q.Question, a.Answer)
				continue
			}
			fmt.Fprintf(b, "%s\n", a.Answer)
		}
	case model.AnswerFormatLegacy:
		keys := make([]string, 0, len(answers.Legacy))
		for k := range answers.Legacy {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(b, "- %s: %s\n", k, answers.Legacy[k])
		}
	}
}

func quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = `"` + n + `"`
	}
	return strings.Join(quoted, ", ")
}
