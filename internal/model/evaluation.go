package model

import "fmt"

// Step selects between the evaluation and rewrite phases
type Step int

const (
	StepEvaluate Step = 1
	StepRewrite  Step = 2
)

// String returns the step name used in logs and metric labels
func (s Step) String() string {
	switch s {
	case StepEvaluate:
		return "evaluate"
	case StepRewrite:
		return "rewrite"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// Valid reports whether s is a known step
func (s Step) Valid() bool {
	return s == StepEvaluate || s == StepRewrite
}

// CriterionResult is the model's verdict on one criterion
type CriterionResult struct {
	Passed        bool   `json:"passed"`
	Justification string `json:"justification"`
	Question      string `json:"question,omitempty"`  // Only for failed criteria
	RewriteID     string `json:"rewriteId,omitempty"` // Issued per failed criterion
	DisplayName   string `json:"displayName"`
}

// Evaluation maps criterion name to its result.
// Keys are always a subset of the criteria given to the prompt.
type Evaluation map[string]CriterionResult

// PassedCount returns the number of passing criteria
func (e Evaluation) PassedCount() int {
	count := 0
	for _, r := range e {
		if r.Passed {
			count++
		}
	}
	return count
}

// Failed returns failed criterion names in the order of the given criteria
func (e Evaluation) Failed(criteria []Criterion) []string {
	var failed []string
	for _, c := range criteria {
		if r, ok := e[c.Name]; ok && !r.Passed {
			failed = append(failed, c.Name)
		}
	}
	return failed
}

// SessionRef ties a request to the case the note belongs to.
// All fields are optional.
type SessionRef struct {
	AppSessionID string `json:"appSessionId,omitempty"`
	CaseID       string `json:"caseId,omitempty"`
	LineItemID   string `json:"lineItemId,omitempty"`
	InputField   string `json:"inputField,omitempty"`
}

// EvaluationRequest is a single evaluate or rewrite call
type EvaluationRequest struct {
	Text        string
	RulesetName string
	Step        Step
	Answers     AnswerSet
	RewriteUUID string
	UserInputID *int64
	Session     SessionRef
}
