package persist

import (
	"time"

	"github.com/ppiankov/textio/internal/model"
)

// EvaluationRecord is everything written after an evaluate call
type EvaluationRecord struct {
	Context    model.CorrelationContext `json:"context"`
	Ruleset    string                   `json:"ruleset"`
	Text       string                   `json:"text"`
	Session    model.SessionRef         `json:"session"`
	Score      int                      `json:"score"`
	Evaluation model.Evaluation         `json:"evaluation"`
	Questions  []model.IssuedQuestion   `json:"questions,omitempty"`
}

// RewriteRecord is everything written after a rewrite call.
// Linked holds only answers whose rewrite id resolved.
type RewriteRecord struct {
	RewriteUUID string               `json:"rewriteUuid"`
	UserInputID *int64               `json:"userInputId,omitempty"`
	Session     model.SessionRef     `json:"session"`
	Linked      []model.LinkedAnswer `json:"linked,omitempty"`
	Rewrite     string               `json:"rewrite"`
}

const (
	kindEvaluation = "evaluation"
	kindRewrite    = "rewrite"
)

// job is the spooled envelope of one record
type job struct {
	ID         string            `json:"id"`
	Kind       string            `json:"kind"`
	CreatedAt  time.Time         `json:"createdAt"`
	Evaluation *EvaluationRecord `json:"evaluation,omitempty"`
	Rewrite    *RewriteRecord    `json:"rewrite,omitempty"`
}
