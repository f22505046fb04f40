package model

// CorrelationContext threads one evaluation to its later rewrite.
// UserInputID and EvaluationID stay nil until the background write
// completes; callers must tolerate that.
type CorrelationContext struct {
	RewriteUUID  string `json:"rewriteUuid"`  // Batch id for one evaluate call
	ReviewID     string `json:"reviewId"`     // Coarser, session-local grouping
	UserInputID  *int64 `json:"userInputId"`  // Persisted USER_INPUTS row id
	EvaluationID *int64 `json:"evaluationId"` // Persisted LLM_EVALUATIONS row id
}

// IssuedQuestion is the question raised for one failed criterion
type IssuedQuestion struct {
	RewriteID   string `json:"rewriteId"`
	RewriteUUID string `json:"rewriteUuid"`
	Criterion   string `json:"criterion"`
	DisplayName string `json:"displayName"`
	Question    string `json:"question"`
	PromptID    *int64 `json:"promptId,omitempty"` // Set once read back from the store
}

// LinkedAnswer is an answer whose rewrite id resolved to an issued question
type LinkedAnswer struct {
	Answer   RewriteAnswer  `json:"answer"`
	Question IssuedQuestion `json:"question"`
}
