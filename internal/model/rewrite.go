package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// RewriteErrorPrefix marks a rewrite value that carries an error message
// instead of improved text
const RewriteErrorPrefix = "Error: "

// RewriteAnswer is the user's answer to one issued question
type RewriteAnswer struct {
	RewriteID string `json:"rewriteId"`
	Answer    string `json:"answer"`
}

// UnmarshalJSON accepts both "answer" and the older "answerText" spelling
func (a *RewriteAnswer) UnmarshalJSON(data []byte) error {
	var raw struct {
		RewriteID  string  `json:"rewriteId"`
		Answer     *string `json:"answer"`
		AnswerText *string `json:"answerText"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	a.RewriteID = raw.RewriteID
	switch {
	case raw.Answer != nil:
		a.Answer = *raw.Answer
	case raw.AnswerText != nil:
		a.Answer = *raw.AnswerText
	default:
		a.Answer = ""
	}
	return nil
}

// AnswerFormat discriminates the two accepted answer shapes
type AnswerFormat int

const (
	AnswerFormatNone   AnswerFormat = iota
	AnswerFormatList                // [{rewriteId, answer}]
	AnswerFormatLegacy              // {criterionName: answer}
)

// AnswerSet holds either a list of rewrite answers or a legacy
// criterion-name to answer map. Format says which one is set.
type AnswerSet struct {
	Format AnswerFormat
	List   []RewriteAnswer
	Legacy map[string]string
}

// NewAnswerList builds a list-form answer set
func NewAnswerList(answers ...RewriteAnswer) AnswerSet {
	return AnswerSet{Format: AnswerFormatList, List: answers}
}

// NewLegacyAnswers builds a legacy map-form answer set
func NewLegacyAnswers(answers map[string]string) AnswerSet {
	return AnswerSet{Format: AnswerFormatLegacy, Legacy: answers}
}

// UnmarshalJSON decides the format from the first significant byte
func (a *AnswerSet) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*a = AnswerSet{}
		return nil
	}

	switch trimmed[0] {
	case '[':
		var list []RewriteAnswer
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return fmt.Errorf("answers list: %w", err)
		}
		*a = NewAnswerList(list...)
	case '{':
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return fmt.Errorf("answers map: %w", err)
		}
		legacy := make(map[string]string, len(raw))
		for k, v := range raw {
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				// Non-string answers are stringified rather than rejected
				s = string(v)
			}
			legacy[k] = s
		}
		*a = NewLegacyAnswers(legacy)
	default:
		return fmt.Errorf("answers must be a list or an object, got %q", string(trimmed[:1]))
	}
	return nil
}

// MarshalJSON writes the set in its own format
func (a AnswerSet) MarshalJSON() ([]byte, error) {
	switch a.Format {
	case AnswerFormatList:
		if a.List == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(a.List)
	case AnswerFormatLegacy:
		return json.Marshal(a.Legacy)
	default:
		return []byte("null"), nil
	}
}

// Len returns the number of answers in the set
func (a AnswerSet) Len() int {
	switch a.Format {
	case AnswerFormatList:
		return len(a.List)
	case AnswerFormatLegacy:
		return len(a.Legacy)
	default:
		return 0
	}
}

// Empty reports whether the set carries no answers
func (a AnswerSet) Empty() bool {
	return a.Len() == 0
}

// Compact drops answers with an empty body, and list answers without an id
func (a AnswerSet) Compact() AnswerSet {
	switch a.Format {
	case AnswerFormatList:
		kept := make([]RewriteAnswer, 0, len(a.List))
		for _, ans := range a.List {
			if strings.TrimSpace(ans.Answer) == "" || strings.TrimSpace(ans.RewriteID) == "" {
				continue
			}
			kept = append(kept, ans)
		}
		return NewAnswerList(kept...)
	case AnswerFormatLegacy:
		kept := make(map[string]string, len(a.Legacy))
		for k, v := range a.Legacy {
			if strings.TrimSpace(v) == "" {
				continue
			}
			kept[k] = v
		}
		return NewLegacyAnswers(kept)
	default:
		return a
	}
}

// RewriteResult is the improved note
type RewriteResult struct {
	Rewrite string       `json:"rewrite"`
	Changes []Suggestion `json:"changes,omitempty"`
}

// IsError reports whether the rewrite is an error sentinel
func (r RewriteResult) IsError() bool {
	return IsRewriteError(r.Rewrite)
}

// IsRewriteError reports whether s is an error sentinel rewrite value
func IsRewriteError(s string) bool {
	return strings.HasPrefix(s, RewriteErrorPrefix)
}
