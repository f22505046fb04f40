package model

import (
	"encoding/json"
	"fmt"
)

// Suggestion is a proposed edit of a substring of the note.
// Start and End are derived by realignment and are nil when the
// original text cannot be located. Fields the caller sent that are
// not modelled here survive a decode/encode round trip.
type Suggestion struct {
	Original    string
	Replacement string
	Start       *int
	End         *int

	extra map[string]json.RawMessage
}

// At returns a copy of s located at [start, end)
func (s Suggestion) At(start, end int) Suggestion {
	s.Start = &start
	s.End = &end
	return s
}

// Unlocated returns a copy of s with both offsets cleared
func (s Suggestion) Unlocated() Suggestion {
	s.Start = nil
	s.End = nil
	return s
}

// Located reports whether both offsets are set
func (s Suggestion) Located() bool {
	return s.Start != nil && s.End != nil
}

// UnmarshalJSON reads original/suggestion and keeps every other field
func (s *Suggestion) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("suggestion: %w", err)
	}

	*s = Suggestion{}
	if v, ok := raw["original"]; ok {
		if err := json.Unmarshal(v, &s.Original); err != nil {
			return fmt.Errorf("suggestion original: %w", err)
		}
		delete(raw, "original")
	}
	for _, key := range []string{"suggestion", "replacement"} {
		v, ok := raw[key]
		if !ok {
			continue
		}
		if s.Replacement == "" {
			_ = json.Unmarshal(v, &s.Replacement)
		}
		delete(raw, key)
	}
	// Offsets are always recomputed
	delete(raw, "start")
	delete(raw, "end")

	if len(raw) > 0 {
		s.extra = raw
	}
	return nil
}

// MarshalJSON writes the modelled fields over any preserved ones
func (s Suggestion) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.extra)+4)
	for k, v := range s.extra {
		out[k] = v
	}
	out["original"] = s.Original
	if s.Replacement != "" {
		out["suggestion"] = s.Replacement
	}
	out["start"] = s.Start
	out["end"] = s.End
	return json.Marshal(out)
}
