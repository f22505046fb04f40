package model

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestAnswerSet_UnmarshalList(t *testing.T) {
	var set AnswerSet
	data := `[{"rewriteId":"a","answer":"one"},{"rewriteId":"b","answerText":"two"}]`
	if err := json.Unmarshal([]byte(data), &set); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if set.Format != AnswerFormatList {
		t.Fatalf("expected list format, got %v", set.Format)
	}
	if len(set.List) != 2 {
		t.Fatalf("expected 2 answers, got %d", len(set.List))
	}
	if set.List[1].Answer != "two" {
		t.Errorf("expected answerText alias to be read, got %q", set.List[1].Answer)
	}
}

func TestAnswerSet_UnmarshalLegacy(t *testing.T) {
	var set AnswerSet
	if err := json.Unmarshal([]byte(`{"is_concise":"yes","clearly_states_problem":""}`), &set); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if set.Format != AnswerFormatLegacy {
		t.Fatalf("expected legacy format, got %v", set.Format)
	}
	if set.Legacy["is_concise"] != "yes" {
		t.Errorf("unexpected legacy value: %v", set.Legacy)
	}

	compact := set.Compact()
	if compact.Len() != 1 {
		t.Errorf("expected empty legacy answer to be dropped, got %v", compact.Legacy)
	}
}

func TestAnswerSet_UnmarshalRejectsScalars(t *testing.T) {
	var set AnswerSet
	if err := json.Unmarshal([]byte(`"just text"`), &set); err == nil {
		t.Fatal("expected error for scalar answers")
	}
}

func TestAnswerSet_Null(t *testing.T) {
	var req struct {
		Answers AnswerSet `json:"answers"`
	}
	if err := json.Unmarshal([]byte(`{"answers":null}`), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !req.Answers.Empty() || req.Answers.Format != AnswerFormatNone {
		t.Errorf("expected empty set, got %+v", req.Answers)
	}
}

func TestAnswerSet_CompactDropsEmptyBodies(t *testing.T) {
	set := NewAnswerList(
		RewriteAnswer{RewriteID: "a", Answer: "kept"},
		RewriteAnswer{RewriteID: "b", Answer: "   "},
		RewriteAnswer{RewriteID: "", Answer: "no id"},
	)

	compact := set.Compact()
	if compact.Len() != 1 || compact.List[0].RewriteID != "a" {
		t.Errorf("unexpected compact result: %+v", compact.List)
	}
}

func TestSuggestion_RoundTripKeepsUnknownFields(t *testing.T) {
	var s Suggestion
	in := `{"original":"A cat","suggestion":"The cat","reason":"article","start":99}`
	if err := json.Unmarshal([]byte(in), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if s.Start != nil {
		t.Error("caller-supplied start must be ignored")
	}

	out, err := json.Marshal(s.At(0, 5))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got := string(out)
	for _, want := range []string{`"reason":"article"`, `"start":0`, `"end":5`, `"suggestion":"The cat"`} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %s in %s", want, got)
		}
	}
}

func TestSuggestion_UnlocatedMarshalsNull(t *testing.T) {
	out, err := json.Marshal(Suggestion{Original: "x"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(out), `"start":null`) || !strings.Contains(string(out), `"end":null`) {
		t.Errorf("expected null offsets, got %s", out)
	}
}

func TestEvaluation_Failed(t *testing.T) {
	criteria := []Criterion{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	eval := Evaluation{
		"c": {Passed: false},
		"a": {Passed: false},
		"b": {Passed: true},
	}

	failed := eval.Failed(criteria)
	if len(failed) != 2 || failed[0] != "a" || failed[1] != "c" {
		t.Errorf("expected [a c] in criteria order, got %v", failed)
	}
	if eval.PassedCount() != 1 {
		t.Errorf("expected 1 passed, got %d", eval.PassedCount())
	}
}

func TestIsRewriteError(t *testing.T) {
	if !IsRewriteError("Error: model unavailable") {
		t.Error("expected sentinel to be detected")
	}
	if IsRewriteError("Errors were found in the pump") {
		t.Error("plain text must not be treated as a sentinel")
	}
}
