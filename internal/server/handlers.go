package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/textio/internal/grammar"
	"github.com/ppiankov/textio/internal/model"
	"github.com/ppiankov/textio/internal/pipeline"
	"github.com/ppiankov/textio/internal/store"
)

const maxBodyBytes = 1 << 20

type handler struct {
	svc     Service
	grammar grammar.Checker
	logger  *zap.Logger
}

// NoteRequest is the body of evaluate and rewrite calls
type NoteRequest struct {
	Text        string          `json:"text"`
	RulesetName string          `json:"rulesetName"`
	Step        *int            `json:"step,omitempty"`
	Answers     model.AnswerSet `json:"answers"`
	RewriteUUID string          `json:"rewriteUuid,omitempty"`
	UserInputID *int64          `json:"userInputId,omitempty"`
	model.SessionRef
}

func (n NoteRequest) toModel(step model.Step) model.EvaluationRequest {
	return model.EvaluationRequest{
		Text:        n.Text,
		RulesetName: n.RulesetName,
		Step:        step,
		Answers:     n.Answers,
		RewriteUUID: n.RewriteUUID,
		UserInputID: n.UserInputID,
		Session:     n.SessionRef,
	}
}

// RealignRequest is the body of the realign endpoints
type RealignRequest struct {
	Text        string             `json:"text"`
	Suggestions []model.Suggestion `json:"suggestions"`
}

// CheckRequest is the body of the grammar check endpoint
type CheckRequest struct {
	Text string `json:"text"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// fail maps pipeline errors onto status codes
func (h *handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pipeline.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, pipeline.ErrNoStore):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		h.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// llm handles POST /llm; the step comes from the body, else from whether answers were sent
func (h *handler) llm(w http.ResponseWriter, r *http.Request) {
	var req NoteRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	step := model.StepEvaluate
	if !req.Answers.Empty() {
		step = model.StepRewrite
	}
	if req.Step != nil {
		step = model.Step(*req.Step)
		if !step.Valid() {
			writeError(w, http.StatusBadRequest, "step must be 1 or 2")
			return
		}
	}
	h.run(w, r, req, step)
}

// evaluate handles POST /api/evaluate
func (h *handler) evaluate(w http.ResponseWriter, r *http.Request) {
	var req NoteRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.run(w, r, req, model.StepEvaluate)
}

// rewrite handles POST /api/rewrite
func (h *handler) rewrite(w http.ResponseWriter, r *http.Request) {
	var req NoteRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.run(w, r, req, model.StepRewrite)
}

func (h *handler) run(w http.ResponseWriter, r *http.Request, req NoteRequest, step model.Step) {
	var (
		result any
		err    error
	)
	if step == model.StepRewrite {
		result, err = h.svc.Rewrite(r.Context(), req.toModel(step))
	} else {
		result, err = h.svc.Evaluate(r.Context(), req.toModel(step))
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

func (h *handler) realign(inline bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RealignRequest
		if err := decode(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		suggestions := h.svc.Realign(req.Text, req.Suggestions, inline)
		if suggestions == nil {
			suggestions = []model.Suggestion{}
		}
		writeJSON(w, http.StatusOK, suggestions)
	}
}

// score handles POST /api/score
func (h *handler) score(w http.ResponseWriter, r *http.Request) {
	var req pipeline.ScoreRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.svc.Score(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// check handles POST /check. Checker failures answer with an empty list.
func (h *handler) check(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if h.grammar == nil || strings.TrimSpace(req.Text) == "" {
		writeJSON(w, http.StatusOK, []grammar.Match{})
		return
	}
	writeJSON(w, http.StatusOK, grammar.CheckOrEmpty(r.Context(), h.grammar, req.Text, h.logger))
}

// history handles GET /api/history
func (h *handler) history(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := store.HistoryQuery{AppSessionID: query.Get("appSessionId")}

	if raw := query.Get("userInputId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "userInputId must be an integer")
			return
		}
		q.UserInputID = &id
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		q.Limit = limit
	}

	entries, err := h.svc.History(r.Context(), q)
	if err != nil {
		h.fail(w, err)
		return
	}
	if entries == nil {
		entries = []store.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": entries})
}

// inputState handles GET /api/input-state
func (h *handler) inputState(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	state, err := h.svc.InputState(r.Context(),
		query.Get("appSessionId"), query.Get("inputField"), query.Get("lineItemId"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}
