// Package server exposes the note pipeline over HTTP.
package server

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ppiankov/textio/internal/grammar"
	"github.com/ppiankov/textio/internal/metrics"
	"github.com/ppiankov/textio/internal/model"
	"github.com/ppiankov/textio/internal/pipeline"
	"github.com/ppiankov/textio/internal/score"
	"github.com/ppiankov/textio/internal/store"
	"github.com/ppiankov/textio/internal/worker"
)

// Service is what the handlers need from the pipeline
type Service interface {
	Evaluate(ctx context.Context, req model.EvaluationRequest) (*pipeline.EvaluateResult, error)
	Rewrite(ctx context.Context, req model.EvaluationRequest) (*model.RewriteResult, error)
	Score(ctx context.Context, req pipeline.ScoreRequest) (*score.WeightedScore, error)
	Realign(text string, suggestions []model.Suggestion, inline bool) []model.Suggestion
	History(ctx context.Context, q store.HistoryQuery) ([]store.HistoryEntry, error)
	InputState(ctx context.Context, appSessionID, inputField, lineItemID string) (*store.InputState, error)
}

// Container holds all dependencies for the router
type Container struct {
	Service     Service
	Grammar     grammar.Checker // nil answers every check with no matches
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer // nil hides /metrics
	Logger      *zap.Logger
	APIKeys     []string
	KeyLimiter  *worker.Limiter // nil disables per-key limits
	CORSOrigins string
}

// NewRouter creates the HTTP router with all endpoints
func NewRouter(c *Container) http.Handler {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handler{svc: c.Service, grammar: c.Grammar, logger: logger}

	r := mux.NewRouter()
	r.Use(recoverMiddleware(logger))
	r.Use(corsMiddleware(c.CORSOrigins))
	r.Use(observeMiddleware(logger, c.Metrics))

	r.HandleFunc("/health", h.health).Methods("GET")
	if c.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(c.Gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}

	// Note pipeline
	r.HandleFunc("/llm", h.llm).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/evaluate", h.evaluate).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/rewrite", h.rewrite).Methods("POST", "OPTIONS")
	r.HandleFunc("/llm-realign", h.realign(false)).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/realign/inline", h.realign(true)).Methods("POST", "OPTIONS")
	r.HandleFunc("/check", h.check).Methods("POST", "OPTIONS")

	// Persisted state
	r.HandleFunc("/api/history", h.history).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/input-state", h.inputState).Methods("GET", "OPTIONS")

	// Scoring requires an API key
	scoring := r.NewRoute().Subrouter()
	scoring.Use(newAPIKeyMiddleware(c.APIKeys, c.KeyLimiter, logger).Require)
	scoring.HandleFunc("/api/score", h.score).Methods("POST", "OPTIONS")

	return r
}
