// Package metrics exports service telemetry to Prometheus.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "textio"

// Metrics holds the collectors shared across the pipeline
type Metrics struct {
	resolveOutcomes   *prometheus.CounterVec
	modelAttempts     *prometheus.CounterVec
	modelLatency      *prometheus.HistogramVec
	persistWrites     *prometheus.CounterVec
	correlationMisses prometheus.Counter
	queueDepth        prometheus.Gauge
	httpDuration      *prometheus.HistogramVec
}

// New registers all collectors on reg
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		resolveOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolve_outcomes_total",
			Help:      "Model responses by step and the parse tier that accepted them.",
		}, []string{"step", "tier"}),
		modelAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_attempts_total",
			Help:      "Model calls by provider and outcome.",
		}, []string{"provider", "outcome"}),
		modelLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_call_duration_seconds",
			Help:      "Latency of single model calls.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		}, []string{"provider"}),
		persistWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_writes_total",
			Help:      "Background warehouse writes by kind and status.",
		}, []string{"kind", "status"}),
		correlationMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "correlation_misses_total",
			Help:      "Rewrite answers skipped because their rewrite id was unknown.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "persist_queue_depth",
			Help:      "Jobs waiting in the persistence queue.",
		}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP handler latency by route and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "code"}),
	}

	collectors := []prometheus.Collector{
		m.resolveOutcomes, m.modelAttempts, m.modelLatency, m.persistWrites,
		m.correlationMisses, m.queueDepth, m.httpDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return m, nil
}

// MustNew is New that panics on registration failure
func MustNew(reg prometheus.Registerer) *Metrics {
	m, err := New(reg)
	if err != nil {
		panic(err)
	}
	return m
}

// ObserveResolve counts one resolver outcome
func (m *Metrics) ObserveResolve(step, tier string) {
	if m == nil {
		return
	}
	m.resolveOutcomes.WithLabelValues(step, tier).Inc()
}

// ObserveModelAttempt counts one model call and its latency
func (m *Metrics) ObserveModelAttempt(provider string, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.modelAttempts.WithLabelValues(provider, outcome).Inc()
	m.modelLatency.WithLabelValues(provider).Observe(d.Seconds())
}

// ObservePersist counts one warehouse write
func (m *Metrics) ObservePersist(kind string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.persistWrites.WithLabelValues(kind, status).Inc()
}

// CorrelationMiss counts one skipped answer
func (m *Metrics) CorrelationMiss() {
	if m == nil {
		return
	}
	m.correlationMisses.Inc()
}

// SetQueueDepth reports the current persistence backlog
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// ObserveHTTP records one handled request
func (m *Metrics) ObserveHTTP(route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(route, strconv.Itoa(code)).Observe(d.Seconds())
}
