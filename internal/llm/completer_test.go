package llm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ppiankov/textio/internal/metrics"
)

// mockProvider returns queued responses in order
type mockProvider struct {
	responses []mockResponse
	calls     int32
}

type mockResponse struct {
	content string
	err     error
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) IsAvailable(ctx context.Context) bool { return true }

func (m *mockProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	n := int(atomic.AddInt32(&m.calls, 1)) - 1
	if n >= len(m.responses) {
		n = len(m.responses) - 1
	}
	r := m.responses[n]
	if r.err != nil {
		return nil, r.err
	}
	return &CompletionResponse{Content: r.content, Model: "mock"}, nil
}

type countingLimiter struct{ waits int32 }

func (l *countingLimiter) Wait(ctx context.Context, key string) error {
	atomic.AddInt32(&l.waits, 1)
	return nil
}

func noSleep(t *testing.T) *[]time.Duration {
	t.Helper()
	var slept []time.Duration
	orig := completeSleepFunc
	completeSleepFunc = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	t.Cleanup(func() { completeSleepFunc = orig })
	return &slept
}

func TestCompleter_FirstAttemptSucceeds(t *testing.T) {
	slept := noSleep(t)
	provider := &mockProvider{responses: []mockResponse{{content: "ok"}}}
	limiter := &countingLimiter{}

	c := NewCompleter(provider, CompleterOptions{Retries: 1, Backoff: time.Second, Limiter: limiter, Logger: zaptest.NewLogger(t)})
	resp, err := c.Complete(context.Background(), CompletionRequest{UserPrompt: "x"})

	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, int32(1), provider.calls)
	assert.Equal(t, int32(1), limiter.waits)
	assert.Empty(t, *slept)
}

func TestCompleter_EmptyResponseRetriesExactlyOnce(t *testing.T) {
	slept := noSleep(t)
	provider := &mockProvider{responses: []mockResponse{{err: ErrEmptyResponse}, {err: ErrEmptyResponse}, {content: "never"}}}
	reg := prometheus.NewRegistry()

	c := NewCompleter(provider, CompleterOptions{
		Retries: 1,
		Backoff: 2 * time.Second,
		Metrics: metrics.MustNew(reg),
		Logger:  zaptest.NewLogger(t),
	})
	_, err := c.Complete(context.Background(), CompletionRequest{UserPrompt: "x"})

	require.Error(t, err)
	assert.Equal(t, int32(2), provider.calls)
	assert.Equal(t, []time.Duration{2 * time.Second}, *slept)

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 2, te.Attempts)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestCompleter_RetrySucceeds(t *testing.T) {
	noSleep(t)
	provider := &mockProvider{responses: []mockResponse{{err: errors.New("connection reset")}, {content: "second"}}}

	c := NewCompleter(provider, CompleterOptions{Retries: 1})
	resp, err := c.Complete(context.Background(), CompletionRequest{UserPrompt: "x"})

	require.NoError(t, err)
	assert.Equal(t, "second", resp.Content)
}

func TestCompleter_CancelledContextStopsRetry(t *testing.T) {
	noSleep(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	provider := &mockProvider{responses: []mockResponse{{err: context.Canceled}}}
	c := NewCompleter(provider, CompleterOptions{Retries: 3})
	_, err := c.Complete(ctx, CompletionRequest{UserPrompt: "x"})

	require.Error(t, err)
	assert.Equal(t, int32(1), provider.calls)
}

func TestCompleter_NegativeRetriesMeansOneAttempt(t *testing.T) {
	noSleep(t)
	provider := &mockProvider{responses: []mockResponse{{err: errors.New("boom")}}}

	c := NewCompleter(provider, CompleterOptions{Retries: -2})
	_, err := c.Complete(context.Background(), CompletionRequest{UserPrompt: "x"})

	require.Error(t, err)
	assert.Equal(t, int32(1), provider.calls)
}
