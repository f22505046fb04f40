package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/ppiankov/textio/internal/metrics"
	"go.uber.org/zap"
)

// Limiter paces outbound calls per key
type Limiter interface {
	Wait(ctx context.Context, key string) error
}

// TransportError reports a model call that failed on every attempt
type TransportError struct {
	Provider string
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: model call failed after %d attempt(s): %v", e.Provider, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// completeSleepFunc allows tests to skip the retry backoff
var completeSleepFunc = func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// CompleterOptions tunes retry and pacing
type CompleterOptions struct {
	Retries int           // Extra attempts after the first
	Backoff time.Duration // Fixed wait between attempts
	Limiter Limiter       // Optional
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// Completer wraps a Provider with pacing and a bounded retry
type Completer struct {
	provider Provider
	opts     CompleterOptions
	logger   *zap.Logger
}

// NewCompleter creates a completer for provider
func NewCompleter(provider Provider, opts CompleterOptions) *Completer {
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Completer{provider: provider, opts: opts, logger: logger}
}

// Provider returns the wrapped provider
func (c *Completer) Provider() Provider {
	return c.provider
}

// Complete calls the provider, retrying empty or failed responses.
// Every exhausted call is returned as *TransportError.
func (c *Completer) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	name := c.provider.Name()
	attempts := c.opts.Retries + 1

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := completeSleepFunc(ctx, c.opts.Backoff); err != nil {
				return nil, &TransportError{Provider: name, Attempts: attempt - 1, Err: lastErr}
			}
		}

		if c.opts.Limiter != nil {
			if err := c.opts.Limiter.Wait(ctx, name); err != nil {
				return nil, &TransportError{Provider: name, Attempts: attempt - 1, Err: err}
			}
		}

		start := time.Now()
		resp, err := c.provider.Complete(ctx, req)
		c.opts.Metrics.ObserveModelAttempt(name, err, time.Since(start))
		if err == nil {
			return resp, nil
		}

		lastErr = err
		c.logger.Warn("model call failed",
			zap.String("provider", name),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if ctx.Err() != nil {
			return nil, &TransportError{Provider: name, Attempts: attempt, Err: lastErr}
		}
	}

	return nil, &TransportError{Provider: name, Attempts: attempts, Err: lastErr}
}
