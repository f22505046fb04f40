// Package persist writes evaluation and rewrite artifacts in the background.
//
// Callers hand over a record and return immediately. Every write site
// catches its own failure, logs it and counts it; nothing is retried and
// nothing reaches the caller.
package persist

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/textio/internal/metrics"
	"github.com/ppiankov/textio/internal/model"
	"github.com/ppiankov/textio/internal/store"
	"github.com/ppiankov/textio/internal/worker"
)

// detachedTimeout bounds a job that ran outside the queue
const detachedTimeout = 30 * time.Second

// Writer is the subset of the repository the coordinator writes through
type Writer interface {
	InsertUserInput(ctx context.Context, in store.UserInput) (int64, error)
	InsertPrompt(ctx context.Context, userInputID *int64, q model.IssuedQuestion) (int64, error)
	InsertEvaluation(ctx context.Context, e store.EvaluationRow) (int64, error)
	InsertAnswer(ctx context.Context, a store.AnswerRow) (int64, error)
	UpsertInputState(ctx context.Context, s store.InputState) error
	QuestionByRewriteID(ctx context.Context, id string) (*model.IssuedQuestion, error)
}

// Coordinator schedules background writes
type Coordinator struct {
	writer   Writer
	queue    *worker.Queue
	spool    *Spool
	logger   *zap.Logger
	metrics  *metrics.Metrics
	detached sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewCoordinator creates a coordinator; spool may be nil
func NewCoordinator(writer Writer, queue *worker.Queue, spool *Spool, logger *zap.Logger, m *metrics.Metrics) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		writer:  writer,
		queue:   queue,
		spool:   spool,
		logger:  logger,
		metrics: m,
	}
}

// RecordEvaluation schedules the evaluate write sequence
func (c *Coordinator) RecordEvaluation(rec EvaluationRecord) {
	c.schedule(job{
		ID:         newJobID(),
		Kind:       kindEvaluation,
		CreatedAt:  time.Now().UTC(),
		Evaluation: &rec,
	})
}

// RecordRewrite schedules the rewrite write sequence
func (c *Coordinator) RecordRewrite(rec RewriteRecord) {
	c.schedule(job{
		ID:        newJobID(),
		Kind:      kindRewrite,
		CreatedAt: time.Now().UTC(),
		Rewrite:   &rec,
	})
}

func newJobID() string {
	return uuid.NewString()
}

func (c *Coordinator) schedule(j job) {
	if err := c.spool.Put(j); err != nil {
		c.logger.Warn("spool write failed, job is memory only", zap.String("job", j.ID), zap.Error(err))
	}

	c.dispatch(j)
}

// dispatch queues j, or runs it on its own goroutine when the queue is full.
// After Close the job is refused and stays in the spool.
func (c *Coordinator) dispatch(j job) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		c.logger.Warn("persist coordinator closed, job left in spool", zap.String("job", j.ID), zap.String("kind", j.Kind))
		return
	}

	if c.queue.Submit(j.Kind, func(ctx context.Context) { c.run(ctx, j) }) {
		return
	}

	c.logger.Warn("persist queue full, running detached", zap.String("job", j.ID), zap.String("kind", j.Kind))
	c.detached.Add(1)
	go func() {
		defer c.detached.Done()
		ctx, cancel := context.WithTimeout(context.Background(), detachedTimeout)
		defer cancel()
		c.run(ctx, j)
	}()
}

func (c *Coordinator) run(ctx context.Context, j job) {
	switch {
	case j.Kind == kindEvaluation && j.Evaluation != nil:
		c.writeEvaluation(ctx, *j.Evaluation)
	case j.Kind == kindRewrite && j.Rewrite != nil:
		c.writeRewrite(ctx, *j.Rewrite)
	default:
		c.logger.Error("unknown persist job", zap.String("job", j.ID), zap.String("kind", j.Kind))
	}

	if err := c.spool.Remove(j.ID); err != nil {
		c.logger.Warn("spool cleanup failed", zap.String("job", j.ID), zap.Error(err))
	}
}

// observe counts one write site and logs its failure
func (c *Coordinator) observe(kind string, err error, fields ...zap.Field) {
	c.metrics.ObservePersist(kind, err)
	if err != nil {
		c.logger.Error("persist write failed", append(fields, zap.String("kind", kind), zap.Error(err))...)
	}
}

func (c *Coordinator) writeEvaluation(ctx context.Context, rec EvaluationRecord) {
	uuidField := zap.String("rewrite_uuid", rec.Context.RewriteUUID)

	var userInputID *int64
	id, err := c.writer.InsertUserInput(ctx, store.UserInput{
		RewriteUUID: rec.Context.RewriteUUID,
		ReviewID:    rec.Context.ReviewID,
		Ruleset:     rec.Ruleset,
		Text:        rec.Text,
		Session:     rec.Session,
	})
	c.observe("user_input", err, uuidField)
	if err == nil {
		userInputID = &id
	}

	for _, q := range rec.Questions {
		q.RewriteUUID = rec.Context.RewriteUUID
		_, err := c.writer.InsertPrompt(ctx, userInputID, q)
		c.observe("prompt", err, uuidField, zap.String("rewrite_id", q.RewriteID))
	}

	score := rec.Score
	_, err = c.writer.InsertEvaluation(ctx, store.EvaluationRow{
		UserInputID: userInputID,
		RewriteUUID: rec.Context.RewriteUUID,
		Step:        model.StepEvaluate,
		Score:       &score,
		Evaluation:  rec.Evaluation,
	})
	c.observe("evaluation", err, uuidField)
}

func (c *Coordinator) writeRewrite(ctx context.Context, rec RewriteRecord) {
	uuidField := zap.String("rewrite_uuid", rec.RewriteUUID)

	for _, l := range rec.Linked {
		promptID := l.Question.PromptID
		if promptID == nil {
			// The evaluate job may have written the prompt row since the link was made
			if q, err := c.writer.QuestionByRewriteID(ctx, l.Answer.RewriteID); err == nil {
				promptID = q.PromptID
			} else if !errors.Is(err, store.ErrNotFound) {
				c.logger.Warn("prompt id lookup", uuidField, zap.String("rewrite_id", l.Answer.RewriteID), zap.Error(err))
			}
		}

		rewriteUUID := l.Question.RewriteUUID
		if rewriteUUID == "" {
			rewriteUUID = rec.RewriteUUID
		}
		_, err := c.writer.InsertAnswer(ctx, store.AnswerRow{
			PromptID:    promptID,
			RewriteID:   l.Answer.RewriteID,
			RewriteUUID: rewriteUUID,
			Answer:      l.Answer.Answer,
		})
		c.observe("answer", err, uuidField, zap.String("rewrite_id", l.Answer.RewriteID))
	}

	evalID, err := c.writer.InsertEvaluation(ctx, store.EvaluationRow{
		UserInputID: rec.UserInputID,
		RewriteUUID: rec.RewriteUUID,
		Step:        model.StepRewrite,
		Rewrite:     rec.Rewrite,
	})
	c.observe("rewrite", err, uuidField)

	if model.IsRewriteError(rec.Rewrite) || rec.Session.AppSessionID == "" || rec.Session.InputField == "" {
		return
	}
	state := store.InputState{
		AppSessionID: rec.Session.AppSessionID,
		InputField:   rec.Session.InputField,
		LineItemID:   rec.Session.LineItemID,
		Value:        rec.Rewrite,
	}
	if err == nil {
		state.EvaluationID = &evalID
	}
	c.observe("input_state", c.writer.UpsertInputState(ctx, state), uuidField)
}

// Replay schedules jobs a previous process spooled but never finished
func (c *Coordinator) Replay() (int, error) {
	jobs, bad, err := c.spool.Pending()
	if err != nil {
		return 0, err
	}
	for _, name := range bad {
		c.logger.Warn("skipping unreadable spool file", zap.String("file", name))
	}
	for _, j := range jobs {
		c.dispatch(j)
	}
	if len(jobs) > 0 {
		c.logger.Info("replayed spooled persist jobs", zap.Int("count", len(jobs)))
	}
	return len(jobs), nil
}

// Close refuses new jobs, drains the queue and waits for detached jobs
// until ctx ends
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	qerr := c.queue.Close(ctx)

	done := make(chan struct{})
	go func() {
		c.detached.Wait()
		close(done)
	}()
	select {
	case <-done:
		return qerr
	case <-ctx.Done():
		return ctx.Err()
	}
}
