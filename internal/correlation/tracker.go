// Package correlation issues the ids that tie an evaluation's questions
// to the answers submitted with a later rewrite.
package correlation

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/textio/internal/cache"
	"github.com/ppiankov/textio/internal/metrics"
	"github.com/ppiankov/textio/internal/model"
	"github.com/ppiankov/textio/internal/store"
)

// QuestionStore is the durable copy of issued questions
type QuestionStore interface {
	QuestionByRewriteID(ctx context.Context, id string) (*model.IssuedQuestion, error)
	QuestionsByRewriteUUID(ctx context.Context, rewriteUUID string) ([]model.IssuedQuestion, error)
}

// Tracker issues correlation ids and resolves answers back to questions.
// Registered questions live in a TTL cache so a rewrite arriving before
// the background write still links.
type Tracker struct {
	cache   cache.Cache
	store   QuestionStore
	ttl     time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewTracker creates a tracker; store may be nil
func NewTracker(c cache.Cache, store QuestionStore, ttl time.Duration, logger *zap.Logger, m *metrics.Metrics) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{cache: c, store: store, ttl: ttl, logger: logger, metrics: m}
}

// IssueBatchID returns a new rewriteUuid for one evaluate call
func (t *Tracker) IssueBatchID() string { return uuid.NewString() }

// IssuePerCriterionID returns a new rewriteId for one failed criterion
func (t *Tracker) IssuePerCriterionID() string { return uuid.NewString() }

// IssueReviewID returns a new session-local review id
func (t *Tracker) IssueReviewID() string { return uuid.NewString() }

// NewContext starts a correlation context with fresh ids
func (t *Tracker) NewContext() model.CorrelationContext {
	return model.CorrelationContext{
		RewriteUUID: t.IssueBatchID(),
		ReviewID:    t.IssueReviewID(),
	}
}

func questionKey(rewriteID string) string { return cache.Key("question", rewriteID) }
func batchKey(rewriteUUID string) string  { return cache.Key("batch", rewriteUUID) }

// Register remembers the questions issued under cc
func (t *Tracker) Register(ctx context.Context, cc model.CorrelationContext, questions []model.IssuedQuestion) error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	stamped := make([]model.IssuedQuestion, len(questions))
	for i, q := range questions {
		q.RewriteUUID = cc.RewriteUUID
		stamped[i] = q
		data, err := json.Marshal(q)
		if err != nil {
			keep(err)
			continue
		}
		keep(t.cache.Set(ctx, questionKey(q.RewriteID), data, t.ttl))
	}

	if data, err := json.Marshal(stamped); err == nil {
		keep(t.cache.Set(ctx, batchKey(cc.RewriteUUID), data, t.ttl))
	} else {
		keep(err)
	}

	if firstErr != nil {
		t.logger.Warn("register questions",
			zap.String("rewrite_uuid", cc.RewriteUUID),
			zap.Error(firstErr))
	}
	return firstErr
}

// Lookup finds the question issued under rewriteID, cache first
func (t *Tracker) Lookup(ctx context.Context, rewriteID string) (model.IssuedQuestion, bool) {
	if data, ok := t.cache.Get(ctx, questionKey(rewriteID)); ok {
		var q model.IssuedQuestion
		if err := json.Unmarshal(data, &q); err == nil {
			return q, true
		}
	}

	if t.store == nil {
		return model.IssuedQuestion{}, false
	}
	q, err := t.store.QuestionByRewriteID(ctx, rewriteID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			t.logger.Warn("question lookup", zap.String("rewrite_id", rewriteID), zap.Error(err))
		}
		return model.IssuedQuestion{}, false
	}
	return *q, true
}

// batch returns every question issued under rewriteUUID
func (t *Tracker) batch(ctx context.Context, rewriteUUID string) []model.IssuedQuestion {
	if data, ok := t.cache.Get(ctx, batchKey(rewriteUUID)); ok {
		var qs []model.IssuedQuestion
		if err := json.Unmarshal(data, &qs); err == nil {
			return qs
		}
	}
	if t.store == nil {
		return nil
	}
	qs, err := t.store.QuestionsByRewriteUUID(ctx, rewriteUUID)
	if err != nil {
		t.logger.Warn("batch lookup", zap.String("rewrite_uuid", rewriteUUID), zap.Error(err))
		return nil
	}
	return qs
}

// LinkAnswerToPrompt resolves answers to the questions they reply to.
//
// List answers whose id is unknown, or was issued under a different
// rewriteUUID than the one given, are returned as skipped. Legacy answers
// are linked by criterion name when the batch is known; unmatched legacy
// answers are neither linked nor skipped.
func (t *Tracker) LinkAnswerToPrompt(ctx context.Context, rewriteUUID string, answers model.AnswerSet) (linked []model.LinkedAnswer, skipped []model.RewriteAnswer) {
	answers = answers.Compact()

	switch answers.Format {
	case model.AnswerFormatList:
		for _, a := range answers.List {
			q, ok := t.Lookup(ctx, a.RewriteID)
			if !ok || (rewriteUUID != "" && q.RewriteUUID != rewriteUUID) {
				t.miss(rewriteUUID, a.RewriteID, ok)
				skipped = append(skipped, a)
				continue
			}
			linked = append(linked, model.LinkedAnswer{Answer: a, Question: q})
		}

	case model.AnswerFormatLegacy:
		if rewriteUUID == "" {
			return nil, nil
		}
		byCriterion := make(map[string]model.IssuedQuestion)
		for _, q := range t.batch(ctx, rewriteUUID) {
			byCriterion[q.Criterion] = q
		}

		keys := make([]string, 0, len(answers.Legacy))
		for k := range answers.Legacy {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			q, ok := byCriterion[k]
			if !ok {
				continue
			}
			q.RewriteUUID = rewriteUUID
			linked = append(linked, model.LinkedAnswer{
				Answer:   model.RewriteAnswer{RewriteID: q.RewriteID, Answer: answers.Legacy[k]},
				Question: q,
			})
		}
	}
	return linked, skipped
}

func (t *Tracker) miss(rewriteUUID, rewriteID string, known bool) {
	t.metrics.CorrelationMiss()
	reason := "unknown rewrite id"
	if known {
		reason = "rewrite id issued under another batch"
	}
	t.logger.Warn("skipping answer",
		zap.String("reason", reason),
		zap.String("rewrite_uuid", rewriteUUID),
		zap.String("rewrite_id", rewriteID))
}
