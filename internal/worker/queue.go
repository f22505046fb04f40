package worker

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ppiankov/textio/internal/metrics"
)

// Task is a fire-and-forget unit of background work.
// Tasks handle their own errors; a panic is recovered and logged.
type Task func(ctx context.Context)

type namedTask struct {
	name string
	run  Task
}

// Queue runs background tasks on a fixed number of workers with a
// bounded backlog. Submit never blocks the caller.
type Queue struct {
	tasks   chan namedTask
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool
}

// NewQueue starts workers goroutines consuming a backlog of size capacity
func NewQueue(workers, capacity int, logger *zap.Logger, m *metrics.Metrics) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if capacity < 0 {
		capacity = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		tasks:   make(chan namedTask, capacity),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
		metrics: m,
	}

	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for task := range q.tasks {
		q.metrics.SetQueueDepth(len(q.tasks))
		if q.ctx.Err() != nil {
			q.logger.Warn("dropping background task after shutdown deadline", zap.String("task", task.name))
			continue
		}
		q.run(task)
	}
}

func (q *Queue) run(task namedTask) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("background task panicked",
				zap.String("task", task.name),
				zap.String("panic", fmt.Sprint(r)))
		}
	}()
	task.run(q.ctx)
}

// Submit enqueues task without blocking.
// It returns false when the backlog is full or the queue is closed.
func (q *Queue) Submit(name string, task Task) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return false
	}

	select {
	case q.tasks <- namedTask{name: name, run: task}:
		q.metrics.SetQueueDepth(len(q.tasks))
		return true
	default:
		return false
	}
}

// Depth returns the number of tasks waiting for a worker
func (q *Queue) Depth() int {
	return len(q.tasks)
}

// Close stops accepting tasks and waits for the backlog to drain.
// When ctx ends first the task context is cancelled and ctx.Err() returned;
// tasks already running still finish.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		if n := len(q.tasks); n > 0 {
			q.logger.Warn("queue closed before drain", zap.Int("pending", n))
		}
		<-done
		return ctx.Err()
	}
}
