package orchestrator

import (
	"context"
	"sync"
)

// Job is a unit of work submitted to a Queue.
type Job func(ctx context.Context) error

// Queue runs jobs one at a time, in submission order, on a single worker
// goroutine. Transcripts arriving back-to-back from several sources are
// funneled through it so cycles never overlap.
type Queue struct {
	jobs chan Job
	done chan struct{}
	wg   sync.WaitGroup

	// closeMu is held for reading by submitters while they send, and for
	// writing by Close before the jobs channel is closed.
	closeMu   sync.RWMutex
	closed    bool
	closeOnce sync.Once

	// OnError is called with every error returned by a job. nil ignores them.
	OnError func(error)
}

// NewQueue creates a queue that buffers up to capacity pending jobs.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		jobs: make(chan Job, capacity),
		done: make(chan struct{}),
	}
}

// Start launches the worker. It runs jobs until ctx is done or Close is called.
func (q *Queue) Start(ctx context.Context) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case job, ok := <-q.jobs:
				if !ok {
					return
				}
				if err := job(ctx); err != nil && q.OnError != nil {
					q.OnError(err)
				}
			}
		}
	}()
}

// Submit enqueues a job, blocking while the queue is full.
// It returns ErrQueueClosed once Close has been called.
func (q *Queue) Submit(job Job) error {
	return q.SubmitCtx(context.Background(), job)
}

// SubmitCtx enqueues a job but returns promptly if ctx is canceled or the
// queue is closed while waiting for space.
func (q *Queue) SubmitCtx(ctx context.Context, job Job) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- job:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting new jobs and waits for queued jobs to finish.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		// Release submitters blocked on a full queue before taking the lock.
		close(q.done)
		q.closeMu.Lock()
		q.closed = true
		close(q.jobs)
		q.closeMu.Unlock()
	})
	q.wg.Wait()
}

// ErrQueueClosed is returned if a Submit is attempted after Close.
var ErrQueueClosed = &QueueError{"transcript queue closed"}

// QueueError provides a simple typed error for queue operations.
type QueueError struct{ msg string }

func (e *QueueError) Error() string { return e.msg }
