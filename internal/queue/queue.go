package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"ecolisting-chat-backend/internal/logger"
)

var ErrQueueClosed = errors.New("queue: manager is shut down")

type Job struct {
	Fn   func() error
	Errc chan error
}

// RequestQueueManager runs request handlers on a fixed pool of workers and
// also carries detached best-effort tasks whose errors never reach a caller.
type RequestQueueManager struct {
	JobQueue   chan Job
	MaxWorkers int

	log     *logger.Logger
	wg      sync.WaitGroup
	tasks   sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	baseCtx context.Context
}

func NewRequestQueueManager(queueSize int, maxWorkers int, log *logger.Logger) *RequestQueueManager {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	manager := &RequestQueueManager{
		JobQueue:   make(chan Job, queueSize),
		MaxWorkers: maxWorkers,
		log:        logger.OrNop(log).With("component", "queue"),
		baseCtx:    context.Background(),
	}
	manager.startWorkers()
	return manager
}

func (rqm *RequestQueueManager) startWorkers() {
	for i := 0; i < rqm.MaxWorkers; i++ {
		rqm.wg.Add(1)
		go func(workerID int) {
			defer rqm.wg.Done()
			rqm.log.Debug("worker started", "worker", workerID)
			for job := range rqm.JobQueue {
				err := runSafely(job.Fn)
				if job.Errc != nil {
					job.Errc <- err
				}
			}
			rqm.log.Debug("worker stopped", "worker", workerID)
		}(i)
	}
}

func runSafely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("queue: job panicked: %v", r)
		}
	}()
	return fn()
}

// EnqueueJob blocks until the job is accepted by the queue.
func (rqm *RequestQueueManager) EnqueueJob(job Job) error {
	rqm.mu.RLock()
	defer rqm.mu.RUnlock()
	if rqm.closed {
		return ErrQueueClosed
	}
	rqm.JobQueue <- job
	return nil
}

// Detach schedules fn without waiting for it. A full queue does not block
// the caller; the task then runs on its own goroutine. Errors and panics are
// logged and dropped.
func (rqm *RequestQueueManager) Detach(name string, fn func(ctx context.Context) error) {
	rqm.mu.RLock()
	defer rqm.mu.RUnlock()
	if rqm.closed {
		rqm.log.Warn("detached task dropped after shutdown", "task", name)
		return
	}

	rqm.tasks.Add(1)
	task := func() error {
		defer rqm.tasks.Done()
		if err := runSafely(func() error { return fn(rqm.baseCtx) }); err != nil {
			rqm.log.Warn("detached task failed", "task", name, "error", err)
		}
		return nil
	}

	select {
	case rqm.JobQueue <- Job{Fn: task}:
	default:
		go func() { _ = task() }()
	}
}

// Wait blocks until every detached task scheduled so far has finished.
func (rqm *RequestQueueManager) Wait() {
	rqm.tasks.Wait()
}

func (rqm *RequestQueueManager) Shutdown() {
	rqm.mu.Lock()
	if rqm.closed {
		rqm.mu.Unlock()
		return
	}
	rqm.closed = true
	close(rqm.JobQueue)
	rqm.mu.Unlock()

	rqm.wg.Wait()
	rqm.tasks.Wait()
}
