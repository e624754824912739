package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/exam-importer/constants"
	"github.com/joseph-ayodele/exam-importer/internal/extract"
	"github.com/joseph-ayodele/exam-importer/internal/pipeline"
)

// ErrQueueClosed is returned by Enqueue after Shutdown.
var ErrQueueClosed = errors.New("queue is shutting down")

// JobRunner is the part of pipeline.Processor the queue drives.
type JobRunner interface {
	ProcessQueued(ctx context.Context, jobID string, mode constants.Mode, in pipeline.Input) (extract.ExtractionResult, error)
}

// JobState is the in-memory view of a submitted job.
type JobState struct {
	ID          string
	Mode        constants.Mode
	Status      constants.JobStatus
	SubmittedAt time.Time
	FinishedAt  time.Time
	Result      *extract.ExtractionResult
	Err         string
}

var _ Queue = (*ProcessorQueue)(nil)

type ProcessorQueue struct {
	proc    JobRunner
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	// closeMu guards closed and the channel close; senders hold it shared.
	closeMu sync.RWMutex
	closed  bool

	mu          sync.Mutex
	states      map[string]*JobState
	finished    []string // ids in finish order
	retention   time.Duration
	maxFinished int
}

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}
func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithRetention bounds how long a finished job's state stays queryable.
func WithRetention(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.retention = d
		}
	}
}

// WithMaxFinished caps how many finished job states are kept.
func WithMaxFinished(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.maxFinished = n
		}
	}
}

// NewProcessorQueue starts the workers. One worker is the default: the
// inference service is usually a single local model.
func NewProcessorQueue(proc JobRunner, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		proc:    proc,
		logger:  logger,
		workers: 1,
		timeout: 60 * time.Minute,
		ch:      make(chan Job, 32),
		states:  make(map[string]*JobState),

		retention:   time.Hour,
		maxFinished: 256,
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)

				for job := range q.ch {
					q.run(workerID, job)
				}

				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *ProcessorQueue) run(workerID int, job Job) {
	q.setStatus(job.ID, constants.JobStatusRunning, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	res, err := q.proc.ProcessQueued(ctx, job.ID, job.Mode, pipeline.Input{Bytes: job.Bytes, JobMetadata: job.Metadata})
	cancel()

	if err != nil {
		q.setStatus(job.ID, constants.JobStatusFailed, nil, err)
		q.logger.Error("processing failed", "worker_id", workerID, "job_id", job.ID, "error", err)
		return
	}
	q.setStatus(job.ID, constants.JobStatusSucceeded, &res, nil)
	q.logger.Info("processed job successfully", "worker_id", workerID, "job_id", job.ID,
		"questions", len(res.Questions), "lessons", len(res.Lessons))
}

// Enqueue accepts a job, blocking while the buffer is full until ctx ends.
func (q *ProcessorQueue) Enqueue(ctx context.Context, job Job) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "job_id", job.ID)
		return ErrQueueClosed
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now().UTC()
	}
	q.mu.Lock()
	q.states[job.ID] = &JobState{ID: job.ID, Mode: job.Mode, Status: constants.JobStatusQueued, SubmittedAt: job.SubmittedAt}
	q.mu.Unlock()

	select {
	case q.ch <- job:
		q.logger.Info("queued job for processing", "job_id", job.ID, "mode", job.Mode, "bytes", len(job.Bytes))
		return nil
	default:
	}

	q.logger.Warn("queue full, applying backpressure", "job_id", job.ID)
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		q.mu.Lock()
		delete(q.states, job.ID)
		q.mu.Unlock()
		return ctx.Err()
	}
}

// State returns the in-memory state of a job submitted to this queue.
func (q *ProcessorQueue) State(id string) (JobState, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pruneLocked(time.Now().UTC())
	s, ok := q.states[id]
	if !ok {
		return JobState{}, false
	}
	return *s, true
}

func (q *ProcessorQueue) setStatus(id string, status constants.JobStatus, res *extract.ExtractionResult, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	s, ok := q.states[id]
	if !ok {
		return
	}
	s.Status = status
	if res != nil {
		s.Result = res
	}
	if err != nil {
		s.Err = err.Error()
	}
	if status == constants.JobStatusSucceeded || status == constants.JobStatusFailed {
		s.FinishedAt = time.Now().UTC()
		q.finished = append(q.finished, id)
		q.pruneLocked(s.FinishedAt)
	}
}

// pruneLocked drops finished states past retention or beyond maxFinished,
// oldest first. Callers hold q.mu.
func (q *ProcessorQueue) pruneLocked(now time.Time) {
	for len(q.finished) > 0 {
		id := q.finished[0]
		s, ok := q.states[id]
		if ok && len(q.finished) <= q.maxFinished && now.Sub(s.FinishedAt) < q.retention {
			return
		}
		delete(q.states, id)
		q.finished = q.finished[1:]
	}
}

func (q *ProcessorQueue) Shutdown(ctx context.Context) {
	q.closeMu.Lock()
	if q.closed {
		q.closeMu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.closeMu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
