// Package queue runs scrape jobs submitted by the HTTP front end on a fixed
// pool of workers and keeps their status for polling.
package queue

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/IshaanNene/MapPhone/internal/observability"
	"github.com/IshaanNene/MapPhone/internal/types"
)

// Status tracks a job through the queue.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// Finished reports whether the job will not change again.
func (s Status) Finished() bool {
	return s == StatusComplete || s == StatusFailed
}

// Job is one submitted search.
type Job struct {
	ID         string                 `json:"id"`
	SearchTerm string                 `json:"search_term"`
	Status     Status                 `json:"status"`
	Error      string                 `json:"error,omitempty"`
	Records    []types.BusinessRecord `json:"records,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	StartedAt  time.Time              `json:"started_at,omitempty"`
	FinishedAt time.Time              `json:"finished_at,omitempty"`
}

func (j *Job) clone() Job {
	c := *j
	c.Records = append([]types.BusinessRecord(nil), j.Records...)
	return c
}

// Func performs the search for one job. Records returned together with an
// error are kept on the failed job.
type Func func(ctx context.Context, term string) ([]types.BusinessRecord, error)

// Queue is a bounded FIFO of jobs plus the table of every job it has seen.
type Queue struct {
	jobs    map[string]*Job
	pending chan string
	now     func() time.Time
	metrics *observability.Metrics
	logger  *slog.Logger
	mu      sync.RWMutex
}

// New creates a queue holding at most capacity pending jobs.
func New(capacity int, logger *slog.Logger, metrics *observability.Metrics) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		jobs:    make(map[string]*Job),
		pending: make(chan string, capacity),
		now:     time.Now,
		metrics: metrics,
		logger:  logger.With("component", "queue"),
	}
}

// Submit validates term and enqueues a new job.
func (q *Queue) Submit(term string) (Job, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return Job{}, types.ErrEmptySearchTerm
	}

	job := &Job{
		ID:         uuid.NewString(),
		SearchTerm: term,
		Status:     StatusPending,
		CreatedAt:  q.now(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	select {
	case q.pending <- job.ID:
	default:
		q.logger.Warn("queue full, job rejected", "search_term", term, "capacity", cap(q.pending))
		return Job{}, types.ErrQueueFull
	}
	q.jobs[job.ID] = job
	q.metrics.SetJobsQueued(len(q.pending))

	q.logger.Info("job submitted", "id", job.ID, "search_term", term)
	return job.clone(), nil
}

// Get returns a snapshot of the job.
func (q *Queue) Get(id string) (Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	job, ok := q.jobs[id]
	if !ok {
		return Job{}, types.ErrJobNotFound
	}
	return job.clone(), nil
}

// Pending returns the number of jobs waiting for a worker.
func (q *Queue) Pending() int {
	return len(q.pending)
}

// Run starts workers goroutines that execute jobs with fn, one at a time each,
// and blocks until ctx is done and every worker has returned. A job still
// running at cancellation is marked failed.
func (q *Queue) Run(ctx context.Context, workers int, fn Func) {
	if workers < 1 {
		workers = 1
	}
	q.logger.Info("workers started", "count", workers)

	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			q.worker(ctx, id, fn)
		}(i)
	}
	wg.Wait()
	q.logger.Info("workers stopped")
}

func (q *Queue) worker(ctx context.Context, id int, fn Func) {
	logger := q.logger.With("worker", id)
	for {
		select {
		case <-ctx.Done():
			return
		case jobID := <-q.pending:
			q.metrics.SetJobsQueued(len(q.pending))
			q.execute(ctx, logger, jobID, fn)
		}
	}
}

func (q *Queue) execute(ctx context.Context, logger *slog.Logger, jobID string, fn Func) {
	q.mu.Lock()
	job, ok := q.jobs[jobID]
	if !ok {
		q.mu.Unlock()
		return
	}
	job.Status = StatusRunning
	job.StartedAt = q.now()
	term := job.SearchTerm
	q.mu.Unlock()

	q.metrics.IncJobsActive()
	defer q.metrics.DecJobsActive()

	logger.Info("job started", "id", jobID, "search_term", term)
	records, err := fn(ctx, term)

	q.mu.Lock()
	defer q.mu.Unlock()
	job.Records = records
	job.FinishedAt = q.now()
	switch {
	case ctx.Err() != nil:
		job.Status = StatusFailed
		job.Error = "interrupted"
	case err != nil:
		job.Status = StatusFailed
		job.Error = err.Error()
	default:
		job.Status = StatusComplete
	}
	logger.Info("job finished",
		"id", jobID,
		"status", job.Status,
		"records", len(records),
		"duration", job.FinishedAt.Sub(job.StartedAt),
	)
}

// Prune removes finished jobs older than maxAge and returns how many it removed.
func (q *Queue) Prune(maxAge time.Duration) int {
	cutoff := q.now().Add(-maxAge)

	q.mu.Lock()
	defer q.mu.Unlock()
	removed := 0
	for id, job := range q.jobs {
		if job.Status.Finished() && job.FinishedAt.Before(cutoff) {
			delete(q.jobs, id)
			removed++
		}
	}
	if removed > 0 {
		q.logger.Debug("pruned finished jobs", "count", removed)
	}
	return removed
}

// StartJanitor prunes jobs older than retention every interval until ctx is done.
func (q *Queue) StartJanitor(ctx context.Context, interval, retention time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				q.Prune(retention)
			}
		}
	}()
}
