// Package hostrun bounds how many inspections the reference host runs at
// once. The inspection core itself is synchronous and touches no shared
// state, so fanning it out across many files is purely a host concern.
package hostrun

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// JobStatus is the lifecycle state of one tracked job.
type JobStatus string

const (
	StatusRunning JobStatus = "RUNNING"
	StatusStopped JobStatus = "STOPPED"
	StatusError   JobStatus = "ERROR"
)

// Job is one in-flight unit of work tracked by a Pool.
type Job struct {
	ID        string
	Name      string
	StartTime time.Time
	Context   context.Context
	Cancel    context.CancelFunc
	Done      chan struct{}
	Status    JobStatus
	mu        sync.RWMutex
}

// Pool runs bounded-concurrency work (one inspection per job) and tracks
// each job's lifecycle so the host can report progress or cancel a batch.
type Pool struct {
	logger      zerolog.Logger
	mu          sync.RWMutex
	jobs        map[string]*Job
	shutdown    chan struct{}
	shutdownSet sync.Once
	activeCount int64
	maxJobs     int
	stopTimeout time.Duration
}

// NewPool creates a pool admitting at most maxJobs concurrent jobs.
func NewPool(logger zerolog.Logger, maxJobs int) *Pool {
	return &Pool{
		logger:      logger,
		jobs:        make(map[string]*Job),
		shutdown:    make(chan struct{}),
		maxJobs:     maxJobs,
		stopTimeout: 30 * time.Second,
	}
}

// Submit runs fn as a tracked job, rejecting it outright if the pool is at
// capacity rather than queueing — callers decide their own backpressure.
func (p *Pool) Submit(ctx context.Context, name string, fn func(context.Context) error) (string, error) {
	p.mu.Lock()
	if len(p.jobs) >= p.maxJobs {
		p.mu.Unlock()
		return "", fmt.Errorf("inspection pool at capacity (%d)", p.maxJobs)
	}

	id := fmt.Sprintf("%s-%d", name, len(p.jobs))
	jobCtx, cancel := context.WithCancel(ctx)
	job := &Job{
		ID:        id,
		Name:      name,
		StartTime: time.Now(),
		Context:   jobCtx,
		Cancel:    cancel,
		Done:      make(chan struct{}),
		Status:    StatusRunning,
	}
	p.jobs[id] = job
	atomic.AddInt64(&p.activeCount, 1)
	p.mu.Unlock()

	go p.run(job, fn)

	p.logger.Debug().Str("job_id", id).Str("job_name", name).Msg("submitted inspection job")
	return id, nil
}

func (p *Pool) run(job *Job, fn func(context.Context) error) {
	defer func() {
		job.mu.Lock()
		if job.Status == StatusRunning {
			job.Status = StatusStopped
		}
		job.mu.Unlock()

		close(job.Done)
		atomic.AddInt64(&p.activeCount, -1)

		p.mu.Lock()
		delete(p.jobs, job.ID)
		p.mu.Unlock()

		if r := recover(); r != nil {
			p.logger.Error().Str("job_id", job.ID).Interface("panic", r).Msg("inspection job panicked")
		}
	}()

	if err := fn(job.Context); err != nil {
		job.mu.Lock()
		job.Status = StatusError
		job.mu.Unlock()
		p.logger.Error().Err(err).Str("job_id", job.ID).Msg("inspection job failed")
	}
}

// Wait blocks until every submitted job has finished or timeout elapses.
func (p *Pool) Wait(timeout time.Duration) error {
	deadline := time.After(timeout)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-deadline:
			remaining := atomic.LoadInt64(&p.activeCount)
			if remaining > 0 {
				return fmt.Errorf("timeout: %d inspection jobs still running", remaining)
			}
			return nil
		case <-ticker.C:
			if atomic.LoadInt64(&p.activeCount) == 0 {
				return nil
			}
		}
	}
}

// ActiveCount returns the number of jobs currently running.
func (p *Pool) ActiveCount() int64 {
	return atomic.LoadInt64(&p.activeCount)
}
