// Package tasks runs detached background jobs on a bounded worker pool.
// Jobs are retried with linear backoff; a job that exhausts its attempts
// gets its OnFailure hook invoked, mirroring a task queue's error link.
package tasks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/supportrelay/chatwoot-ai-bridge/internal/lib/sl"
)

type Job struct {
	Name string
	Run  func(ctx context.Context) error
	// OnFailure runs once after the final failed attempt. Optional.
	OnFailure func(ctx context.Context)
}

type Dispatcher struct {
	jobs       chan Job
	wg         sync.WaitGroup
	log        *slog.Logger
	retries    int
	backoff    time.Duration
	jobTimeout time.Duration

	closeOnce sync.Once
}

type Options struct {
	Workers    int
	QueueSize  int
	Retries    int
	Backoff    time.Duration
	JobTimeout time.Duration
}

func NewDispatcher(opts Options, log *slog.Logger) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize < 0 {
		opts.QueueSize = 0
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 2 * time.Minute
	}

	d := &Dispatcher{
		jobs:       make(chan Job, opts.QueueSize),
		log:        log.With(sl.Module("tasks")),
		retries:    opts.Retries,
		backoff:    opts.Backoff,
		jobTimeout: opts.JobTimeout,
	}

	d.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go d.worker()
	}

	return d
}

// Submit enqueues a job. Blocks when the queue is full rather than
// dropping work.
func (d *Dispatcher) Submit(job Job) {
	d.jobs <- job
}

// Close stops accepting jobs and waits for in-flight ones to finish.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.jobs)
	})
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for job := range d.jobs {
		d.run(job)
	}
}

func (d *Dispatcher) run(job Job) {
	attempts := d.retries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		err := d.runOnce(job)
		if err == nil {
			return
		}

		d.log.Warn("job failed",
			slog.String("job", job.Name),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			sl.Err(err),
		)

		if attempt < attempts {
			time.Sleep(d.backoff * time.Duration(attempt))
		}
	}

	d.log.Error("job exhausted retries", slog.String("job", job.Name))

	if job.OnFailure != nil {
		ctx, cancel := context.WithTimeout(context.Background(), d.jobTimeout)
		job.OnFailure(ctx)
		cancel()
	}
}

func (d *Dispatcher) runOnce(job Job) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.jobTimeout)
	defer cancel()
	return job.Run(ctx)
}
