// Package scheduler runs batches of independent jobs on a bounded worker pool.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/idelchi/passcode/internal/logging"
)

var (
	// ErrTimeout is returned when a batch outlives its timeout. Jobs still running are
	// not interrupted; Run returns once they are done.
	ErrTimeout = errors.New("batch timed out")
	// ErrCancelled is returned when jobs were skipped because the batch was cancelled.
	ErrCancelled = errors.New("batch cancelled")
	// ErrPanic marks a job that panicked.
	ErrPanic = errors.New("job panicked")
)

// Scheduler dispatches jobs to at most workers goroutines.
type Scheduler struct {
	workers int
	timeout time.Duration
	logger  *slog.Logger
}

// New returns a Scheduler. Non-positive workers means one per CPU;
// a non-positive timeout means no timeout.
func New(workers int, timeout time.Duration, logger *slog.Logger) *Scheduler {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	return &Scheduler{
		workers: workers,
		timeout: timeout,
		logger:  logging.OrDiscard(logger),
	}
}

// Workers returns the pool size.
func (s *Scheduler) Workers() int {
	return s.workers
}

// Run executes jobs and blocks until every job has either returned or been skipped.
// Cancelling ctx or token, or reaching the timeout, only prevents jobs from starting:
// Run still waits for the jobs already running.
// A failed job never affects the others; failures are reported in the Summary.
func (s *Scheduler) Run(ctx context.Context, token *Token, jobs []Job, sink Sink) (Summary, error) {
	if token == nil {
		token = &Token{}
	}

	if sink == nil {
		sink = nopSink{}
	}

	start := time.Now()
	determinate := len(jobs) == 1
	summary := Summary{Total: len(jobs)}

	sink.Start(len(jobs), determinate)

	// Buffered so workers never block on a collector that stopped waiting.
	results := make(chan Result, len(jobs))
	progress := make(chan float64, 1)

	report := func(float64) {}
	if determinate {
		report = func(fraction float64) { latest(progress, fraction) }
	}

	go s.dispatch(ctx, token, jobs, report, results)

	var timeout <-chan time.Time

	if s.timeout > 0 {
		timer := time.NewTimer(s.timeout)
		defer timer.Stop()

		timeout = timer.C
	}

	done := ctx.Done()

	var timedOut error

	for {
		select {
		case result, ok := <-results:
			if !ok {
				return s.finish(ctx, sink, summary, start, timedOut)
			}

			s.logger.Debug("job finished",
				"job", result.Name,
				"status", result.Status,
				"elapsed", result.Elapsed,
				"error", result.Err,
			)

			summary.add(result)
			sink.Done(result)

		case fraction := <-progress:
			sink.Progress(fraction)

		case <-done:
			token.Cancel()

			done = nil

		case <-timeout:
			token.Cancel()

			timeout = nil
			summary.TimedOut = true
			timedOut = fmt.Errorf("%w after %s", ErrTimeout, s.timeout)

			s.logger.Warn("batch timed out, waiting for running jobs",
				"elapsed", time.Since(start),
				"pending", summary.Total-len(summary.Results),
			)
		}
	}
}

func (s *Scheduler) finish(ctx context.Context, sink Sink, summary Summary, start time.Time, err error) (Summary, error) {
	summary.Elapsed = time.Since(start)

	if err == nil && summary.Cancelled > 0 {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %w", ErrCancelled, ctxErr)
		} else {
			err = ErrCancelled
		}
	}

	if !summary.TimedOut {
		sink.Progress(1)
	}

	sink.Finish(summary)

	return summary, err
}

func (s *Scheduler) dispatch(ctx context.Context, token *Token, jobs []Job, report func(float64), results chan<- Result) {
	var group errgroup.Group

	group.SetLimit(s.workers)

	for _, job := range jobs {
		if stopped(ctx, token) {
			results <- cancelled(job)

			continue
		}

		group.Go(func() error {
			// A slot may free up long after Go was called.
			if stopped(ctx, token) {
				results <- cancelled(job)

				return nil
			}

			results <- s.execute(job, report)

			return nil
		})
	}

	group.Wait() //nolint:errcheck // workers never return errors

	close(results)
}

func (s *Scheduler) execute(job Job, report func(float64)) (result Result) {
	start := time.Now()
	result = Result{ID: job.ID, Name: job.Name}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked", "job", job.Name, "panic", r)

			result.Status = Failed
			result.Err = fmt.Errorf("%w: %v", ErrPanic, r)
		}

		result.Elapsed = time.Since(start)
	}()

	output, err := job.Run(report)
	if err != nil {
		result.Status = Failed
		result.Err = err

		return result
	}

	result.Status = Succeeded
	result.Output = output

	return result
}

func stopped(ctx context.Context, token *Token) bool {
	return token.Cancelled() || ctx.Err() != nil
}

func cancelled(job Job) Result {
	return Result{ID: job.ID, Name: job.Name, Status: Cancelled, Err: ErrCancelled}
}

// latest replaces any unread value in ch with v without blocking.
func latest(ch chan float64, v float64) {
	for {
		select {
		case ch <- v:
			return
		default:
		}

		select {
		case <-ch:
		default:
		}
	}
}
