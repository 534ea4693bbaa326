package scheduler

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Job is one unit of work. Run receives a progress callback taking a fraction in [0, 1]
// and returns the path it produced.
type Job struct {
	ID   uuid.UUID
	Name string
	Run  func(progress func(float64)) (string, error)
}

// NewJob returns a Job with a fresh ID.
func NewJob(name string, run func(progress func(float64)) (string, error)) Job {
	return Job{ID: uuid.New(), Name: name, Run: run}
}

// Status is the final state of a job.
type Status int

const (
	// Succeeded means Run returned without error.
	Succeeded Status = iota
	// Failed means Run returned an error or panicked.
	Failed
	// Cancelled means the job was never started.
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Result is the outcome of one job.
type Result struct {
	ID      uuid.UUID
	Name    string
	Output  string
	Status  Status
	Err     error
	Elapsed time.Duration
}

// Summary aggregates the results of a batch in completion order.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Cancelled int
	TimedOut  bool
	Elapsed   time.Duration
	Results   []Result
}

func (s *Summary) add(r Result) {
	s.Results = append(s.Results, r)

	switch r.Status {
	case Succeeded:
		s.Succeeded++
	case Failed:
		s.Failed++
	case Cancelled:
		s.Cancelled++
	}
}

// Token is a cancellation flag shared between a batch and whoever may stop it.
// It is only consulted before a job starts.
type Token struct {
	cancelled atomic.Bool
}

// Cancel stops every job that has not started yet.
func (t *Token) Cancel() {
	t.cancelled.Store(true)
}

// Cancelled reports whether Cancel was called.
func (t *Token) Cancelled() bool {
	return t.cancelled.Load()
}

// Sink receives batch events. All calls come from the goroutine running
// Scheduler.Run, so implementations need no locking.
type Sink interface {
	// Start announces the batch. Progress is determinate only for single-job batches.
	Start(total int, determinate bool)
	// Progress reports the fraction done of a determinate batch, and 1 on completion.
	Progress(fraction float64)
	// Done reports a finished, failed or cancelled job.
	Done(result Result)
	// Finish reports the batch summary.
	Finish(summary Summary)
}

type nopSink struct{}

func (nopSink) Start(int, bool)  {}
func (nopSink) Progress(float64) {}
func (nopSink) Done(Result)      {}
func (nopSink) Finish(Summary)   {}
