package queue

import (
	"context"
	"time"

	"github.com/mijoai/mijo-gateway/internal/domain/entity"
)

const (
	// jobRecordRetention keeps terminal job records long enough for every
	// pending Await to resolve.
	jobRecordRetention = time.Hour

	// completedRetention and failedRetention bound the observability ZSETs.
	completedRetention = 100
	failedRetention    = 500

	// awaitPollInterval is the fallback re-read cadence while awaiting a
	// job, covering missed notifications.
	awaitPollInterval = 2 * time.Second

	// lockTTL is the processing heartbeat window. A worker renews its lock
	// every lockRenewInterval; a job whose lock lapsed is stalled.
	lockTTL           = 30 * time.Second
	lockRenewInterval = 10 * time.Second
)

// Options tunes a single enqueue. Zero values fall back to normal
// priority, the kind's default timeout and the default attempt budget.
type Options struct {
	Priority  entity.JobPriority
	TimeoutMs int64
	Attempts  int
}

func (o Options) priority() entity.JobPriority {
	switch o.Priority {
	case entity.PriorityHigh, entity.PriorityNormal, entity.PriorityLow:
		return o.Priority
	default:
		return entity.PriorityNormal
	}
}

func (o Options) attempts() int {
	if o.Attempts > 0 {
		return o.Attempts
	}
	return entity.DefaultMaxAttempts
}

// Stats is a point-in-time census of one kind's queue.
type Stats struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Delayed   int64 `json:"delayed"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Failure describes why an attempt did not produce a result. RetryAfter is
// set when every provider in the chain was rate-limited. Terminal failures
// skip the remaining attempts; job timeouts use this.
type Failure struct {
	Message    string
	RetryAfter time.Duration
	Terminal   bool
}

// JobHandle lets the enqueuer block for the outcome. Abandoning Await
// never cancels the job; it keeps running and its record stays readable
// for the retention window.
type JobHandle struct {
	JobID string
	Kind  entity.JobKind

	await func(ctx context.Context) (*entity.Job, error)
}

// Await blocks until the job reaches a terminal status or ctx ends. The
// returned job carries the result or the failure reason; err is non-nil
// only when the outcome could not be observed.
func (h *JobHandle) Await(ctx context.Context) (*entity.Job, error) {
	return h.await(ctx)
}

// Queue is the producer surface.
type Queue interface {
	// Enqueue marshals payload into a new job on kind's queue.
	Enqueue(ctx context.Context, kind entity.JobKind, payload any, opts Options) (*JobHandle, error)

	// Job reads one job record.
	Job(ctx context.Context, kind entity.JobKind, id string) (*entity.Job, error)

	// Stats counts jobs per lifecycle stage.
	Stats(ctx context.Context, kind entity.JobKind) (Stats, error)

	// Clean drops terminal jobs older than olderThan from the retention
	// sets and returns how many were removed.
	Clean(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Consumer is the worker surface.
type Consumer interface {
	// Reserve claims the next job of a kind, draining priorities
	// high before normal before low, FIFO within each. Returns
	// (nil, nil) when the queue is empty.
	Reserve(ctx context.Context, kind entity.JobKind) (*entity.Job, error)

	// Heartbeat renews the processing lock of an active job.
	Heartbeat(ctx context.Context, job *entity.Job) error

	// Complete stores the result and finishes the job.
	Complete(ctx context.Context, job *entity.Job, result any) error

	// Fail either schedules a delayed retry with exponential backoff or,
	// with attempts exhausted, fails the job terminally.
	Fail(ctx context.Context, job *entity.Job, failure Failure) error
}

// jobEvent is published on a kind's events channel at terminal
// transitions, waking blocked Await calls.
type jobEvent struct {
	ID     string           `json:"id"`
	Status entity.JobStatus `json:"status"`
}
