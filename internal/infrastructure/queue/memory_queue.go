package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mijoai/mijo-gateway/internal/domain/entity"
	"github.com/mijoai/mijo-gateway/internal/domain/identity"
	domainErrors "github.com/mijoai/mijo-gateway/pkg/errors"
)

// MemoryQueue implements the queue semantics in process memory: priority
// plus FIFO draining, exponential backoff, retention trimming and blocking
// Await. It backs single-node deployments that run without a cache store
// (the embedded worker drains it in the same process) and the tests.
// Stalled-job recovery does not apply: a worker cannot outlive the process.
type MemoryQueue struct {
	mu      sync.Mutex
	logger  *zap.Logger
	now     func() time.Time
	jobs    map[string]*entity.Job
	waiting map[entity.JobKind]map[entity.JobPriority][]string
	active  map[entity.JobKind][]string
	delayed map[entity.JobKind]map[string]time.Time
	done    map[entity.JobKind]map[entity.JobStatus][]string
	waiters map[string][]chan struct{}
}

var (
	_ Queue    = (*MemoryQueue)(nil)
	_ Consumer = (*MemoryQueue)(nil)
)

func NewMemoryQueue(logger *zap.Logger) *MemoryQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &MemoryQueue{
		logger:  logger.With(zap.String("component", "queue")),
		now:     time.Now,
		jobs:    make(map[string]*entity.Job),
		waiting: make(map[entity.JobKind]map[entity.JobPriority][]string),
		active:  make(map[entity.JobKind][]string),
		delayed: make(map[entity.JobKind]map[string]time.Time),
		done:    make(map[entity.JobKind]map[entity.JobStatus][]string),
		waiters: make(map[string][]chan struct{}),
	}
	for _, kind := range entity.JobKinds() {
		q.waiting[kind] = make(map[entity.JobPriority][]string)
		q.delayed[kind] = make(map[string]time.Time)
		q.done[kind] = map[entity.JobStatus][]string{
			entity.JobStatusCompleted: nil,
			entity.JobStatusFailed:    nil,
		}
	}
	return q
}

func (q *MemoryQueue) Enqueue(_ context.Context, kind entity.JobKind, payload any, opts Options) (*JobHandle, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s job payload: %w", kind, err)
	}

	job := &entity.Job{
		ID:          identity.NewJobID(),
		Kind:        kind,
		Priority:    opts.priority(),
		Payload:     data,
		MaxAttempts: opts.attempts(),
		TimeoutMs:   opts.TimeoutMs,
		Status:      entity.JobStatusWaiting,
		CreatedAt:   q.now().UTC(),
	}

	q.mu.Lock()
	q.jobs[job.ID] = cloneJob(job)
	q.waiting[kind][job.Priority] = append(q.waiting[kind][job.Priority], job.ID)
	q.mu.Unlock()

	id := job.ID
	return &JobHandle{
		JobID: id,
		Kind:  kind,
		await: func(ctx context.Context) (*entity.Job, error) {
			return q.awaitJob(ctx, id)
		},
	}, nil
}

func (q *MemoryQueue) Job(_ context.Context, _ entity.JobKind, id string) (*entity.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return nil, domainErrors.NewNotFoundError(fmt.Sprintf("job %s not found", id))
	}
	return cloneJob(job), nil
}

func (q *MemoryQueue) Stats(_ context.Context, kind entity.JobKind) (Stats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.promoteLocked(kind)

	var stats Stats
	for _, p := range reservePriorities {
		stats.Waiting += int64(len(q.waiting[kind][p]))
	}
	stats.Active = int64(len(q.active[kind]))
	stats.Delayed = int64(len(q.delayed[kind]))
	stats.Completed = int64(len(q.done[kind][entity.JobStatusCompleted]))
	stats.Failed = int64(len(q.done[kind][entity.JobStatusFailed]))
	return stats, nil
}

func (q *MemoryQueue) Clean(_ context.Context, olderThan time.Duration) (int64, error) {
	cutoff := q.now().Add(-olderThan)

	q.mu.Lock()
	defer q.mu.Unlock()

	var total int64
	for _, kind := range entity.JobKinds() {
		for status, ids := range q.done[kind] {
			kept := ids[:0]
			for _, id := range ids {
				job := q.jobs[id]
				if job != nil && job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
					delete(q.jobs, id)
					total++
					continue
				}
				kept = append(kept, id)
			}
			q.done[kind][status] = kept
		}
	}
	return total, nil
}

func (q *MemoryQueue) Reserve(_ context.Context, kind entity.JobKind) (*entity.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.promoteLocked(kind)

	for _, p := range reservePriorities {
		for len(q.waiting[kind][p]) > 0 {
			id := q.waiting[kind][p][0]
			q.waiting[kind][p] = q.waiting[kind][p][1:]
			job, ok := q.jobs[id]
			if !ok {
				continue
			}
			now := q.now().UTC()
			job.Status = entity.JobStatusActive
			job.AttemptsMade++
			job.ProcessedAt = &now
			q.active[kind] = append(q.active[kind], id)
			return cloneJob(job), nil
		}
	}
	return nil, nil
}

// Heartbeat is a no-op: in-process workers hold no lock to renew.
func (q *MemoryQueue) Heartbeat(_ context.Context, _ *entity.Job) error {
	return nil
}

func (q *MemoryQueue) Complete(_ context.Context, job *entity.Job, result any) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result for job %s: %w", job.ID, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	stored, ok := q.jobs[job.ID]
	if !ok {
		return domainErrors.NewNotFoundError(fmt.Sprintf("job %s not found", job.ID))
	}
	now := q.now().UTC()
	*stored = *cloneJob(job)
	stored.Status = entity.JobStatusCompleted
	stored.Result = data
	stored.Error = ""
	stored.RetryAfterMs = 0
	stored.FinishedAt = &now

	q.removeActiveLocked(job.Kind, job.ID)
	q.retainLocked(job.Kind, entity.JobStatusCompleted, job.ID, completedRetention)
	q.notifyLocked(job.ID)
	return nil
}

func (q *MemoryQueue) Fail(_ context.Context, job *entity.Job, failure Failure) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	stored, ok := q.jobs[job.ID]
	if !ok {
		return domainErrors.NewNotFoundError(fmt.Sprintf("job %s not found", job.ID))
	}
	now := q.now().UTC()
	*stored = *cloneJob(job)
	stored.Error = failure.Message
	stored.RetryAfterMs = failure.RetryAfter.Milliseconds()
	q.removeActiveLocked(job.Kind, job.ID)

	if !failure.Terminal && !stored.ExhaustedAttempts() {
		stored.Status = entity.JobStatusDelayed
		delay := stored.NextBackoff()
		if failure.RetryAfter > delay {
			delay = failure.RetryAfter
		}
		q.delayed[job.Kind][job.ID] = now.Add(delay)
		return nil
	}

	stored.Status = entity.JobStatusFailed
	stored.FinishedAt = &now
	q.retainLocked(job.Kind, entity.JobStatusFailed, job.ID, failedRetention)
	q.notifyLocked(job.ID)
	return nil
}

func (q *MemoryQueue) awaitJob(ctx context.Context, id string) (*entity.Job, error) {
	for {
		q.mu.Lock()
		job, ok := q.jobs[id]
		if !ok {
			q.mu.Unlock()
			return nil, domainErrors.NewNotFoundError(fmt.Sprintf("job %s not found", id))
		}
		if job.Terminal() {
			out := cloneJob(job)
			q.mu.Unlock()
			return out, nil
		}
		ch := make(chan struct{})
		q.waiters[id] = append(q.waiters[id], ch)
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ch:
		}
	}
}

// promoteLocked returns due delayed jobs to their wait lists, oldest
// ready-at first so simultaneous retries stay ordered.
func (q *MemoryQueue) promoteLocked(kind entity.JobKind) {
	now := q.now()
	due := make([]string, 0)
	for id, readyAt := range q.delayed[kind] {
		if !readyAt.After(now) {
			due = append(due, id)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		ri, rj := q.delayed[kind][due[i]], q.delayed[kind][due[j]]
		if ri.Equal(rj) {
			return due[i] < due[j]
		}
		return ri.Before(rj)
	})
	for _, id := range due {
		delete(q.delayed[kind], id)
		job, ok := q.jobs[id]
		if !ok {
			continue
		}
		job.Status = entity.JobStatusWaiting
		q.waiting[kind][job.Priority] = append(q.waiting[kind][job.Priority], id)
	}
}

func (q *MemoryQueue) removeActiveLocked(kind entity.JobKind, id string) {
	ids := q.active[kind]
	for i, v := range ids {
		if v == id {
			q.active[kind] = append(ids[:i], ids[i+1:]...)
			return
		}
	}
}

// retainLocked appends to a retention list and drops the oldest entries,
// and their job records, beyond the cap.
func (q *MemoryQueue) retainLocked(kind entity.JobKind, status entity.JobStatus, id string, limit int) {
	ids := append(q.done[kind][status], id)
	for len(ids) > limit {
		delete(q.jobs, ids[0])
		ids = ids[1:]
	}
	q.done[kind][status] = ids
}

func (q *MemoryQueue) notifyLocked(id string) {
	for _, ch := range q.waiters[id] {
		close(ch)
	}
	delete(q.waiters, id)
}

func cloneJob(j *entity.Job) *entity.Job {
	c := *j
	if j.Payload != nil {
		c.Payload = append(json.RawMessage(nil), j.Payload...)
	}
	if j.Result != nil {
		c.Result = append(json.RawMessage(nil), j.Result...)
	}
	if j.ProcessedAt != nil {
		t := *j.ProcessedAt
		c.ProcessedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}
