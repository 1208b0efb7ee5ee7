package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mijoai/mijo-gateway/internal/domain/entity"
	"github.com/mijoai/mijo-gateway/internal/domain/identity"
	domainErrors "github.com/mijoai/mijo-gateway/pkg/errors"
	"github.com/mijoai/mijo-gateway/pkg/safego"
)

// reservePriorities is the drain order: strict priority, FIFO within one.
var reservePriorities = []entity.JobPriority{
	entity.PriorityHigh,
	entity.PriorityNormal,
	entity.PriorityLow,
}

func waitKey(kind entity.JobKind, p entity.JobPriority) string {
	return fmt.Sprintf("bull:%s:wait:%d", kind, p)
}

func activeKey(kind entity.JobKind) string {
	return fmt.Sprintf("bull:%s:active", kind)
}

func jobKey(kind entity.JobKind, id string) string {
	return fmt.Sprintf("bull:%s:job:%s", kind, id)
}

func delayedKey(kind entity.JobKind) string {
	return fmt.Sprintf("bull:%s:delayed", kind)
}

func lockKey(kind entity.JobKind, id string) string {
	return fmt.Sprintf("bull:%s:lock:%s", kind, id)
}

func completedKey(kind entity.JobKind) string {
	return fmt.Sprintf("bull:%s:completed", kind)
}

func failedKey(kind entity.JobKind) string {
	return fmt.Sprintf("bull:%s:failed", kind)
}

func eventsKey(kind entity.JobKind) string {
	return fmt.Sprintf("bull:%s:events", kind)
}

// RedisQueue coordinates jobs between the API process and worker
// processes through a shared Redis. Wait lists and the delayed ZSET carry
// job IDs; the job record itself is a JSON document under its own key.
type RedisQueue struct {
	client   *redis.Client
	logger   *zap.Logger
	workerID string
}

var (
	_ Queue    = (*RedisQueue)(nil)
	_ Consumer = (*RedisQueue)(nil)
)

func NewRedisQueue(client *redis.Client, logger *zap.Logger) *RedisQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return &RedisQueue{
		client:   client,
		logger:   logger.With(zap.String("component", "queue")),
		workerID: fmt.Sprintf("%s:%d", host, os.Getpid()),
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, kind entity.JobKind, payload any, opts Options) (*JobHandle, error) {
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
		CreatedAt:   time.Now().UTC(),
	}
	if err := q.writeJob(ctx, job, 0); err != nil {
		return nil, err
	}
	if err := q.client.LPush(ctx, waitKey(kind, job.Priority), job.ID).Err(); err != nil {
		return nil, fmt.Errorf("enqueue %s job: %w", kind, err)
	}
	return q.handle(job), nil
}

func (q *RedisQueue) Job(ctx context.Context, kind entity.JobKind, id string) (*entity.Job, error) {
	return q.readJob(ctx, kind, id)
}

func (q *RedisQueue) Stats(ctx context.Context, kind entity.JobKind) (Stats, error) {
	pipe := q.client.Pipeline()
	waitCmds := make([]*redis.IntCmd, 0, len(reservePriorities))
	for _, p := range reservePriorities {
		waitCmds = append(waitCmds, pipe.LLen(ctx, waitKey(kind, p)))
	}
	activeCmd := pipe.LLen(ctx, activeKey(kind))
	delayedCmd := pipe.ZCard(ctx, delayedKey(kind))
	completedCmd := pipe.ZCard(ctx, completedKey(kind))
	failedCmd := pipe.ZCard(ctx, failedKey(kind))
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, fmt.Errorf("read %s queue stats: %w", kind, err)
	}

	var stats Stats
	for _, cmd := range waitCmds {
		stats.Waiting += cmd.Val()
	}
	stats.Active = activeCmd.Val()
	stats.Delayed = delayedCmd.Val()
	stats.Completed = completedCmd.Val()
	stats.Failed = failedCmd.Val()
	return stats, nil
}

func (q *RedisQueue) Clean(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := strconv.FormatInt(time.Now().Add(-olderThan).UnixMilli(), 10)
	var total int64
	for _, kind := range entity.JobKinds() {
		for _, set := range []string{completedKey(kind), failedKey(kind)} {
			ids, err := q.client.ZRangeByScore(ctx, set, &redis.ZRangeBy{Min: "-inf", Max: cutoff}).Result()
			if err != nil {
				return total, fmt.Errorf("scan %s for cleaning: %w", set, err)
			}
			if len(ids) == 0 {
				continue
			}
			keys := make([]string, 0, len(ids))
			for _, id := range ids {
				keys = append(keys, jobKey(kind, id))
			}
			pipe := q.client.TxPipeline()
			pipe.Del(ctx, keys...)
			pipe.ZRemRangeByScore(ctx, set, "-inf", cutoff)
			if _, err := pipe.Exec(ctx); err != nil {
				return total, fmt.Errorf("clean %s: %w", set, err)
			}
			total += int64(len(ids))
		}
	}
	return total, nil
}

func (q *RedisQueue) Reserve(ctx context.Context, kind entity.JobKind) (*entity.Job, error) {
	for _, p := range reservePriorities {
		id, err := q.client.RPopLPush(ctx, waitKey(kind, p), activeKey(kind)).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reserve %s job: %w", kind, err)
		}

		job, err := q.readJob(ctx, kind, id)
		if err != nil {
			// Record expired or was cleaned; drop the orphaned ID.
			q.client.LRem(ctx, activeKey(kind), 1, id)
			q.logger.Warn("Dropped job with missing record",
				zap.String("kind", string(kind)),
				zap.String("jobId", id))
			continue
		}

		now := time.Now().UTC()
		job.Status = entity.JobStatusActive
		job.AttemptsMade++
		job.ProcessedAt = &now
		if err := q.writeJob(ctx, job, 0); err != nil {
			return nil, err
		}
		if err := q.client.Set(ctx, lockKey(kind, id), q.workerID, lockTTL).Err(); err != nil {
			return nil, fmt.Errorf("lock %s job %s: %w", kind, id, err)
		}
		return job, nil
	}
	return nil, nil
}

func (q *RedisQueue) Heartbeat(ctx context.Context, job *entity.Job) error {
	if err := q.client.Expire(ctx, lockKey(job.Kind, job.ID), lockTTL).Err(); err != nil {
		return fmt.Errorf("renew lock for job %s: %w", job.ID, err)
	}
	return nil
}

func (q *RedisQueue) Complete(ctx context.Context, job *entity.Job, result any) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result for job %s: %w", job.ID, err)
	}

	now := time.Now().UTC()
	job.Status = entity.JobStatusCompleted
	job.Result = data
	job.Error = ""
	job.RetryAfterMs = 0
	job.FinishedAt = &now
	if err := q.writeJob(ctx, job, jobRecordRetention); err != nil {
		return err
	}

	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, activeKey(job.Kind), 1, job.ID)
	pipe.Del(ctx, lockKey(job.Kind, job.ID))
	pipe.ZAdd(ctx, completedKey(job.Kind), redis.Z{Score: float64(now.UnixMilli()), Member: job.ID})
	pipe.ZRemRangeByRank(ctx, completedKey(job.Kind), 0, int64(-(completedRetention + 1)))
	pipe.Publish(ctx, eventsKey(job.Kind), eventPayload(job))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("finish job %s: %w", job.ID, err)
	}
	return nil
}

func (q *RedisQueue) Fail(ctx context.Context, job *entity.Job, failure Failure) error {
	now := time.Now().UTC()
	job.Error = failure.Message
	job.RetryAfterMs = failure.RetryAfter.Milliseconds()

	if !failure.Terminal && !job.ExhaustedAttempts() {
		job.Status = entity.JobStatusDelayed
		if err := q.writeJob(ctx, job, 0); err != nil {
			return err
		}
		// A failure carrying RetryAfter postpones the retry at least that
		// long, so a rate-limited job does not bounce back into the same
		// closed window.
		delay := job.NextBackoff()
		if failure.RetryAfter > delay {
			delay = failure.RetryAfter
		}
		readyAt := now.Add(delay)
		pipe := q.client.TxPipeline()
		pipe.LRem(ctx, activeKey(job.Kind), 1, job.ID)
		pipe.Del(ctx, lockKey(job.Kind, job.ID))
		pipe.ZAdd(ctx, delayedKey(job.Kind), redis.Z{Score: float64(readyAt.UnixMilli()), Member: job.ID})
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("delay job %s: %w", job.ID, err)
		}
		return nil
	}

	job.Status = entity.JobStatusFailed
	job.FinishedAt = &now
	if err := q.writeJob(ctx, job, jobRecordRetention); err != nil {
		return err
	}
	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, activeKey(job.Kind), 1, job.ID)
	pipe.Del(ctx, lockKey(job.Kind, job.ID))
	pipe.ZAdd(ctx, failedKey(job.Kind), redis.Z{Score: float64(now.UnixMilli()), Member: job.ID})
	pipe.ZRemRangeByRank(ctx, failedKey(job.Kind), 0, int64(-(failedRetention + 1)))
	pipe.Publish(ctx, eventsKey(job.Kind), eventPayload(job))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("fail job %s: %w", job.ID, err)
	}
	return nil
}

// RunMaintenance starts the delayed-job promoter and the stalled-job
// reaper. Worker processes call it once; loops stop when ctx ends.
func (q *RedisQueue) RunMaintenance(ctx context.Context) {
	safego.Loop(ctx, q.logger, "queue-promoter", time.Second, func(ctx context.Context) {
		for _, kind := range entity.JobKinds() {
			q.promoteDue(ctx, kind)
		}
	})
	safego.Loop(ctx, q.logger, "queue-reaper", lockTTL, func(ctx context.Context) {
		for _, kind := range entity.JobKinds() {
			q.reapStalled(ctx, kind)
		}
	})
}

// promoteDue moves jobs whose backoff elapsed from the delayed ZSET back
// to their wait list. ZREM is the claim: with several workers promoting,
// only the one that removed the member requeues it.
func (q *RedisQueue) promoteDue(ctx context.Context, kind entity.JobKind) {
	nowMs := strconv.FormatInt(time.Now().UnixMilli(), 10)
	ids, err := q.client.ZRangeByScore(ctx, delayedKey(kind), &redis.ZRangeBy{
		Min: "-inf", Max: nowMs, Count: 128,
	}).Result()
	if err != nil {
		q.logger.Warn("Delayed scan failed", zap.String("kind", string(kind)), zap.Error(err))
		return
	}

	for _, id := range ids {
		removed, err := q.client.ZRem(ctx, delayedKey(kind), id).Result()
		if err != nil || removed == 0 {
			continue
		}
		job, err := q.readJob(ctx, kind, id)
		if err != nil {
			continue
		}
		job.Status = entity.JobStatusWaiting
		if err := q.writeJob(ctx, job, 0); err != nil {
			continue
		}
		q.client.LPush(ctx, waitKey(kind, job.Priority), id)
	}
}

// reapStalled returns active jobs whose lock lapsed to their wait list.
// The stalled attempt stays counted; a job that keeps stalling runs out
// of attempts like any other failure mode.
func (q *RedisQueue) reapStalled(ctx context.Context, kind entity.JobKind) {
	ids, err := q.client.LRange(ctx, activeKey(kind), 0, -1).Result()
	if err != nil {
		q.logger.Warn("Active scan failed", zap.String("kind", string(kind)), zap.Error(err))
		return
	}

	for _, id := range ids {
		exists, err := q.client.Exists(ctx, lockKey(kind, id)).Result()
		if err != nil || exists > 0 {
			continue
		}
		removed, err := q.client.LRem(ctx, activeKey(kind), 1, id).Result()
		if err != nil || removed == 0 {
			continue
		}
		job, err := q.readJob(ctx, kind, id)
		if err != nil {
			continue
		}
		job.Status = entity.JobStatusWaiting
		if err := q.writeJob(ctx, job, 0); err != nil {
			continue
		}
		q.client.LPush(ctx, waitKey(kind, job.Priority), id)
		q.logger.Warn("Returned stalled job to queue",
			zap.String("kind", string(kind)),
			zap.String("jobId", id),
			zap.Int("attemptsMade", job.AttemptsMade))
	}
}

func (q *RedisQueue) handle(job *entity.Job) *JobHandle {
	kind, id := job.Kind, job.ID
	return &JobHandle{
		JobID: id,
		Kind:  kind,
		await: func(ctx context.Context) (*entity.Job, error) {
			return q.awaitJob(ctx, kind, id)
		},
	}
}

// awaitJob blocks until the job is terminal. It subscribes to the kind's
// events channel before the first read so no terminal transition can slip
// between read and subscribe, and re-reads on a timer in case an event is
// lost anyway.
func (q *RedisQueue) awaitJob(ctx context.Context, kind entity.JobKind, id string) (*entity.Job, error) {
	sub := q.client.Subscribe(ctx, eventsKey(kind))
	defer sub.Close()
	events := sub.Channel()

	job, err := q.readJob(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if job.Terminal() {
		return job, nil
	}

	ticker := time.NewTicker(awaitPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case msg, ok := <-events:
			if !ok {
				return nil, domainErrors.NewStoreError("job events channel closed", nil)
			}
			var ev jobEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil || ev.ID != id {
				continue
			}
		case <-ticker.C:
		}

		job, err := q.readJob(ctx, kind, id)
		if err != nil {
			if domainErrors.IsNotFound(err) {
				return nil, err
			}
			q.logger.Warn("Await re-read failed", zap.String("jobId", id), zap.Error(err))
			continue
		}
		if job.Terminal() {
			return job, nil
		}
	}
}

func (q *RedisQueue) readJob(ctx context.Context, kind entity.JobKind, id string) (*entity.Job, error) {
	data, err := q.client.Get(ctx, jobKey(kind, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domainErrors.NewNotFoundError(fmt.Sprintf("job %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("read job %s: %w", id, err)
	}
	var job entity.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

func (q *RedisQueue) writeJob(ctx context.Context, job *entity.Job, ttl time.Duration) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	if err := q.client.Set(ctx, jobKey(job.Kind, job.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("store job %s: %w", job.ID, err)
	}
	return nil
}

func eventPayload(job *entity.Job) string {
	data, _ := json.Marshal(jobEvent{ID: job.ID, Status: job.Status})
	return string(data)
}
