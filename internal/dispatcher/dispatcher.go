// Package dispatcher drains the job queues through ordered provider
// chains. One fixed-size worker pool per job kind; each job walks its
// chain until a provider succeeds, skipping providers the rate limiter
// denies without burning the attempt.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mijoai/mijo-gateway/internal/domain/entity"
	"github.com/mijoai/mijo-gateway/internal/infrastructure/provider"
	"github.com/mijoai/mijo-gateway/internal/infrastructure/queue"
	"github.com/mijoai/mijo-gateway/internal/infrastructure/ratelimit"
	"github.com/mijoai/mijo-gateway/pkg/safego"
)

const (
	// idlePollInterval paces Reserve calls on an empty queue.
	idlePollInterval = 300 * time.Millisecond

	// heartbeatInterval renews the job lock while a provider call runs.
	heartbeatInterval = 10 * time.Second
)

// Chains holds the ordered provider fallbacks per job kind. Order is
// significant: the first entry is the primary.
type Chains struct {
	Audio []provider.Transcriber
	Image []provider.ImageDescriber
	OCR   []provider.TextExtractor
	LLM   []provider.TextGenerator
}

// poolSize is the fixed worker count per kind.
func poolSize(kind entity.JobKind) int {
	switch kind {
	case entity.JobKindAudio:
		return 3
	case entity.JobKindImage:
		return 5
	case entity.JobKindOCR:
		return 5
	case entity.JobKindLLM:
		return 4
	default:
		return 1
	}
}

// providerStats tracks per-provider performance metrics.
type providerStats struct {
	TotalCalls   int64
	FailureCount int64
	LastLatency  time.Duration
}

// ProviderCallStats is the JSON-facing view of one provider's counters.
type ProviderCallStats struct {
	Provider      string  `json:"provider"`
	TotalCalls    int64   `json:"total_calls"`
	FailureCount  int64   `json:"failure_count"`
	LastLatencyMs float64 `json:"last_latency_ms"`
}

// Dispatcher owns the worker pools of one process.
type Dispatcher struct {
	consumer queue.Consumer
	limiter  ratelimit.Limiter
	chains   Chains
	logger   *zap.Logger

	mu    sync.RWMutex
	order []string
	stats map[string]*providerStats
}

func New(consumer queue.Consumer, limiter ratelimit.Limiter, chains Chains, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		consumer: consumer,
		limiter:  limiter,
		chains:   chains,
		logger:   logger.With(zap.String("component", "dispatcher")),
		stats:    make(map[string]*providerStats),
	}
	for _, t := range chains.Audio {
		d.register(t.Name())
	}
	for _, p := range chains.Image {
		d.register(p.Name())
	}
	for _, p := range chains.OCR {
		d.register(p.Name())
	}
	for _, p := range chains.LLM {
		d.register(p.Name())
	}
	return d
}

func (d *Dispatcher) register(name string) {
	if _, ok := d.stats[name]; ok {
		return
	}
	d.order = append(d.order, name)
	d.stats[name] = &providerStats{}
}

// Run starts every worker pool. Workers stop when ctx ends; in-flight
// jobs run to completion or timeout first.
func (d *Dispatcher) Run(ctx context.Context) {
	for _, kind := range entity.JobKinds() {
		if len(d.linksTemplate(kind)) == 0 {
			d.logger.Warn("No providers configured, pool not started",
				zap.String("kind", string(kind)))
			continue
		}
		for i := 0; i < poolSize(kind); i++ {
			name := fmt.Sprintf("worker-%s-%d", kind, i)
			safego.Go(d.logger, name, func() {
				d.workerLoop(ctx, kind)
			})
		}
		d.logger.Info("Worker pool started",
			zap.String("kind", string(kind)),
			zap.Int("size", poolSize(kind)))
	}
}

func (d *Dispatcher) workerLoop(ctx context.Context, kind entity.JobKind) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := d.consumer.Reserve(ctx, kind)
		if err != nil {
			d.logger.Warn("Reserve failed",
				zap.String("kind", string(kind)),
				zap.Error(err))
			sleep(ctx, time.Second)
			continue
		}
		if job == nil {
			sleep(ctx, idlePollInterval)
			continue
		}
		d.execute(ctx, job)
	}
}

// execute walks the provider chain for one reserved job.
func (d *Dispatcher) execute(ctx context.Context, job *entity.Job) {
	jobCtx, cancel := context.WithTimeout(ctx, job.Timeout())
	defer cancel()

	stopHeartbeat := d.startHeartbeat(jobCtx, job)
	defer stopHeartbeat()

	links, err := d.links(job)
	if err != nil {
		d.failJob(ctx, job, queue.Failure{Message: err.Error(), Terminal: true})
		return
	}

	var lastErr error
	var largestRetryAfter time.Duration
	denied := 0

	for _, l := range links {
		if jobCtx.Err() != nil {
			break
		}

		decision := d.limiter.Check(jobCtx, l.provider, l.service)
		if !decision.Allowed {
			denied++
			if decision.RetryAfter > largestRetryAfter {
				largestRetryAfter = decision.RetryAfter
			}
			d.logger.Info("Provider rate limited, trying next",
				zap.String("provider", l.provider),
				zap.String("service", l.service),
				zap.String("reason", decision.Reason),
				zap.Duration("retry_after", decision.RetryAfter))
			continue
		}

		start := time.Now()
		result, err := l.invoke(jobCtx)
		latency := time.Since(start)
		d.recordCall(l.provider, latency, err)

		if err != nil {
			lastErr = err
			d.logger.Warn("Provider failed, trying next",
				zap.String("provider", l.provider),
				zap.String("kind", string(job.Kind)),
				zap.String("job_id", job.ID),
				zap.String("failure", string(provider.ClassifyError(err))),
				zap.Duration("latency", latency),
				zap.Error(err))
			continue
		}

		d.limiter.Increment(jobCtx, l.provider, l.service)
		if err := d.consumer.Complete(ctx, job, result); err != nil {
			d.logger.Error("Completing job failed",
				zap.String("job_id", job.ID),
				zap.Error(err))
		}
		return
	}

	var failure queue.Failure
	switch {
	case errors.Is(jobCtx.Err(), context.DeadlineExceeded):
		// A timed-out job fails for good; retrying would block a worker
		// for another full timeout window.
		failure = queue.Failure{
			Message:  fmt.Sprintf("job timed out after %s", job.Timeout()),
			Terminal: true,
		}
	case lastErr != nil:
		failure = queue.Failure{Message: fmt.Sprintf("all providers failed, last error: %v", lastErr)}
	case denied > 0:
		failure = queue.Failure{Message: "all providers rate limited", RetryAfter: largestRetryAfter}
	default:
		failure = queue.Failure{
			Message:  fmt.Sprintf("no provider configured for %s jobs", job.Kind),
			Terminal: true,
		}
	}
	d.failJob(ctx, job, failure)
}

func (d *Dispatcher) failJob(ctx context.Context, job *entity.Job, failure queue.Failure) {
	if err := d.consumer.Fail(ctx, job, failure); err != nil {
		d.logger.Error("Failing job failed",
			zap.String("job_id", job.ID),
			zap.Error(err))
	}
}

// startHeartbeat renews the job lock until the returned stop function is
// called. Without it a long provider call would look stalled to the
// reaper and the job would run twice.
func (d *Dispatcher) startHeartbeat(ctx context.Context, job *entity.Job) func() {
	done := make(chan struct{})
	safego.Go(d.logger, "heartbeat-"+job.ID, func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := d.consumer.Heartbeat(ctx, job); err != nil {
					d.logger.Debug("Heartbeat failed",
						zap.String("job_id", job.ID),
						zap.Error(err))
				}
			}
		}
	})
	return func() { close(done) }
}

func (d *Dispatcher) recordCall(name string, latency time.Duration, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.stats[name]
	if !ok {
		return
	}
	s.TotalCalls++
	s.LastLatency = latency
	if err != nil {
		s.FailureCount++
	}
}

// Stats returns per-provider call counters in registration order.
func (d *Dispatcher) Stats() []ProviderCallStats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	result := make([]ProviderCallStats, 0, len(d.order))
	for _, name := range d.order {
		s := d.stats[name]
		result = append(result, ProviderCallStats{
			Provider:      name,
			TotalCalls:    s.TotalCalls,
			FailureCount:  s.FailureCount,
			LastLatencyMs: float64(s.LastLatency) / float64(time.Millisecond),
		})
	}
	return result
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
