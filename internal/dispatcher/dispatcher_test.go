package dispatcher

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mijoai/mijo-gateway/internal/domain/entity"
	"github.com/mijoai/mijo-gateway/internal/infrastructure/provider"
	"github.com/mijoai/mijo-gateway/internal/infrastructure/queue"
	"github.com/mijoai/mijo-gateway/internal/infrastructure/ratelimit"
)

type fakeLimiter struct {
	mu         sync.Mutex
	decisions  map[string]ratelimit.Decision
	increments []string
}

func newFakeLimiter() *fakeLimiter {
	return &fakeLimiter{decisions: make(map[string]ratelimit.Decision)}
}

func (f *fakeLimiter) deny(providerName, service, reason string, retryAfter time.Duration) {
	f.decisions[providerName+"/"+service] = ratelimit.Decision{Reason: reason, RetryAfter: retryAfter}
}

func (f *fakeLimiter) Check(_ context.Context, providerName, service string) ratelimit.Decision {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.decisions[providerName+"/"+service]; ok {
		return d
	}
	return ratelimit.Decision{Allowed: true}
}

func (f *fakeLimiter) Increment(_ context.Context, providerName, service string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.increments = append(f.increments, providerName+"/"+service)
}

func (f *fakeLimiter) Status(context.Context) ([]ratelimit.ProviderStatus, error) {
	return nil, nil
}

func (f *fakeLimiter) StatusFor(context.Context, string, string) (ratelimit.ProviderStatus, error) {
	return ratelimit.ProviderStatus{}, nil
}

func (f *fakeLimiter) Reset(context.Context, string, string) error { return nil }

var _ ratelimit.Limiter = (*fakeLimiter)(nil)

type fakeTranscriber struct {
	name   string
	result *entity.TranscriptResult
	err    error
	calls  int
}

func (f *fakeTranscriber) Name() string { return f.name }

func (f *fakeTranscriber) Transcribe(context.Context, string, string) (*entity.TranscriptResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeGenerator struct {
	name   string
	result *entity.GenerationResult
	err    error
	block  bool
	calls  int
}

func (f *fakeGenerator) Name() string { return f.name }

func (f *fakeGenerator) Generate(ctx context.Context, _, _ string, _ provider.GenerateOptions) (*entity.GenerationResult, error) {
	f.calls++
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

var (
	_ provider.Transcriber   = (*fakeTranscriber)(nil)
	_ provider.TextGenerator = (*fakeGenerator)(nil)
)

func reserveAudio(t *testing.T, q *queue.MemoryQueue) (*queue.JobHandle, *entity.Job) {
	t.Helper()
	handle, err := q.Enqueue(context.Background(), entity.JobKindAudio,
		entity.AudioJobPayload{AudioURL: "a1", Language: "ar"}, queue.Options{})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	job, err := q.Reserve(context.Background(), entity.JobKindAudio)
	if err != nil || job == nil {
		t.Fatalf("Reserve failed: %v %v", job, err)
	}
	return handle, job
}

func reserveLLM(t *testing.T, q *queue.MemoryQueue, opts queue.Options) (*queue.JobHandle, *entity.Job) {
	t.Helper()
	handle, err := q.Enqueue(context.Background(), entity.JobKindLLM,
		entity.LLMJobPayload{Prompt: "سؤال", MaxTokens: 100, Temperature: 0.5}, opts)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	job, err := q.Reserve(context.Background(), entity.JobKindLLM)
	if err != nil || job == nil {
		t.Fatalf("Reserve failed: %v %v", job, err)
	}
	return handle, job
}

func TestServiceName(t *testing.T) {
	tests := []struct {
		provider string
		kind     entity.JobKind
		want     string
	}{
		{"groq", entity.JobKindAudio, "whisper"},
		{"deepgram", entity.JobKindAudio, "audio"},
		{"assemblyai", entity.JobKindAudio, "audio"},
		{"groq", entity.JobKindImage, "vision"},
		{"groq", entity.JobKindOCR, "vision"},
		{"gemini", entity.JobKindOCR, "vision"},
		{"groq", entity.JobKindLLM, "llm"},
		{"gemini", entity.JobKindLLM, "llm"},
	}
	for _, tt := range tests {
		if got := serviceName(tt.provider, tt.kind); got != tt.want {
			t.Errorf("serviceName(%q, %q) = %q, want %q", tt.provider, tt.kind, got, tt.want)
		}
	}
}

func TestExecuteCompletesWithPrimary(t *testing.T) {
	q := queue.NewMemoryQueue(nil)
	lim := newFakeLimiter()
	primary := &fakeTranscriber{name: "groq", result: &entity.TranscriptResult{Text: "مرحبا", Provider: "groq"}}
	backup := &fakeTranscriber{name: "deepgram", result: &entity.TranscriptResult{Text: "x", Provider: "deepgram"}}
	d := New(q, lim, Chains{Audio: []provider.Transcriber{primary, backup}}, nil)

	handle, job := reserveAudio(t, q)
	d.execute(context.Background(), job)

	final, err := handle.Await(context.Background())
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if final.Status != entity.JobStatusCompleted {
		t.Fatalf("status = %s, error = %q", final.Status, final.Error)
	}
	if backup.calls != 0 {
		t.Fatal("backup must not run when primary succeeds")
	}
	if len(lim.increments) != 1 || lim.increments[0] != "groq/whisper" {
		t.Fatalf("limiter increments = %v", lim.increments)
	}

	stats := d.Stats()
	if len(stats) != 2 || stats[0].Provider != "groq" || stats[0].TotalCalls != 1 || stats[0].FailureCount != 0 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestExecuteFallsBackOnProviderError(t *testing.T) {
	q := queue.NewMemoryQueue(nil)
	lim := newFakeLimiter()
	primary := &fakeGenerator{name: "groq", err: errors.New("groq generation: boom")}
	backup := &fakeGenerator{name: "gemini", result: &entity.GenerationResult{Text: "إجابة", Provider: "gemini"}}
	d := New(q, lim, Chains{LLM: []provider.TextGenerator{primary, backup}}, nil)

	handle, job := reserveLLM(t, q, queue.Options{})
	d.execute(context.Background(), job)

	final, err := handle.Await(context.Background())
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if final.Status != entity.JobStatusCompleted {
		t.Fatalf("status = %s, error = %q", final.Status, final.Error)
	}
	if primary.calls != 1 || backup.calls != 1 {
		t.Fatalf("calls: primary %d backup %d", primary.calls, backup.calls)
	}
	// Only the succeeding provider consumes quota.
	if len(lim.increments) != 1 || lim.increments[0] != "gemini/llm" {
		t.Fatalf("limiter increments = %v", lim.increments)
	}

	for _, s := range d.Stats() {
		if s.Provider == "groq" && s.FailureCount != 1 {
			t.Fatalf("groq failure not recorded: %+v", s)
		}
	}
}

func TestExecuteSkipsRateLimitedProviderWithoutFailure(t *testing.T) {
	q := queue.NewMemoryQueue(nil)
	lim := newFakeLimiter()
	lim.deny("groq", "llm", "minute limit reached", 17*time.Second)
	primary := &fakeGenerator{name: "groq", result: &entity.GenerationResult{Text: "x"}}
	backup := &fakeGenerator{name: "gemini", result: &entity.GenerationResult{Text: "إجابة"}}
	d := New(q, lim, Chains{LLM: []provider.TextGenerator{primary, backup}}, nil)

	handle, job := reserveLLM(t, q, queue.Options{})
	d.execute(context.Background(), job)

	final, err := handle.Await(context.Background())
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if final.Status != entity.JobStatusCompleted {
		t.Fatalf("status = %s, error = %q", final.Status, final.Error)
	}
	if primary.calls != 0 {
		t.Fatal("denied provider must not be invoked")
	}
	if final.AttemptsMade != 1 {
		t.Fatalf("denial must not burn extra attempts, attemptsMade = %d", final.AttemptsMade)
	}
	// A skip is not a failure in the provider stats.
	for _, s := range d.Stats() {
		if s.Provider == "groq" && (s.TotalCalls != 0 || s.FailureCount != 0) {
			t.Fatalf("denied provider counted a call: %+v", s)
		}
	}
}

func TestExecuteAllDeniedDelaysWithLargestRetryAfter(t *testing.T) {
	q := queue.NewMemoryQueue(nil)
	lim := newFakeLimiter()
	lim.deny("groq", "llm", "minute limit reached", 40*time.Second)
	lim.deny("gemini", "llm", "day limit reached", 90*time.Second)
	primary := &fakeGenerator{name: "groq"}
	backup := &fakeGenerator{name: "gemini"}
	d := New(q, lim, Chains{LLM: []provider.TextGenerator{primary, backup}}, nil)

	_, job := reserveLLM(t, q, queue.Options{})
	d.execute(context.Background(), job)

	stored, err := q.Job(context.Background(), entity.JobKindLLM, job.ID)
	if err != nil {
		t.Fatalf("Job failed: %v", err)
	}
	if stored.Status != entity.JobStatusDelayed {
		t.Fatalf("status = %s", stored.Status)
	}
	if stored.Error != "all providers rate limited" {
		t.Fatalf("error = %q", stored.Error)
	}
	if stored.RetryAfterMs != 90000 {
		t.Fatalf("retryAfterMs = %d, want the largest window", stored.RetryAfterMs)
	}
	if primary.calls != 0 || backup.calls != 0 {
		t.Fatal("no provider may be invoked when all are denied")
	}
}

func TestExecuteExhaustedChainFailsWithLastError(t *testing.T) {
	q := queue.NewMemoryQueue(nil)
	lim := newFakeLimiter()
	primary := &fakeGenerator{name: "groq", err: errors.New("groq generation: 500")}
	backup := &fakeGenerator{name: "gemini", err: errors.New("gemini generation: quota exceeded")}
	d := New(q, lim, Chains{LLM: []provider.TextGenerator{primary, backup}}, nil)

	_, job := reserveLLM(t, q, queue.Options{})
	d.execute(context.Background(), job)

	stored, err := q.Job(context.Background(), entity.JobKindLLM, job.ID)
	if err != nil {
		t.Fatalf("Job failed: %v", err)
	}
	if stored.Status != entity.JobStatusDelayed {
		t.Fatalf("first attempt should delay for retry, status = %s", stored.Status)
	}
	if !strings.Contains(stored.Error, "all providers failed") || !strings.Contains(stored.Error, "gemini generation") {
		t.Fatalf("error must name the last failure, got %q", stored.Error)
	}
	if len(lim.increments) != 0 {
		t.Fatalf("failed calls must not consume quota: %v", lim.increments)
	}
}

func TestExecuteTimeoutFailsTerminally(t *testing.T) {
	q := queue.NewMemoryQueue(nil)
	lim := newFakeLimiter()
	slow := &fakeGenerator{name: "groq", block: true}
	backup := &fakeGenerator{name: "gemini", result: &entity.GenerationResult{Text: "x"}}
	d := New(q, lim, Chains{LLM: []provider.TextGenerator{slow, backup}}, nil)

	_, job := reserveLLM(t, q, queue.Options{TimeoutMs: 50})
	d.execute(context.Background(), job)

	stored, err := q.Job(context.Background(), entity.JobKindLLM, job.ID)
	if err != nil {
		t.Fatalf("Job failed: %v", err)
	}
	if stored.Status != entity.JobStatusFailed {
		t.Fatalf("timeout must fail terminally, status = %s", stored.Status)
	}
	if !strings.Contains(stored.Error, "timed out") {
		t.Fatalf("error = %q", stored.Error)
	}
	if backup.calls != 0 {
		t.Fatal("chain must stop once the job deadline passed")
	}
}

func TestExecuteMalformedPayloadFailsTerminally(t *testing.T) {
	q := queue.NewMemoryQueue(nil)
	d := New(q, newFakeLimiter(), Chains{LLM: []provider.TextGenerator{
		&fakeGenerator{name: "groq", result: &entity.GenerationResult{Text: "x"}},
	}}, nil)

	if _, err := q.Enqueue(context.Background(), entity.JobKindLLM, "not-an-object", queue.Options{}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	job, _ := q.Reserve(context.Background(), entity.JobKindLLM)
	if job == nil {
		t.Fatal("expected a job")
	}
	d.execute(context.Background(), job)

	stored, err := q.Job(context.Background(), entity.JobKindLLM, job.ID)
	if err != nil {
		t.Fatalf("Job failed: %v", err)
	}
	if stored.Status != entity.JobStatusFailed {
		t.Fatalf("malformed payload must fail terminally, status = %s", stored.Status)
	}
	if !strings.Contains(stored.Error, "decode llm payload") {
		t.Fatalf("error = %q", stored.Error)
	}
}
