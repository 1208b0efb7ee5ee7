package usecase

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mijoai/mijo-gateway/internal/domain/entity"
	"github.com/mijoai/mijo-gateway/internal/infrastructure/queue"
	domainErrors "github.com/mijoai/mijo-gateway/pkg/errors"
)

// JobRunner pushes provider work through the queue and blocks for the
// decoded result. Every AI call in the gateway takes this path so the
// rate limiter and the fallback chains see all traffic, including the
// synchronous HTTP endpoints.
type JobRunner struct {
	queue queue.Queue
}

// NewJobRunner creates a queue-backed job runner.
func NewJobRunner(q queue.Queue) *JobRunner {
	return &JobRunner{queue: q}
}

// Transcribe runs an audio transcription job.
func (r *JobRunner) Transcribe(ctx context.Context, audioURL, language string, priority entity.JobPriority) (*entity.TranscriptResult, error) {
	job, err := r.run(ctx, entity.JobKindAudio,
		entity.AudioJobPayload{AudioURL: audioURL, Language: language}, priority)
	if err != nil {
		return nil, err
	}
	var result entity.TranscriptResult
	if err := json.Unmarshal(job.Result, &result); err != nil {
		return nil, domainErrors.NewInternalErrorWithCause("failed to decode transcription result", err)
	}
	return &result, nil
}

// Describe runs an image description job.
func (r *JobRunner) Describe(ctx context.Context, imageURL, prompt string, priority entity.JobPriority) (*entity.DescriptionResult, error) {
	job, err := r.run(ctx, entity.JobKindImage,
		entity.ImageJobPayload{ImageURL: imageURL, Prompt: prompt}, priority)
	if err != nil {
		return nil, err
	}
	var result entity.DescriptionResult
	if err := json.Unmarshal(job.Result, &result); err != nil {
		return nil, domainErrors.NewInternalErrorWithCause("failed to decode description result", err)
	}
	return &result, nil
}

// ExtractText runs an image OCR job.
func (r *JobRunner) ExtractText(ctx context.Context, imageURL string, languages []string, priority entity.JobPriority) (*entity.OCRResult, error) {
	job, err := r.run(ctx, entity.JobKindOCR,
		entity.OCRJobPayload{ImageURL: imageURL, Languages: languages}, priority)
	if err != nil {
		return nil, err
	}
	var result entity.OCRResult
	if err := json.Unmarshal(job.Result, &result); err != nil {
		return nil, domainErrors.NewInternalErrorWithCause("failed to decode ocr result", err)
	}
	return &result, nil
}

// Generate runs a text generation job.
func (r *JobRunner) Generate(ctx context.Context, payload entity.LLMJobPayload, priority entity.JobPriority) (*entity.GenerationResult, error) {
	job, err := r.run(ctx, entity.JobKindLLM, payload, priority)
	if err != nil {
		return nil, err
	}
	var result entity.GenerationResult
	if err := json.Unmarshal(job.Result, &result); err != nil {
		return nil, domainErrors.NewInternalErrorWithCause("failed to decode generation result", err)
	}
	return &result, nil
}

// run enqueues one job and awaits its terminal status. Worker failures
// come back as typed application errors so the HTTP layer can map them:
// a job that died rate-limited keeps its retry-after window.
func (r *JobRunner) run(ctx context.Context, kind entity.JobKind, payload any, priority entity.JobPriority) (*entity.Job, error) {
	handle, err := r.queue.Enqueue(ctx, kind, payload, queue.Options{Priority: priority})
	if err != nil {
		return nil, domainErrors.NewStoreError("failed to enqueue job", err)
	}

	job, err := handle.Await(ctx)
	if err != nil {
		return nil, domainErrors.NewInternalErrorWithCause("failed to observe job outcome", err)
	}
	if job.Status == entity.JobStatusFailed {
		if job.RetryAfterMs > 0 {
			return nil, domainErrors.NewRateLimitedError(job.Error,
				time.Duration(job.RetryAfterMs)*time.Millisecond)
		}
		return nil, domainErrors.NewProviderError(job.Error, nil)
	}
	return job, nil
}
