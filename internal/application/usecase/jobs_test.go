package usecase_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mijoai/mijo-gateway/internal/application/usecase"
	"github.com/mijoai/mijo-gateway/internal/domain/entity"
	"github.com/mijoai/mijo-gateway/internal/infrastructure/queue"
	domainErrors "github.com/mijoai/mijo-gateway/pkg/errors"
)

func TestJobRunner_Generate_Success(t *testing.T) {
	q := queue.NewMemoryQueue(zap.NewNop())

	var gotPayload entity.LLMJobPayload
	runJobs(t, q, func(job *entity.Job) (any, *queue.Failure) {
		if job.Kind != entity.JobKindLLM {
			t.Errorf("Expected llm job, got %s", job.Kind)
		}
		if err := json.Unmarshal(job.Payload, &gotPayload); err != nil {
			t.Errorf("Failed to decode payload: %v", err)
		}
		return entity.GenerationResult{
			Text:     "أهلاً وسهلاً",
			Provider: "groq",
			Model:    "llama-3.3-70b-versatile",
		}, nil
	})

	runner := usecase.NewJobRunner(q)
	result, err := runner.Generate(context.Background(), entity.LLMJobPayload{
		Prompt:       "سؤال المستخدم",
		SystemPrompt: "أنت ميجو",
		MaxTokens:    500,
		Temperature:  0.5,
	}, entity.PriorityNormal)

	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if result.Text != "أهلاً وسهلاً" {
		t.Errorf("Expected generated text, got %q", result.Text)
	}
	if result.Provider != "groq" || result.Model != "llama-3.3-70b-versatile" {
		t.Errorf("Expected provider attribution, got %s/%s", result.Provider, result.Model)
	}
	if gotPayload.Prompt != "سؤال المستخدم" || gotPayload.SystemPrompt != "أنت ميجو" {
		t.Errorf("Payload did not round-trip: %+v", gotPayload)
	}
	if gotPayload.MaxTokens != 500 {
		t.Errorf("Expected maxTokens 500, got %d", gotPayload.MaxTokens)
	}
}

func TestJobRunner_Transcribe_Success(t *testing.T) {
	q := queue.NewMemoryQueue(zap.NewNop())

	runJobs(t, q, func(job *entity.Job) (any, *queue.Failure) {
		var payload entity.AudioJobPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			t.Errorf("Failed to decode payload: %v", err)
		}
		if payload.AudioURL != "voice-123.ogg" {
			t.Errorf("Expected audio key to pass through, got %q", payload.AudioURL)
		}
		return entity.TranscriptResult{Text: "مرحبا بالجميع", Provider: "deepgram", Model: "nova-2"}, nil
	})

	runner := usecase.NewJobRunner(q)
	result, err := runner.Transcribe(context.Background(), "voice-123.ogg", "", entity.PriorityHigh)

	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if result.Text != "مرحبا بالجميع" {
		t.Errorf("Expected transcript, got %q", result.Text)
	}
}

func TestJobRunner_FailedJob_MapsProviderError(t *testing.T) {
	q := queue.NewMemoryQueue(zap.NewNop())

	runJobs(t, q, func(job *entity.Job) (any, *queue.Failure) {
		return nil, &queue.Failure{Message: "all providers failed", Terminal: true}
	})

	runner := usecase.NewJobRunner(q)
	_, err := runner.Describe(context.Background(), "img-1.png", "", entity.PriorityNormal)

	if err == nil {
		t.Fatal("Expected an error for a failed job")
	}
	var appErr *domainErrors.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("Expected an AppError, got %T", err)
	}
	if appErr.Code != domainErrors.CodeProviderError {
		t.Errorf("Expected PROVIDER_ERROR, got %s", appErr.Code)
	}
	if appErr.Message != "all providers failed" {
		t.Errorf("Expected worker failure message, got %q", appErr.Message)
	}
}

func TestJobRunner_RateLimitedJob_KeepsRetryAfter(t *testing.T) {
	q := queue.NewMemoryQueue(zap.NewNop())

	// Terminal rate-limit failure, as the queue produces when the attempt
	// budget runs out while every provider is throttled.
	runJobs(t, q, func(job *entity.Job) (any, *queue.Failure) {
		return nil, &queue.Failure{
			Message:    "rate limited",
			RetryAfter: 7 * time.Second,
			Terminal:   true,
		}
	})

	runner := usecase.NewJobRunner(q)
	_, err := runner.Generate(context.Background(), entity.LLMJobPayload{Prompt: "x"}, entity.PriorityNormal)

	if err == nil {
		t.Fatal("Expected an error for a rate-limited job")
	}
	if !domainErrors.IsRateLimited(err) {
		t.Fatalf("Expected a rate-limited error, got %v", err)
	}
	if got := domainErrors.RetryAfterOf(err); got != 7*time.Second {
		t.Errorf("Expected retry-after 7s, got %v", got)
	}
}
