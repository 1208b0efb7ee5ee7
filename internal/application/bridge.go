package application

import (
	"context"

	"github.com/mijoai/mijo-gateway/internal/application/usecase"
	"github.com/mijoai/mijo-gateway/internal/domain/entity"
	"github.com/mijoai/mijo-gateway/internal/infrastructure/prompt"
)

// summaryBridge adapts *usecase.JobRunner → service.SummaryGenerator.
// Summary maintenance rides the same llm queue as user traffic, at low
// priority so it never delays interactive turns.
type summaryBridge struct {
	jobs *usecase.JobRunner
}

// Summarize implements service.SummaryGenerator.
func (b *summaryBridge) Summarize(ctx context.Context, promptText string, maxTokens int, temperature float32) (string, error) {
	result, err := b.jobs.Generate(ctx, entity.LLMJobPayload{
		Prompt:       promptText,
		SystemPrompt: prompt.SummarySystemPrompt,
		MaxTokens:    maxTokens,
		Temperature:  temperature,
	}, entity.PriorityLow)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}
