package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mijoai/mijo-gateway/internal/domain/entity"
	"github.com/mijoai/mijo-gateway/internal/domain/service"
	"github.com/mijoai/mijo-gateway/internal/infrastructure/prompt"
	domainErrors "github.com/mijoai/mijo-gateway/pkg/errors"
)

const (
	replyMaxTokens   = 1000
	replyTemperature = float32(0.6)
)

// ReplyInput 一次代笔回复请求
// MessageID 为目标消息的 externalMessageId
type ReplyInput struct {
	RoomID    string
	SenderID  string
	MessageID string
}

// TargetMessageInfo echoes the message the reply was drafted for.
type TargetMessageInfo struct {
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ReplyOutput 代笔回复响应
type ReplyOutput struct {
	Answer          string            `json:"answer"`
	SuggestedAnswer string            `json:"suggestedAnswer"`
	Provider        string            `json:"provider"`
	Model           string            `json:"model"`
	TargetMessage   TargetMessageInfo `json:"targetMessage"`
	Context         ContextInfo       `json:"context"`
	Metadata        CallMetadata      `json:"metadata"`
}

// ReplyUseCase drafts a reply to a specific room message in the sender's
// own voice. Nothing is persisted: the draft belongs to the user until
// they send it as a regular message.
type ReplyUseCase struct {
	assembler *service.Assembler
	jobs      *JobRunner
	logger    *zap.Logger
}

// NewReplyUseCase creates the reply use-case.
func NewReplyUseCase(assembler *service.Assembler, jobs *JobRunner, logger *zap.Logger) *ReplyUseCase {
	return &ReplyUseCase{
		assembler: assembler,
		jobs:      jobs,
		logger:    logger.With(zap.String("component", "reply")),
	}
}

// Execute drafts one reply. Target preconditions fail before any LLM work:
// a missing target is NOT_FOUND and replying to yourself is FORBIDDEN.
func (uc *ReplyUseCase) Execute(ctx context.Context, input ReplyInput) (*ReplyOutput, error) {
	if input.RoomID == "" {
		return nil, domainErrors.NewInvalidInputError("roomId is required")
	}
	if input.SenderID == "" {
		return nil, domainErrors.NewInvalidInputError("senderId is required")
	}
	if input.MessageID == "" {
		return nil, domainErrors.NewInvalidInputError("messageId is required")
	}

	start := time.Now()

	// 1. Assemble context around the target message.
	cc, err := uc.assembler.AssembleReply(ctx, input.RoomID, input.SenderID, input.MessageID)
	if err != nil {
		return nil, err
	}
	contextMs := time.Since(start).Milliseconds()
	target := cc.TargetMessage

	// 2. Generate through the queue.
	promptText := prompt.Reply(promptInputFrom(cc), prompt.Message{
		SenderName: target.SenderName,
		Content:    target.Content,
		CreatedAt:  target.CreatedAt,
		Target:     true,
	})
	genStart := time.Now()
	gen, err := uc.jobs.Generate(ctx, entity.LLMJobPayload{
		Prompt:       promptText,
		SystemPrompt: prompt.ReplySystemPrompt,
		MaxTokens:    replyMaxTokens,
		Temperature:  replyTemperature,
	}, entity.PriorityNormal)
	if err != nil {
		return nil, err
	}
	generationMs := time.Since(genStart).Milliseconds()

	// 3. Recover the structured answer.
	parsed := service.ParseAnswer(gen.Text)

	uc.logger.Info("Reply drafted",
		zap.String("room_id", input.RoomID),
		zap.String("sender_id", input.SenderID),
		zap.String("target_message_id", input.MessageID),
		zap.String("provider", gen.Provider),
		zap.Int64("generation_ms", generationMs))

	return &ReplyOutput{
		Answer:          parsed.Answer,
		SuggestedAnswer: parsed.SuggestedAnswer,
		Provider:        gen.Provider,
		Model:           gen.Model,
		TargetMessage: TargetMessageInfo{
			SenderID:   target.SenderID,
			SenderName: target.SenderName,
			Content:    target.Content,
			CreatedAt:  target.CreatedAt,
		},
		Context: contextInfoFrom(cc),
		Metadata: CallMetadata{
			ProcessingTimeMs: time.Since(start).Milliseconds(),
			ContextMs:        contextMs,
			GenerationMs:     generationMs,
		},
	}, nil
}
