package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mijoai/mijo-gateway/internal/domain/entity"
	"github.com/mijoai/mijo-gateway/internal/domain/identity"
	"github.com/mijoai/mijo-gateway/internal/domain/repository"
	"github.com/mijoai/mijo-gateway/internal/domain/service"
	"github.com/mijoai/mijo-gateway/internal/infrastructure/prompt"
	domainErrors "github.com/mijoai/mijo-gateway/pkg/errors"
	"github.com/mijoai/mijo-gateway/pkg/safego"
)

const (
	chatMaxTokens   = 1500
	chatTemperature = float32(0.5)

	// persistTimeout bounds the detached history insert after the
	// response has gone out.
	persistTimeout = 30 * time.Second
)

// ChatInput 一次对话请求
type ChatInput struct {
	RoomID   string
	UserID   string
	Question string
}

// ContextInfo tells the caller which context sections actually backed
// the answer.
type ContextInfo struct {
	HasRoomSummary      bool `json:"hasRoomSummary"`
	HasUserSummary      bool `json:"hasUserSummary"`
	AIChatHistoryCount  int  `json:"aiChatHistoryCount"`
	LatestMessagesCount int  `json:"latestMessagesCount"`
	Quality             int  `json:"quality"`
}

// CallMetadata carries per-phase timings for one generative request.
type CallMetadata struct {
	ProcessingTimeMs int64 `json:"processingTimeMs"`
	ContextMs        int64 `json:"contextMs"`
	GenerationMs     int64 `json:"generationMs"`
}

// ChatOutput 对话响应
type ChatOutput struct {
	Answer          string       `json:"answer"`
	SuggestedAnswer string       `json:"suggestedAnswer"`
	Provider        string       `json:"provider"`
	Model           string       `json:"model"`
	Context         ContextInfo  `json:"context"`
	Metadata        CallMetadata `json:"metadata"`
}

// ChatUseCase answers a user's question grounded in the room's and the
// user's accumulated context.
type ChatUseCase struct {
	assembler *service.Assembler
	jobs      *JobRunner
	history   repository.ChatHistoryRepository
	logger    *zap.Logger
}

// NewChatUseCase creates the chat use-case.
func NewChatUseCase(
	assembler *service.Assembler,
	jobs *JobRunner,
	history repository.ChatHistoryRepository,
	logger *zap.Logger,
) *ChatUseCase {
	return &ChatUseCase{
		assembler: assembler,
		jobs:      jobs,
		history:   history,
		logger:    logger.With(zap.String("component", "chat")),
	}
}

// Execute runs one chat turn. The conversation record is persisted in the
// background only after a successful generation; a failed turn leaves no
// trace in the history.
func (uc *ChatUseCase) Execute(ctx context.Context, input ChatInput) (*ChatOutput, error) {
	if input.RoomID == "" {
		return nil, domainErrors.NewInvalidInputError("roomId is required")
	}
	if input.UserID == "" {
		return nil, domainErrors.NewInvalidInputError("userId is required")
	}
	if input.Question == "" {
		return nil, domainErrors.NewInvalidInputError("userQuestion is required")
	}

	start := time.Now()

	// 1. Assemble context.
	cc, err := uc.assembler.AssembleChat(ctx, input.RoomID, input.UserID)
	if err != nil {
		return nil, err
	}
	contextMs := time.Since(start).Milliseconds()

	// 2. Generate through the queue.
	promptText := prompt.Chat(promptInputFrom(cc), input.Question)
	genStart := time.Now()
	gen, err := uc.jobs.Generate(ctx, entity.LLMJobPayload{
		Prompt:       promptText,
		SystemPrompt: prompt.ChatSystemPrompt,
		MaxTokens:    chatMaxTokens,
		Temperature:  chatTemperature,
	}, entity.PriorityNormal)
	if err != nil {
		return nil, err
	}
	generationMs := time.Since(genStart).Milliseconds()

	// 3. Recover the structured answer.
	parsed := service.ParseAnswer(gen.Text)

	// 4. Persist the exchange without blocking the response.
	uc.recordExchange(input, parsed, gen)

	uc.logger.Info("Chat turn completed",
		zap.String("room_id", input.RoomID),
		zap.String("user_id", input.UserID),
		zap.String("provider", gen.Provider),
		zap.Int64("context_ms", contextMs),
		zap.Int64("generation_ms", generationMs))

	return &ChatOutput{
		Answer:          parsed.Answer,
		SuggestedAnswer: parsed.SuggestedAnswer,
		Provider:        gen.Provider,
		Model:           gen.Model,
		Context:         contextInfoFrom(cc),
		Metadata: CallMetadata{
			ProcessingTimeMs: time.Since(start).Milliseconds(),
			ContextMs:        contextMs,
			GenerationMs:     generationMs,
		},
	}, nil
}

// recordExchange writes the AIChatRecord in a detached goroutine. Failures
// are logged only; the user already has the answer.
func (uc *ChatUseCase) recordExchange(input ChatInput, parsed service.ParsedAnswer, gen *entity.GenerationResult) {
	record, err := entity.NewAIChatRecord(identity.NewChatRecordID(),
		input.UserID, input.RoomID, input.Question, parsed.Answer)
	if err != nil {
		uc.logger.Warn("Failed to build chat record", zap.Error(err))
		return
	}
	record.SuggestedAnswer = parsed.SuggestedAnswer
	record.Provider = gen.Provider
	record.Model = gen.Model

	safego.Go(uc.logger, "chat-history-insert", func() {
		bg, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := uc.history.Insert(bg, record); err != nil {
			uc.logger.Warn("Failed to persist chat record",
				zap.String("room_id", record.RoomID),
				zap.String("user_id", record.UserID),
				zap.Error(err))
		}
	})
}

// promptInputFrom maps assembled context onto the prompt builder's input.
// Order is preserved as fetched (newest-first); the builder handles any
// re-ordering it needs.
func promptInputFrom(cc *service.ChatContext) prompt.Input {
	in := prompt.Input{
		RoomSummary: cc.RoomSummary,
		UserProfile: cc.UserProfile,
		Now:         time.Now().UTC(),
	}
	for _, chat := range cc.PriorChats {
		in.PriorChats = append(in.PriorChats, prompt.Turn{
			Question: chat.Question,
			Answer:   chat.Answer,
		})
	}
	for _, msg := range cc.RecentMessages {
		in.RecentMessages = append(in.RecentMessages, prompt.Message{
			SenderName: msg.SenderName,
			Content:    msg.Content,
			CreatedAt:  msg.CreatedAt,
			Target:     cc.TargetMessage != nil && cc.TargetMessage.ID == msg.ID,
		})
	}
	return in
}

func contextInfoFrom(cc *service.ChatContext) ContextInfo {
	return ContextInfo{
		HasRoomSummary:      cc.RoomSummary != "",
		HasUserSummary:      cc.UserProfile != "",
		AIChatHistoryCount:  len(cc.PriorChats),
		LatestMessagesCount: len(cc.RecentMessages),
		Quality:             cc.Quality(),
	}
}
