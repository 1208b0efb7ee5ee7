package service

import (
	"context"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/mijoai/mijo-gateway/internal/domain/entity"
	"github.com/mijoai/mijo-gateway/internal/domain/repository"
	"github.com/mijoai/mijo-gateway/internal/infrastructure/prompt"
)

const (
	// summaryTemperature keeps merges conservative; the model must fold
	// facts in, not restyle the summary on every message.
	summaryTemperature float32 = 0.2

	summaryMaxTokens = 1024

	// condenseThreshold 短消息直接作为摘要种子, 长消息先经模型压缩
	condenseThreshold = 200
)

// SummaryGenerator 摘要文本生成端口
// 应用层将其适配为低优先级 llm 任务, 摘要从不与交互请求争抢工作池
type SummaryGenerator interface {
	Summarize(ctx context.Context, promptText string, maxTokens int, temperature float32) (string, error)
}

// Summarizer 滚动摘要领域服务
// 每条入库消息触发一次房间摘要更新, 发送者已知时再触发一次用户画像更新
// 摘要是尽力而为的后台工作: 任何一步失败只记日志, 不影响消息入库
type Summarizer struct {
	aggregates repository.AggregateRepository
	generator  SummaryGenerator
	logger     *zap.Logger
}

// NewSummarizer 创建滚动摘要服务
func NewSummarizer(aggregates repository.AggregateRepository, generator SummaryGenerator, logger *zap.Logger) *Summarizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Summarizer{
		aggregates: aggregates,
		generator:  generator,
		logger:     logger.With(zap.String("component", "summarizer")),
	}
}

// UpdateRoomSummary 将一条新消息并入房间滚动摘要
func (s *Summarizer) UpdateRoomSummary(ctx context.Context, roomID, newText, senderName string) {
	agg, err := s.aggregates.GetRoom(ctx, roomID)
	if err != nil {
		s.logger.Warn("Loading room aggregate failed",
			zap.String("room_id", roomID),
			zap.Error(err))
		return
	}
	if agg == nil {
		if agg, err = entity.NewRoomAggregate(roomID); err != nil {
			s.logger.Warn("Creating room aggregate failed", zap.Error(err))
			return
		}
	}

	summary, err := s.nextSummary(ctx, agg.Summary, newText, senderName,
		prompt.MergeRoomSummary, prompt.CondenseRoomMessage)
	if err != nil {
		s.logger.Warn("Room summary generation failed",
			zap.String("room_id", roomID),
			zap.Error(err))
		return
	}

	agg.ApplySummary(summary)
	if err := s.aggregates.SaveRoom(ctx, agg); err != nil {
		s.logger.Warn("Saving room aggregate failed",
			zap.String("room_id", roomID),
			zap.Error(err))
		return
	}
	s.logger.Debug("Room summary updated",
		zap.String("room_id", roomID),
		zap.Int64("message_count", agg.MessageCount),
		zap.Int("summary_runes", utf8.RuneCountInString(agg.Summary)))
}

// UpdateUserPersonalization 将一条新消息并入用户画像摘要
func (s *Summarizer) UpdateUserPersonalization(ctx context.Context, userID, newText, senderName string) {
	agg, err := s.aggregates.GetUser(ctx, userID)
	if err != nil {
		s.logger.Warn("Loading user aggregate failed",
			zap.String("user_id", userID),
			zap.Error(err))
		return
	}
	if agg == nil {
		if agg, err = entity.NewUserAggregate(userID); err != nil {
			s.logger.Warn("Creating user aggregate failed", zap.Error(err))
			return
		}
	}

	summary, err := s.nextSummary(ctx, agg.PersonalizationSummary, newText, senderName,
		prompt.MergeUserPersonalization, prompt.CondenseUserMessage)
	if err != nil {
		s.logger.Warn("User personalization generation failed",
			zap.String("user_id", userID),
			zap.Error(err))
		return
	}

	agg.ApplySummary(summary)
	if err := s.aggregates.SaveUser(ctx, agg); err != nil {
		s.logger.Warn("Saving user aggregate failed",
			zap.String("user_id", userID),
			zap.Error(err))
	}
}

// nextSummary picks the update strategy: merge into an existing summary
// through the model, condense a long first message through the model, or
// seed a short first message verbatim with sender attribution.
func (s *Summarizer) nextSummary(ctx context.Context, prior, newText, senderName string,
	merge func(prior, newText, senderName string) string,
	condense func(newText, senderName string) string) (string, error) {

	switch {
	case prior != "":
		return s.generator.Summarize(ctx, merge(prior, newText, senderName), summaryMaxTokens, summaryTemperature)
	case utf8.RuneCountInString(newText) > condenseThreshold:
		return s.generator.Summarize(ctx, condense(newText, senderName), summaryMaxTokens, summaryTemperature)
	default:
		return prompt.Attributed(newText, senderName), nil
	}
}
