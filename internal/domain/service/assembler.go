package service

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mijoai/mijo-gateway/internal/domain/entity"
	"github.com/mijoai/mijo-gateway/internal/domain/repository"
	domainErrors "github.com/mijoai/mijo-gateway/pkg/errors"
)

const (
	priorChatLimit     = 5
	recentMessageLimit = 15
)

// ChatContext 组装后的对话上下文
// PriorChats 与 RecentMessages 均为新的在前, 渲染层自行决定展示顺序
type ChatContext struct {
	RoomSummary    string
	UserProfile    string
	PriorChats     []*entity.AIChatRecord
	RecentMessages []*entity.Message
	TargetMessage  *entity.Message
}

// Quality scores how much context was actually available, 0 to 100.
// Presence-based: a section either contributes its weight or nothing.
func (c *ChatContext) Quality() int {
	score := 0
	if c.RoomSummary != "" {
		score += 30
	}
	if c.UserProfile != "" {
		score += 20
	}
	if len(c.PriorChats) > 0 {
		score += 20
	}
	if len(c.RecentMessages) > 0 {
		score += 30
	}
	return score
}

// Assembler 上下文组装领域服务
// 各数据源并行拉取; 上下文属尽力而为, 单项读取失败记日志后按缺失处理,
// 只有 reply 的目标消息是硬性前置条件
type Assembler struct {
	messages   repository.MessageRepository
	aggregates repository.AggregateRepository
	history    repository.ChatHistoryRepository
	logger     *zap.Logger
}

// NewAssembler 创建上下文组装服务
func NewAssembler(
	messages repository.MessageRepository,
	aggregates repository.AggregateRepository,
	history repository.ChatHistoryRepository,
	logger *zap.Logger,
) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{
		messages:   messages,
		aggregates: aggregates,
		history:    history,
		logger:     logger.With(zap.String("component", "assembler")),
	}
}

// AssembleChat 组装 chat 场景的上下文
func (a *Assembler) AssembleChat(ctx context.Context, roomID, userID string) (*ChatContext, error) {
	cc := &ChatContext{}
	g, gctx := errgroup.WithContext(ctx)

	a.fetchRoomSummary(g, gctx, cc, roomID)
	a.fetchUserProfile(g, gctx, cc, userID)
	g.Go(func() error {
		chats, err := a.history.Latest(gctx, userID, roomID, priorChatLimit)
		if err != nil {
			a.logger.Warn("Loading prior chats failed",
				zap.String("user_id", userID),
				zap.String("room_id", roomID),
				zap.Error(err))
			return nil
		}
		cc.PriorChats = chats
		return nil
	})
	a.fetchRecentMessages(g, gctx, cc, roomID)

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return cc, nil
}

// AssembleReply 组装 reply 场景的上下文
// 目标消息缺失返回 NOT_FOUND, 自回复返回 FORBIDDEN; 两者都在任何
// 模型调用之前拦截
func (a *Assembler) AssembleReply(ctx context.Context, roomID, senderID, externalMessageID string) (*ChatContext, error) {
	cc := &ChatContext{}
	g, gctx := errgroup.WithContext(ctx)

	a.fetchRoomSummary(g, gctx, cc, roomID)
	a.fetchUserProfile(g, gctx, cc, senderID)
	a.fetchRecentMessages(g, gctx, cc, roomID)
	g.Go(func() error {
		msg, err := a.messages.FindByExternalID(gctx, externalMessageID, roomID)
		if err != nil {
			if domainErrors.IsNotFound(err) {
				// The sender backend forwards messages asynchronously, so a
				// reply can race its own target into the store.
				return domainErrors.NewNotFoundError("انتظر وحاول بعد لحظات")
			}
			return err
		}
		if msg.SenderID == senderID {
			return domainErrors.NewForbiddenError("لا يمكنك الرد على رسالتك الخاصة")
		}
		cc.TargetMessage = msg
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return cc, nil
}

func (a *Assembler) fetchRoomSummary(g *errgroup.Group, ctx context.Context, cc *ChatContext, roomID string) {
	g.Go(func() error {
		agg, err := a.aggregates.GetRoom(ctx, roomID)
		if err != nil {
			a.logger.Warn("Loading room summary failed",
				zap.String("room_id", roomID),
				zap.Error(err))
			return nil
		}
		if agg != nil {
			cc.RoomSummary = agg.Summary
		}
		return nil
	})
}

func (a *Assembler) fetchUserProfile(g *errgroup.Group, ctx context.Context, cc *ChatContext, userID string) {
	g.Go(func() error {
		agg, err := a.aggregates.GetUser(ctx, userID)
		if err != nil {
			a.logger.Warn("Loading user profile failed",
				zap.String("user_id", userID),
				zap.Error(err))
			return nil
		}
		if agg != nil {
			cc.UserProfile = agg.PersonalizationSummary
		}
		return nil
	})
}

func (a *Assembler) fetchRecentMessages(g *errgroup.Group, ctx context.Context, cc *ChatContext, roomID string) {
	g.Go(func() error {
		messages, err := a.messages.LatestByRoom(ctx, roomID, recentMessageLimit)
		if err != nil {
			a.logger.Warn("Loading recent messages failed",
				zap.String("room_id", roomID),
				zap.Error(err))
			return nil
		}
		cc.RecentMessages = messages
		return nil
	})
}
