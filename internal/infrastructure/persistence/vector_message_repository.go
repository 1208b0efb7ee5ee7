package persistence

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/mijoai/mijo-gateway/internal/domain/entity"
	"github.com/mijoai/mijo-gateway/internal/domain/memory"
	"github.com/mijoai/mijo-gateway/internal/domain/repository"
	domainErrors "github.com/mijoai/mijo-gateway/pkg/errors"
)

// VectorMessageRepository 基于双向量存储的消息仓储
// 写入顺序固定：先托管库后影子库; 第二步失败会向调用方报错,
// 但第一步不回滚, 也没有后台对账
type VectorMessageRepository struct {
	authoritative memory.Store
	shadow        memory.Store
	logger        *zap.Logger
}

// NewVectorMessageRepository 创建消息仓储
func NewVectorMessageRepository(authoritative, shadow memory.Store, logger *zap.Logger) repository.MessageRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VectorMessageRepository{
		authoritative: authoritative,
		shadow:        shadow,
		logger:        logger.With(zap.String("component", "message-repository")),
	}
}

// Save 保存消息及其向量（先托管库后影子库）
func (r *VectorMessageRepository) Save(ctx context.Context, message *entity.Message, vector []float32) error {
	point := r.toPoint(message, vector)

	if err := r.authoritative.Upsert(ctx, memory.CollectionMessages, point); err != nil {
		return domainErrors.NewStoreError("failed to save message to authoritative store", err)
	}
	if err := r.shadow.Upsert(ctx, memory.CollectionMessages, point); err != nil {
		// The authoritative write already landed; the stores now diverge
		// until this message is re-ingested or deleted.
		r.logger.Error("Shadow write failed after authoritative write",
			zap.String("messageId", message.ID),
			zap.Error(err),
		)
		return domainErrors.NewStoreError("failed to save message to shadow store", err)
	}
	return nil
}

// FindByExternalID 按外部消息ID与房间ID查找消息
func (r *VectorMessageRepository) FindByExternalID(ctx context.Context, externalMessageID, roomID string) (*entity.Message, error) {
	filter := memory.NewFilter(memory.FieldExternalMessageID, externalMessageID).
		With(memory.FieldRoomID, roomID)

	points, err := r.authoritative.Scroll(ctx, memory.CollectionMessages, filter, 1)
	if err != nil {
		return nil, domainErrors.NewStoreError("failed to look up message", err)
	}
	if len(points) == 0 {
		return nil, domainErrors.NewNotFoundError("message not found")
	}
	return r.toEntity(points[0]), nil
}

// LatestByRoom 返回房间内最近的消息, 新的在前
// 远端 scroll 不保证时间序, 先全量拉取再在内存排序
func (r *VectorMessageRepository) LatestByRoom(ctx context.Context, roomID string, limit int) ([]*entity.Message, error) {
	points, err := r.authoritative.Scroll(ctx, memory.CollectionMessages, memory.NewFilter(memory.FieldRoomID, roomID), 0)
	if err != nil {
		return nil, domainErrors.NewStoreError("failed to scroll room messages", err)
	}

	messages := make([]*entity.Message, 0, len(points))
	for _, p := range points {
		messages = append(messages, r.toEntity(p))
	}
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].CreatedAt.After(messages[j].CreatedAt)
	})
	if limit > 0 && len(messages) > limit {
		messages = messages[:limit]
	}
	return messages, nil
}

// Search 向量检索, 两侧独立返回, 单侧失败不影响另一侧
func (r *VectorMessageRepository) Search(ctx context.Context, vector []float32, limit int, minScore float32, roomID string) (*repository.SearchResults, error) {
	var filter *memory.Filter
	if roomID != "" {
		filter = memory.NewFilter(memory.FieldRoomID, roomID)
	}

	results := &repository.SearchResults{}

	authScored, err := r.authoritative.Search(ctx, memory.CollectionMessages, vector, limit, filter)
	if err != nil {
		r.logger.Warn("Authoritative search failed", zap.Error(err))
	} else {
		results.Authoritative = filterByScore(authScored, minScore)
	}

	shadowScored, err := r.shadow.Search(ctx, memory.CollectionMessages, vector, limit, filter)
	if err != nil {
		r.logger.Warn("Shadow search failed", zap.Error(err))
	} else {
		results.Shadow = filterByScore(shadowScored, minScore)
	}

	return results, nil
}

// DeleteByExternalID 按外部消息ID删除（两侧存储）
func (r *VectorMessageRepository) DeleteByExternalID(ctx context.Context, externalMessageID string) error {
	filter := memory.NewFilter(memory.FieldExternalMessageID, externalMessageID)

	if err := r.authoritative.DeleteByFilter(ctx, memory.CollectionMessages, filter); err != nil {
		return domainErrors.NewStoreError("failed to delete message from authoritative store", err)
	}
	if err := r.shadow.DeleteByFilter(ctx, memory.CollectionMessages, filter); err != nil {
		return domainErrors.NewStoreError("failed to delete message from shadow store", err)
	}
	return nil
}

// DeleteByRoom 删除房间内全部消息（两侧存储）
func (r *VectorMessageRepository) DeleteByRoom(ctx context.Context, roomID string) error {
	filter := memory.NewFilter(memory.FieldRoomID, roomID)

	if err := r.authoritative.DeleteByFilter(ctx, memory.CollectionMessages, filter); err != nil {
		return domainErrors.NewStoreError("failed to delete room messages from authoritative store", err)
	}
	if err := r.shadow.DeleteByFilter(ctx, memory.CollectionMessages, filter); err != nil {
		return domainErrors.NewStoreError("failed to delete room messages from shadow store", err)
	}
	return nil
}

// ============ converters ============

func (r *VectorMessageRepository) toPoint(message *entity.Message, vector []float32) *memory.Point {
	return &memory.Point{
		ID:     message.ID,
		Vector: vector,
		Payload: map[string]interface{}{
			memory.FieldExternalMessageID: message.ExternalMessageID,
			memory.FieldRoomID:            message.RoomID,
			memory.FieldSenderID:          message.SenderID,
			memory.FieldSenderName:        message.SenderName,
			memory.FieldContent:           message.Content,
			memory.FieldCreatedAt:         formatTime(message.CreatedAt),
		},
	}
}

func (r *VectorMessageRepository) toEntity(p *memory.Point) *entity.Message {
	return &entity.Message{
		ID:                p.ID,
		ExternalMessageID: payloadString(p, memory.FieldExternalMessageID),
		RoomID:            payloadString(p, memory.FieldRoomID),
		SenderID:          payloadString(p, memory.FieldSenderID),
		SenderName:        payloadString(p, memory.FieldSenderName),
		Content:           payloadString(p, memory.FieldContent),
		CreatedAt:         payloadTime(p, memory.FieldCreatedAt),
	}
}

func filterByScore(points []*memory.ScoredPoint, minScore float32) []*memory.ScoredPoint {
	if minScore <= 0 {
		return points
	}
	kept := points[:0]
	for _, sp := range points {
		if sp.Score >= minScore {
			kept = append(kept, sp)
		}
	}
	return kept
}
