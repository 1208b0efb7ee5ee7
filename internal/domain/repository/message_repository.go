package repository

import (
	"context"

	"github.com/mijoai/mijo-gateway/internal/domain/entity"
	"github.com/mijoai/mijo-gateway/internal/domain/memory"
)

// SearchResults 双写存储的联合检索结果, 两侧各自独立返回
type SearchResults struct {
	Authoritative []*memory.ScoredPoint
	Shadow        []*memory.ScoredPoint
}

// MessageRepository 消息仓储接口
type MessageRepository interface {
	// Save 保存消息及其向量（先托管库后影子库）
	Save(ctx context.Context, message *entity.Message, vector []float32) error

	// FindByExternalID 按外部消息ID与房间ID查找消息
	FindByExternalID(ctx context.Context, externalMessageID, roomID string) (*entity.Message, error)

	// LatestByRoom 返回房间内最近的消息, 新的在前
	LatestByRoom(ctx context.Context, roomID string, limit int) ([]*entity.Message, error)

	// Search 向量检索, 可选按房间过滤
	Search(ctx context.Context, vector []float32, limit int, minScore float32, roomID string) (*SearchResults, error)

	// DeleteByExternalID 按外部消息ID删除（两侧存储）
	DeleteByExternalID(ctx context.Context, externalMessageID string) error

	// DeleteByRoom 删除房间内全部消息（两侧存储）
	DeleteByRoom(ctx context.Context, roomID string) error
}
