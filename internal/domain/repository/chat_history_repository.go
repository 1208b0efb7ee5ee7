package repository

import (
	"context"

	"github.com/mijoai/mijo-gateway/internal/domain/entity"
)

// HistoryQuery 对话历史查询条件, UserID 与 RoomID 至少一项非空
type HistoryQuery struct {
	UserID string
	RoomID string
	Limit  int
}

// ChatHistoryRepository AI 对话历史仓储接口
type ChatHistoryRepository interface {
	// Insert 写入一条对话记录
	Insert(ctx context.Context, record *entity.AIChatRecord) error

	// Latest 返回某用户在某房间最近的对话记录, 新的在前
	Latest(ctx context.Context, userID, roomID string, limit int) ([]*entity.AIChatRecord, error)

	// Query 按条件查询, 新的在前
	Query(ctx context.Context, q HistoryQuery) ([]*entity.AIChatRecord, error)

	// DeleteForRoom 删除房间的对话历史, userID 非空时仅删该用户的
	DeleteForRoom(ctx context.Context, roomID, userID string) error
}
