package repository

import (
	"context"

	"github.com/mijoai/mijo-gateway/internal/domain/entity"
)

// AggregateRepository 房间/用户聚合仓储接口
// Get 系列在聚合不存在时返回 (nil, nil), 由调用方决定如何初始化
type AggregateRepository interface {
	// GetRoom 读取房间聚合
	GetRoom(ctx context.Context, roomID string) (*entity.RoomAggregate, error)

	// SaveRoom 写入房间聚合（确定性点位, 覆盖写）
	SaveRoom(ctx context.Context, aggregate *entity.RoomAggregate) error

	// GetUser 读取用户聚合
	GetUser(ctx context.Context, userID string) (*entity.UserAggregate, error)

	// SaveUser 写入用户聚合
	SaveUser(ctx context.Context, aggregate *entity.UserAggregate) error

	// DeleteRoom 删除房间聚合
	DeleteRoom(ctx context.Context, roomID string) error
}
