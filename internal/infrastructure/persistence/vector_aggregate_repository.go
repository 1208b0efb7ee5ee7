package persistence

import (
	"context"

	"github.com/mijoai/mijo-gateway/internal/domain/entity"
	"github.com/mijoai/mijo-gateway/internal/domain/identity"
	"github.com/mijoai/mijo-gateway/internal/domain/memory"
	"github.com/mijoai/mijo-gateway/internal/domain/repository"
	domainErrors "github.com/mijoai/mijo-gateway/pkg/errors"
)

// VectorAggregateRepository 房间/用户聚合仓储
// 聚合只存托管库; 点位 ID 确定性派生, 向量恒为零向量
type VectorAggregateRepository struct {
	store memory.Store
	dim   int
}

// NewVectorAggregateRepository 创建聚合仓储
func NewVectorAggregateRepository(store memory.Store, dim int) repository.AggregateRepository {
	return &VectorAggregateRepository{store: store, dim: dim}
}

// GetRoom 读取房间聚合, 不存在时返回 (nil, nil)
func (r *VectorAggregateRepository) GetRoom(ctx context.Context, roomID string) (*entity.RoomAggregate, error) {
	points, err := r.store.Retrieve(ctx, memory.CollectionRooms, identity.RoomPointID(roomID))
	if err != nil {
		return nil, domainErrors.NewStoreError("failed to load room aggregate", err)
	}
	if len(points) == 0 {
		return nil, nil
	}
	p := points[0]
	return &entity.RoomAggregate{
		RoomID:       payloadString(p, memory.FieldRoomID),
		Summary:      payloadString(p, memory.FieldSummary),
		MessageCount: payloadInt64(p, memory.FieldMessageCount),
		UpdatedAt:    payloadTime(p, memory.FieldUpdatedAt),
	}, nil
}

// SaveRoom 写入房间聚合（覆盖写）
func (r *VectorAggregateRepository) SaveRoom(ctx context.Context, aggregate *entity.RoomAggregate) error {
	point := &memory.Point{
		ID:     identity.RoomPointID(aggregate.RoomID),
		Vector: memory.ZeroVector(r.dim),
		Payload: map[string]interface{}{
			memory.FieldRoomID:       aggregate.RoomID,
			memory.FieldSummary:      aggregate.Summary,
			memory.FieldMessageCount: aggregate.MessageCount,
			memory.FieldUpdatedAt:    formatTime(aggregate.UpdatedAt),
		},
	}
	if err := r.store.Upsert(ctx, memory.CollectionRooms, point); err != nil {
		return domainErrors.NewStoreError("failed to save room aggregate", err)
	}
	return nil
}

// GetUser 读取用户聚合, 不存在时返回 (nil, nil)
func (r *VectorAggregateRepository) GetUser(ctx context.Context, userID string) (*entity.UserAggregate, error) {
	points, err := r.store.Retrieve(ctx, memory.CollectionUsers, identity.UserPointID(userID))
	if err != nil {
		return nil, domainErrors.NewStoreError("failed to load user aggregate", err)
	}
	if len(points) == 0 {
		return nil, nil
	}
	p := points[0]
	return &entity.UserAggregate{
		UserID:                 payloadString(p, memory.FieldUserID),
		PersonalizationSummary: payloadString(p, memory.FieldPersonalization),
		MessageCount:           payloadInt64(p, memory.FieldMessageCount),
		UpdatedAt:              payloadTime(p, memory.FieldUpdatedAt),
	}, nil
}

// SaveUser 写入用户聚合
func (r *VectorAggregateRepository) SaveUser(ctx context.Context, aggregate *entity.UserAggregate) error {
	point := &memory.Point{
		ID:     identity.UserPointID(aggregate.UserID),
		Vector: memory.ZeroVector(r.dim),
		Payload: map[string]interface{}{
			memory.FieldUserID:          aggregate.UserID,
			memory.FieldPersonalization: aggregate.PersonalizationSummary,
			memory.FieldMessageCount:    aggregate.MessageCount,
			memory.FieldUpdatedAt:       formatTime(aggregate.UpdatedAt),
		},
	}
	if err := r.store.Upsert(ctx, memory.CollectionUsers, point); err != nil {
		return domainErrors.NewStoreError("failed to save user aggregate", err)
	}
	return nil
}

// DeleteRoom 删除房间聚合
func (r *VectorAggregateRepository) DeleteRoom(ctx context.Context, roomID string) error {
	if err := r.store.Delete(ctx, memory.CollectionRooms, identity.RoomPointID(roomID)); err != nil {
		return domainErrors.NewStoreError("failed to delete room aggregate", err)
	}
	return nil
}
