package persistence

import (
	"context"
	"sort"

	"github.com/mijoai/mijo-gateway/internal/domain/entity"
	"github.com/mijoai/mijo-gateway/internal/domain/memory"
	"github.com/mijoai/mijo-gateway/internal/domain/repository"
	domainErrors "github.com/mijoai/mijo-gateway/pkg/errors"
)

// VectorHistoryRepository AI 对话历史仓储
// 记录只存托管库, 零向量, 全部按载荷过滤检索
type VectorHistoryRepository struct {
	store memory.Store
	dim   int
}

// NewVectorHistoryRepository 创建对话历史仓储
func NewVectorHistoryRepository(store memory.Store, dim int) repository.ChatHistoryRepository {
	return &VectorHistoryRepository{store: store, dim: dim}
}

// Insert 写入一条对话记录
func (r *VectorHistoryRepository) Insert(ctx context.Context, record *entity.AIChatRecord) error {
	point := &memory.Point{
		ID:     record.ID,
		Vector: memory.ZeroVector(r.dim),
		Payload: map[string]interface{}{
			memory.FieldUserID:          record.UserID,
			memory.FieldRoomID:          record.RoomID,
			memory.FieldQuestion:        record.Question,
			memory.FieldAnswer:          record.Answer,
			memory.FieldSuggestedAnswer: record.SuggestedAnswer,
			memory.FieldProvider:        record.Provider,
			memory.FieldModel:           record.Model,
			memory.FieldCreatedAt:       formatTime(record.CreatedAt),
		},
	}
	if err := r.store.Upsert(ctx, memory.CollectionAIChats, point); err != nil {
		return domainErrors.NewStoreError("failed to insert chat record", err)
	}
	return nil
}

// Latest 返回某用户在某房间最近的对话记录, 新的在前
func (r *VectorHistoryRepository) Latest(ctx context.Context, userID, roomID string, limit int) ([]*entity.AIChatRecord, error) {
	return r.Query(ctx, repository.HistoryQuery{UserID: userID, RoomID: roomID, Limit: limit})
}

// Query 按条件查询, 新的在前
func (r *VectorHistoryRepository) Query(ctx context.Context, q repository.HistoryQuery) ([]*entity.AIChatRecord, error) {
	filter := &memory.Filter{Must: map[string]interface{}{}}
	if q.UserID != "" {
		filter.With(memory.FieldUserID, q.UserID)
	}
	if q.RoomID != "" {
		filter.With(memory.FieldRoomID, q.RoomID)
	}
	if len(filter.Must) == 0 {
		filter = nil
	}

	points, err := r.store.Scroll(ctx, memory.CollectionAIChats, filter, 0)
	if err != nil {
		return nil, domainErrors.NewStoreError("failed to query chat history", err)
	}

	records := make([]*entity.AIChatRecord, 0, len(points))
	for _, p := range points {
		records = append(records, r.toEntity(p))
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if q.Limit > 0 && len(records) > q.Limit {
		records = records[:q.Limit]
	}
	return records, nil
}

// DeleteForRoom 删除房间的对话历史, userID 非空时仅删该用户的
func (r *VectorHistoryRepository) DeleteForRoom(ctx context.Context, roomID, userID string) error {
	filter := memory.NewFilter(memory.FieldRoomID, roomID)
	if userID != "" {
		filter.With(memory.FieldUserID, userID)
	}
	if err := r.store.DeleteByFilter(ctx, memory.CollectionAIChats, filter); err != nil {
		return domainErrors.NewStoreError("failed to delete chat history", err)
	}
	return nil
}

func (r *VectorHistoryRepository) toEntity(p *memory.Point) *entity.AIChatRecord {
	return &entity.AIChatRecord{
		ID:              p.ID,
		UserID:          payloadString(p, memory.FieldUserID),
		RoomID:          payloadString(p, memory.FieldRoomID),
		Question:        payloadString(p, memory.FieldQuestion),
		Answer:          payloadString(p, memory.FieldAnswer),
		SuggestedAnswer: payloadString(p, memory.FieldSuggestedAnswer),
		Provider:        payloadString(p, memory.FieldProvider),
		Model:           payloadString(p, memory.FieldModel),
		CreatedAt:       payloadTime(p, memory.FieldCreatedAt),
	}
}
