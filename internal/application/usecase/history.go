package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/mijoai/mijo-gateway/internal/domain/entity"
	"github.com/mijoai/mijo-gateway/internal/domain/repository"
	domainErrors "github.com/mijoai/mijo-gateway/pkg/errors"
)

// DefaultHistoryLimit 历史查询缺省条数
const DefaultHistoryLimit = 50

// HistoryUseCase reads and clears the persisted AI chat history.
type HistoryUseCase struct {
	history repository.ChatHistoryRepository
	logger  *zap.Logger
}

// NewHistoryUseCase creates the history use-case.
func NewHistoryUseCase(history repository.ChatHistoryRepository, logger *zap.Logger) *HistoryUseCase {
	return &HistoryUseCase{
		history: history,
		logger:  logger.With(zap.String("component", "history")),
	}
}

// Query returns chat records newest-first. At least one of userID and
// roomID must narrow the result.
func (uc *HistoryUseCase) Query(ctx context.Context, userID, roomID string, limit int) ([]*entity.AIChatRecord, error) {
	if userID == "" && roomID == "" {
		return nil, domainErrors.NewInvalidInputError("at least one of userId or roomId is required")
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return uc.history.Query(ctx, repository.HistoryQuery{
		UserID: userID,
		RoomID: roomID,
		Limit:  limit,
	})
}

// Delete removes a room's chat history, narrowed to one user when userID
// is set.
func (uc *HistoryUseCase) Delete(ctx context.Context, roomID, userID string) error {
	if roomID == "" {
		return domainErrors.NewInvalidInputError("roomId is required")
	}
	if err := uc.history.DeleteForRoom(ctx, roomID, userID); err != nil {
		return err
	}
	uc.logger.Info("Chat history deleted",
		zap.String("room_id", roomID),
		zap.String("user_id", userID))
	return nil
}
