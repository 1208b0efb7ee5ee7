package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/mijoai/mijo-gateway/internal/domain/memory"
	"github.com/mijoai/mijo-gateway/internal/domain/repository"
	domainErrors "github.com/mijoai/mijo-gateway/pkg/errors"
)

const (
	// DefaultTopK 与 DefaultMinScore 为检索接口的缺省参数
	DefaultTopK     = 5
	DefaultMinScore = float32(0.5)

	maxTopK = 100
)

// SearchInput 语义检索请求
// RoomID 为空时跨房间检索
type SearchInput struct {
	Query    string
	TopK     int
	MinScore float32
	RoomID   string
}

// SearchUseCase runs semantic retrieval over stored messages. Both store
// sides answer independently so their results can be compared.
type SearchUseCase struct {
	messages repository.MessageRepository
	embedder memory.Embedder
	logger   *zap.Logger
}

// NewSearchUseCase creates the search use-case.
func NewSearchUseCase(messages repository.MessageRepository, embedder memory.Embedder, logger *zap.Logger) *SearchUseCase {
	return &SearchUseCase{
		messages: messages,
		embedder: embedder,
		logger:   logger.With(zap.String("component", "search")),
	}
}

// Execute embeds the query and searches both stores.
func (uc *SearchUseCase) Execute(ctx context.Context, input SearchInput) (*repository.SearchResults, error) {
	if input.Query == "" {
		return nil, domainErrors.NewInvalidInputError("query is required")
	}
	if input.TopK < 1 || input.TopK > maxTopK {
		return nil, domainErrors.NewInvalidInputError("topK must be between 1 and 100")
	}

	vector, err := uc.embedder.Embed(ctx, input.Query, memory.PrefixQuery)
	if err != nil {
		return nil, domainErrors.NewProviderError("failed to embed query", err)
	}

	results, err := uc.messages.Search(ctx, vector, input.TopK, input.MinScore, input.RoomID)
	if err != nil {
		return nil, err
	}

	uc.logger.Debug("Search completed",
		zap.String("room_id", input.RoomID),
		zap.Int("top_k", input.TopK),
		zap.Int("authoritative_hits", len(results.Authoritative)),
		zap.Int("shadow_hits", len(results.Shadow)))
	return results, nil
}
