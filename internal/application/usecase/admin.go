package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/mijoai/mijo-gateway/internal/dispatcher"
	"github.com/mijoai/mijo-gateway/internal/domain/entity"
	"github.com/mijoai/mijo-gateway/internal/domain/memory"
	"github.com/mijoai/mijo-gateway/internal/domain/repository"
	"github.com/mijoai/mijo-gateway/internal/infrastructure/queue"
	"github.com/mijoai/mijo-gateway/internal/infrastructure/ratelimit"
	domainErrors "github.com/mijoai/mijo-gateway/pkg/errors"
)

// ProviderStatsSource exposes the dispatcher's per-provider counters.
// Nil when the worker runs as a separate process; its counters are not
// visible from here.
type ProviderStatsSource interface {
	Stats() []dispatcher.ProviderCallStats
}

// EmbeddingStats 两侧存储的点位计数
type EmbeddingStats struct {
	Collections    map[string]int64 `json:"collections"`
	ShadowMessages int64            `json:"shadowMessages"`
}

// QueueStats 各队列深度与调度器的供应商计数
type QueueStats struct {
	Queues    map[string]queue.Stats         `json:"queues"`
	Providers []dispatcher.ProviderCallStats `json:"providers,omitempty"`
}

// AdminUseCase serves the operational surface: store counts, queue and
// limiter introspection, aggregate reads, and targeted deletes.
type AdminUseCase struct {
	authoritative memory.Store
	shadow        memory.Store
	aggregates    repository.AggregateRepository
	messages      repository.MessageRepository
	queue         queue.Queue
	limiter       ratelimit.Limiter
	providerStats ProviderStatsSource
	logger        *zap.Logger
}

// NewAdminUseCase creates the admin use-case. providerStats may be nil.
func NewAdminUseCase(
	authoritative memory.Store,
	shadow memory.Store,
	aggregates repository.AggregateRepository,
	messages repository.MessageRepository,
	q queue.Queue,
	limiter ratelimit.Limiter,
	providerStats ProviderStatsSource,
	logger *zap.Logger,
) *AdminUseCase {
	return &AdminUseCase{
		authoritative: authoritative,
		shadow:        shadow,
		aggregates:    aggregates,
		messages:      messages,
		queue:         q,
		limiter:       limiter,
		providerStats: providerStats,
		logger:        logger.With(zap.String("component", "admin")),
	}
}

// EmbeddingStats counts points per authoritative collection plus the
// shadow message table.
func (uc *AdminUseCase) EmbeddingStats(ctx context.Context) (*EmbeddingStats, error) {
	stats := &EmbeddingStats{Collections: make(map[string]int64)}
	for _, spec := range memory.Catalogue() {
		count, err := uc.authoritative.Count(ctx, spec.Name, nil)
		if err != nil {
			return nil, domainErrors.NewStoreError("failed to count collection "+spec.Name, err)
		}
		stats.Collections[spec.Name] = count
	}

	shadowCount, err := uc.shadow.Count(ctx, memory.CollectionMessages, nil)
	if err != nil {
		return nil, domainErrors.NewStoreError("failed to count shadow messages", err)
	}
	stats.ShadowMessages = shadowCount
	return stats, nil
}

// QueueStats reports depth per job kind and, when the dispatcher runs in
// this process, its per-provider counters.
func (uc *AdminUseCase) QueueStats(ctx context.Context) (*QueueStats, error) {
	stats := &QueueStats{Queues: make(map[string]queue.Stats)}
	for _, kind := range entity.JobKinds() {
		s, err := uc.queue.Stats(ctx, kind)
		if err != nil {
			return nil, domainErrors.NewStoreError("failed to read queue stats for "+string(kind), err)
		}
		stats.Queues[string(kind)] = s
	}
	if uc.providerStats != nil {
		stats.Providers = uc.providerStats.Stats()
	}
	return stats, nil
}

// RateLimits returns the limiter's full status table.
func (uc *AdminUseCase) RateLimits(ctx context.Context) ([]ratelimit.ProviderStatus, error) {
	return uc.limiter.Status(ctx)
}

// RoomSummary reads one room aggregate.
func (uc *AdminUseCase) RoomSummary(ctx context.Context, roomID string) (*entity.RoomAggregate, error) {
	if roomID == "" {
		return nil, domainErrors.NewInvalidInputError("roomId is required")
	}
	room, err := uc.aggregates.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, domainErrors.NewNotFoundError("room summary not found")
	}
	return room, nil
}

// UserPersonalization reads one user aggregate.
func (uc *AdminUseCase) UserPersonalization(ctx context.Context, userID string) (*entity.UserAggregate, error) {
	if userID == "" {
		return nil, domainErrors.NewInvalidInputError("userId is required")
	}
	user, err := uc.aggregates.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domainErrors.NewNotFoundError("personalization summary not found")
	}
	return user, nil
}

// DeleteMessage removes one message from both stores by its external ID.
func (uc *AdminUseCase) DeleteMessage(ctx context.Context, externalMessageID string) error {
	if externalMessageID == "" {
		return domainErrors.NewInvalidInputError("message id is required")
	}
	if err := uc.messages.DeleteByExternalID(ctx, externalMessageID); err != nil {
		return err
	}
	uc.logger.Info("Message deleted", zap.String("external_message_id", externalMessageID))
	return nil
}

// DeleteRoom removes a room's messages from both stores and drops its
// aggregate. Chat history is kept; it has its own delete endpoint.
func (uc *AdminUseCase) DeleteRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return domainErrors.NewInvalidInputError("roomId is required")
	}
	if err := uc.messages.DeleteByRoom(ctx, roomID); err != nil {
		return err
	}
	if err := uc.aggregates.DeleteRoom(ctx, roomID); err != nil {
		return err
	}
	uc.logger.Info("Room deleted", zap.String("room_id", roomID))
	return nil
}
