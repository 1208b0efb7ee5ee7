package application

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mijoai/mijo-gateway/internal/dispatcher"
	"github.com/mijoai/mijo-gateway/internal/infrastructure/config"
	"github.com/mijoai/mijo-gateway/internal/infrastructure/media"
	"github.com/mijoai/mijo-gateway/internal/infrastructure/queue"
	"github.com/mijoai/mijo-gateway/internal/infrastructure/ratelimit"
	"github.com/mijoai/mijo-gateway/pkg/safego"
)

// Worker 独立工作进程
// 只消费共享队列并执行提供商调用, 不开 HTTP 接口也不连向量存储
type Worker struct {
	config *config.Config
	logger *zap.Logger

	redisClient *redis.Client
	queue       *queue.RedisQueue
	dispatcher  *dispatcher.Dispatcher
}

// NewWorker 创建独立工作进程
// 队列必须经共享缓存层可见; 单机模式请改用 serve 的内嵌工作池
func NewWorker(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Worker, error) {
	if cfg.Cache.URL == "" {
		return nil, fmt.Errorf("worker requires a shared cache store: set CACHE_STORE_URL or run serve with WORKER_EMBEDDED=true")
	}

	opts, err := redis.ParseURL(cfg.Cache.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid cache store url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to cache store: %w", err)
	}

	fetcher := media.NewFetcher(cfg.Sender.BaseURL, cfg.Sender.MediaToken, cfg.Sender.MediaQuery, logger)
	chains, err := buildProviderChains(ctx, cfg.Providers, fetcher, logger)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	q := queue.NewRedisQueue(client, logger)
	return &Worker{
		config:      cfg,
		logger:      logger,
		redisClient: client,
		queue:       q,
		dispatcher:  dispatcher.New(q, ratelimit.NewRedisLimiter(client, logger), chains, logger),
	}, nil
}

// Run 运行工作池直至 ctx 取消, 返回前释放连接
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("Starting worker")

	w.dispatcher.Run(ctx)
	w.queue.RunMaintenance(ctx)
	safego.Loop(ctx, w.logger, "queue-retention", retentionInterval, func(c context.Context) {
		removed, err := w.queue.Clean(c, jobRetention)
		if err != nil {
			w.logger.Warn("Queue retention sweep failed", zap.Error(err))
			return
		}
		if removed > 0 {
			w.logger.Debug("Queue retention sweep", zap.Int64("removed", removed))
		}
	})

	<-ctx.Done()

	w.logger.Info("Stopping worker")
	if err := w.redisClient.Close(); err != nil {
		w.logger.Error("Failed to close cache store connection", zap.Error(err))
	}
	return nil
}
