package application

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mijoai/mijo-gateway/internal/application/usecase"
	"github.com/mijoai/mijo-gateway/internal/dispatcher"
	"github.com/mijoai/mijo-gateway/internal/domain/memory"
	"github.com/mijoai/mijo-gateway/internal/domain/repository"
	"github.com/mijoai/mijo-gateway/internal/domain/service"
	"github.com/mijoai/mijo-gateway/internal/infrastructure/config"
	"github.com/mijoai/mijo-gateway/internal/infrastructure/embedding"
	"github.com/mijoai/mijo-gateway/internal/infrastructure/media"
	"github.com/mijoai/mijo-gateway/internal/infrastructure/persistence"
	"github.com/mijoai/mijo-gateway/internal/infrastructure/provider/assemblyai"
	"github.com/mijoai/mijo-gateway/internal/infrastructure/provider/deepgram"
	"github.com/mijoai/mijo-gateway/internal/infrastructure/provider/gemini"
	"github.com/mijoai/mijo-gateway/internal/infrastructure/provider/groq"
	"github.com/mijoai/mijo-gateway/internal/infrastructure/queue"
	"github.com/mijoai/mijo-gateway/internal/infrastructure/ratelimit"
	"github.com/mijoai/mijo-gateway/internal/infrastructure/vectorstore"
	httpServer "github.com/mijoai/mijo-gateway/internal/interfaces/http"
	"github.com/mijoai/mijo-gateway/pkg/safego"
)

const (
	// jobRetention 终态任务记录的保留时长, 到期由后台循环清理
	jobRetention      = 24 * time.Hour
	retentionInterval = time.Hour

	healthCheckTimeout = 5 * time.Second
)

// App 应用程序（依赖注入容器）
type App struct {
	// 配置
	config *config.Config
	logger *zap.Logger

	// 外部连接
	redisClient *redis.Client
	redisQueue  *queue.RedisQueue

	// 基础设施
	authoritative *vectorstore.QdrantStore
	shadow        *vectorstore.ShadowStore
	embedder      memory.Embedder
	fetcher       *media.Fetcher
	jobQueue      queue.Queue
	consumer      queue.Consumer
	limiter       ratelimit.Limiter
	chains        dispatcher.Chains
	dispatcher    *dispatcher.Dispatcher

	// 仓储层
	messageRepo   repository.MessageRepository
	aggregateRepo repository.AggregateRepository
	historyRepo   repository.ChatHistoryRepository

	// 领域服务
	summarizer *service.Summarizer
	assembler  *service.Assembler

	// 应用服务
	jobRunner *usecase.JobRunner
	ingestUC  *usecase.IngestMessageUseCase
	chatUC    *usecase.ChatUseCase
	replyUC   *usecase.ReplyUseCase
	searchUC  *usecase.SearchUseCase
	historyUC *usecase.HistoryUseCase
	adminUC   *usecase.AdminUseCase

	// 接口层
	httpServer *httpServer.Server

	// 后台工作池生命周期, 与 HTTP 请求上下文解耦
	workerCancel context.CancelFunc
}

// NewApp 创建应用程序（依赖注入容器）
// ctx 仅用于初始化期间的远端调用（集合引导、客户端握手）
func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{
		config: cfg,
		logger: logger,
	}

	// 初始化各层组件
	if err := app.initInfrastructure(ctx); err != nil {
		return nil, fmt.Errorf("failed to init infrastructure: %w", err)
	}

	if err := app.initRepositories(); err != nil {
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}

	if err := app.initDomainServices(); err != nil {
		return nil, fmt.Errorf("failed to init domain services: %w", err)
	}

	if err := app.initApplicationServices(); err != nil {
		return nil, fmt.Errorf("failed to init application services: %w", err)
	}

	if err := app.initInterfaces(); err != nil {
		return nil, fmt.Errorf("failed to init interfaces: %w", err)
	}

	return app, nil
}

// initInfrastructure 初始化基础设施
// 顺序: 缓存层（队列+限流）→ 双向量存储 → 嵌入客户端 → 媒体抓取 → 提供商链
func (app *App) initInfrastructure(ctx context.Context) error {
	app.logger.Info("Initializing infrastructure")

	// 缓存层: CACHE_STORE_URL 为空时退化为进程内队列与限流（单机模式）
	if app.config.Cache.URL != "" {
		opts, err := redis.ParseURL(app.config.Cache.URL)
		if err != nil {
			return fmt.Errorf("invalid cache store url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to cache store: %w", err)
		}
		app.redisClient = client
		app.redisQueue = queue.NewRedisQueue(client, app.logger)
		app.jobQueue = app.redisQueue
		app.consumer = app.redisQueue
		app.limiter = ratelimit.NewRedisLimiter(client, app.logger)
	} else {
		app.logger.Warn("No cache store configured, using in-process queue and limiter")
		mq := queue.NewMemoryQueue(app.logger)
		app.jobQueue = mq
		app.consumer = mq
		app.limiter = ratelimit.NewLocalLimiter()
	}

	// 托管向量库 + 集合引导
	authoritative, err := vectorstore.NewQdrantStore(app.config.Vector.URL, app.config.Vector.APIKey, app.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to authoritative vector store: %w", err)
	}
	app.authoritative = authoritative
	for _, spec := range memory.Catalogue() {
		if err := authoritative.EnsureCollection(ctx, spec, app.config.Embedding.Dim); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", spec.Name, err)
		}
	}

	// 影子向量库（建表即就绪, 无需额外引导）
	shadow, err := vectorstore.NewShadowStore(
		app.config.Shadow.DBPath,
		app.config.Shadow.TableName,
		app.config.Embedding.Dim,
		app.logger,
	)
	if err != nil {
		return fmt.Errorf("failed to open shadow vector store: %w", err)
	}
	app.shadow = shadow

	// 嵌入客户端
	app.embedder = embedding.NewOpenAIEmbedder(
		app.config.Embedding.BaseURL,
		app.config.Embedding.APIKey,
		app.config.Embedding.Model,
		app.config.Embedding.Dim,
		app.logger,
	)

	// 上游媒体抓取
	app.fetcher = media.NewFetcher(
		app.config.Sender.BaseURL,
		app.config.Sender.MediaToken,
		app.config.Sender.MediaQuery,
		app.logger,
	)

	// 提供商降级链
	if err := app.initProviders(ctx); err != nil {
		return err
	}

	// 工作池: 单机模式下队列只在本进程可见, 必须内嵌
	if app.embeddedWorker() {
		app.dispatcher = dispatcher.New(app.consumer, app.limiter, app.chains, app.logger)
	}

	return nil
}

// initProviders 按已配置的凭证构建提供商降级链
func (app *App) initProviders(ctx context.Context) error {
	chains, err := buildProviderChains(ctx, app.config.Providers, app.fetcher, app.logger)
	if err != nil {
		return err
	}
	app.chains = chains
	return nil
}

// buildProviderChains 构建四类任务的提供商降级链, serve 与 worker 共用
// 链内顺序即降级顺序: 首选免费高速, 末位按量计费兜底
func buildProviderChains(ctx context.Context, p config.ProvidersConfig, fetcher *media.Fetcher, logger *zap.Logger) (dispatcher.Chains, error) {
	var chains dispatcher.Chains

	if p.GroqAPIKey != "" {
		groqClient := groq.New(p.GroqAPIKey, "", fetcher, logger)
		chains.Audio = append(chains.Audio, groqClient)
		chains.Image = append(chains.Image, groqClient)
		chains.OCR = append(chains.OCR, groqClient)
		chains.LLM = append(chains.LLM, groqClient)
	}
	if p.GeminiAPIKey != "" {
		geminiClient, err := gemini.New(ctx, p.GeminiAPIKey, "", fetcher, logger)
		if err != nil {
			return dispatcher.Chains{}, fmt.Errorf("failed to create gemini client: %w", err)
		}
		chains.Image = append(chains.Image, geminiClient)
		chains.OCR = append(chains.OCR, geminiClient)
		chains.LLM = append(chains.LLM, geminiClient)
	}
	if p.DeepgramAPIKey != "" {
		chains.Audio = append(chains.Audio, deepgram.New(p.DeepgramAPIKey, "", fetcher, logger))
	}
	if p.AssemblyAIAPIKey != "" {
		chains.Audio = append(chains.Audio, assemblyai.New(p.AssemblyAIAPIKey, "", fetcher, logger))
	}

	if p.Configured() == 0 {
		logger.Warn("No AI providers configured, extraction and generation jobs will fail")
	} else {
		logger.Info("Provider chains built",
			zap.Int("audio", len(chains.Audio)),
			zap.Int("image", len(chains.Image)),
			zap.Int("ocr", len(chains.OCR)),
			zap.Int("llm", len(chains.LLM)),
		)
	}
	return chains, nil
}

// initRepositories 初始化仓储层
func (app *App) initRepositories() error {
	app.logger.Info("Initializing repositories")

	app.messageRepo = persistence.NewVectorMessageRepository(app.authoritative, app.shadow, app.logger)
	app.aggregateRepo = persistence.NewVectorAggregateRepository(app.authoritative, app.config.Embedding.Dim)
	app.historyRepo = persistence.NewVectorHistoryRepository(app.authoritative, app.config.Embedding.Dim)

	return nil
}

// initDomainServices 初始化领域服务
func (app *App) initDomainServices() error {
	app.logger.Info("Initializing domain services")

	// 队列执行器先于领域服务: 摘要器经 summaryBridge 走低优先级 llm 队列
	app.jobRunner = usecase.NewJobRunner(app.jobQueue)
	app.summarizer = service.NewSummarizer(app.aggregateRepo, &summaryBridge{jobs: app.jobRunner}, app.logger)
	app.assembler = service.NewAssembler(app.messageRepo, app.aggregateRepo, app.historyRepo, app.logger)

	return nil
}

// initApplicationServices 初始化应用服务
func (app *App) initApplicationServices() error {
	app.logger.Info("Initializing application services")

	app.ingestUC = usecase.NewIngestMessageUseCase(
		app.messageRepo,
		app.embedder,
		app.fetcher,
		app.jobRunner,
		app.summarizer,
		app.logger,
	)
	app.chatUC = usecase.NewChatUseCase(app.assembler, app.jobRunner, app.historyRepo, app.logger)
	app.replyUC = usecase.NewReplyUseCase(app.assembler, app.jobRunner, app.logger)
	app.searchUC = usecase.NewSearchUseCase(app.messageRepo, app.embedder, app.logger)
	app.historyUC = usecase.NewHistoryUseCase(app.historyRepo, app.logger)

	// providerStats 仅在工作池内嵌时存在; 独立 worker 进程的计数不在本进程
	var stats usecase.ProviderStatsSource
	if app.dispatcher != nil {
		stats = app.dispatcher
	}
	app.adminUC = usecase.NewAdminUseCase(
		app.authoritative,
		app.shadow,
		app.aggregateRepo,
		app.messageRepo,
		app.jobQueue,
		app.limiter,
		stats,
		app.logger,
	)

	return nil
}

// initInterfaces 初始化接口层
func (app *App) initInterfaces() error {
	app.logger.Info("Initializing interfaces")

	app.httpServer = httpServer.NewServer(
		httpServer.Config{
			Host: app.config.Server.Host,
			Port: app.config.Server.Port,
		},
		httpServer.Deps{
			Ingest:  app.ingestUC,
			Chat:    app.chatUC,
			Reply:   app.replyUC,
			Search:  app.searchUC,
			History: app.historyUC,
			Admin:   app.adminUC,
			Jobs:    app.jobRunner,
			Health:  app.healthStatus,
		},
		app.logger,
	)

	return nil
}

// embeddedWorker reports whether the dispatcher runs inside this process.
// Without a shared cache store no other process can see the queue, so the
// worker must be embedded regardless of configuration.
func (app *App) embeddedWorker() bool {
	return app.config.Worker.Embedded || app.redisClient == nil
}

// healthStatus probes every external dependency with a short deadline.
func (app *App) healthStatus(ctx context.Context) httpServer.HealthStatus {
	status := httpServer.HealthStatus{
		ProvidersConfigured: app.config.Providers.Configured(),
		EmbeddingModel:      app.config.Embedding.Model,
		EmbeddingSize:       app.config.Embedding.Dim,
	}

	checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if _, err := app.authoritative.Count(checkCtx, memory.CollectionMessages, nil); err == nil {
		status.StoresConnected.Authoritative = true
	}
	if _, err := app.shadow.Count(checkCtx, memory.CollectionMessages, nil); err == nil {
		status.StoresConnected.Shadow = true
	}
	if app.redisClient != nil {
		status.StoresConnected.Cache = app.redisClient.Ping(checkCtx).Err() == nil
	} else {
		// 进程内队列与限流没有外部连接可断
		status.StoresConnected.Cache = true
	}

	status.OK = status.StoresConnected.Authoritative &&
		status.StoresConnected.Shadow &&
		status.StoresConnected.Cache
	return status
}

// Start 启动应用程序
func (app *App) Start(ctx context.Context) error {
	app.logger.Info("Starting application")

	// 内嵌工作池: 生命周期独立于启动上下文, Stop 时统一取消
	if app.dispatcher != nil {
		workerCtx, cancel := context.WithCancel(context.Background())
		app.workerCancel = cancel

		app.dispatcher.Run(workerCtx)
		if app.redisQueue != nil {
			app.redisQueue.RunMaintenance(workerCtx)
		}
		safego.Loop(workerCtx, app.logger, "queue-retention", retentionInterval, func(c context.Context) {
			removed, err := app.jobQueue.Clean(c, jobRetention)
			if err != nil {
				app.logger.Warn("Queue retention sweep failed", zap.Error(err))
				return
			}
			if removed > 0 {
				app.logger.Debug("Queue retention sweep", zap.Int64("removed", removed))
			}
		})
	}

	// 启动HTTP服务器
	if err := app.httpServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	app.logger.Info("Application started successfully",
		zap.String("host", app.config.Server.Host),
		zap.Int("port", app.config.Server.Port),
		zap.Bool("embedded_worker", app.dispatcher != nil),
	)
	return nil
}

// Stop 停止应用程序
func (app *App) Stop(ctx context.Context) error {
	app.logger.Info("Stopping application")

	// 停止HTTP服务器（先停入口, 在途请求在 ctx 期限内排空）
	if err := app.httpServer.Stop(ctx); err != nil {
		app.logger.Error("Failed to stop HTTP server", zap.Error(err))
	}

	// 停止内嵌工作池
	if app.workerCancel != nil {
		app.workerCancel()
	}

	// 关闭外部连接
	if app.shadow != nil {
		if err := app.shadow.Close(); err != nil {
			app.logger.Error("Failed to close shadow vector store", zap.Error(err))
		}
	}
	if app.authoritative != nil {
		if err := app.authoritative.Close(); err != nil {
			app.logger.Error("Failed to close authoritative vector store", zap.Error(err))
		}
	}
	if app.redisClient != nil {
		if err := app.redisClient.Close(); err != nil {
			app.logger.Error("Failed to close cache store connection", zap.Error(err))
		}
	}

	app.logger.Info("Application stopped successfully")
	return nil
}

// Logger returns the application logger
func (app *App) Logger() *zap.Logger {
	return app.logger
}

// AppConfig returns the application config
func (app *App) AppConfig() *config.Config {
	return app.config
}
