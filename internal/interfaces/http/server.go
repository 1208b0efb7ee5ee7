package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mijoai/mijo-gateway/internal/application/usecase"
	"github.com/mijoai/mijo-gateway/internal/interfaces/http/handlers"
)

// Server HTTP服务器
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// Config HTTP服务器配置
type Config struct {
	Host string
	Port int
}

// StoreHealth 各外部依赖的连通状态
type StoreHealth struct {
	Authoritative bool `json:"authoritative"`
	Shadow        bool `json:"shadow"`
	Cache         bool `json:"cache"`
}

// HealthStatus 健康检查响应
type HealthStatus struct {
	OK                  bool        `json:"ok"`
	ProvidersConfigured int         `json:"providersConfigured"`
	StoresConnected     StoreHealth `json:"storesConnected"`
	EmbeddingModel      string      `json:"embeddingModel"`
	EmbeddingSize       int         `json:"embeddingSize"`
}

// Deps 路由依赖的全部应用服务
type Deps struct {
	Ingest  *usecase.IngestMessageUseCase
	Chat    *usecase.ChatUseCase
	Reply   *usecase.ReplyUseCase
	Search  *usecase.SearchUseCase
	History *usecase.HistoryUseCase
	Admin   *usecase.AdminUseCase
	Jobs    *usecase.JobRunner
	Health  func(ctx context.Context) HealthStatus
}

// NewServer 创建HTTP服务器
func NewServer(cfg Config, deps Deps, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logger))

	// 注册路由
	setupRoutes(router, deps, logger)

	// 创建HTTP服务器
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	return &Server{
		server: server,
		logger: logger,
	}
}

// Start 启动服务器
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server", zap.String("address", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop 停止服务器
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// setupRoutes 设置路由
func setupRoutes(router *gin.Engine, deps Deps, logger *zap.Logger) {
	mediaHandler := handlers.NewMediaHandler(deps.Jobs, logger)
	embeddingHandler := handlers.NewEmbeddingHandler(deps.Ingest, deps.Search, deps.Admin, logger)
	chatHandler := handlers.NewChatHandler(deps.Chat, deps.Reply, deps.History, logger)
	opsHandler := handlers.NewOpsHandler(deps.Admin, logger)

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		status := deps.Health(c.Request.Context())
		code := http.StatusOK
		if !status.OK {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	})

	// 直连媒体端点（高优先级任务, 同步等待结果）
	router.POST("/transcribe-audio", mediaHandler.TranscribeAudio)
	router.POST("/describe-image", mediaHandler.DescribeImage)
	router.POST("/extract-text", mediaHandler.ExtractText)

	// API版本1
	v1 := router.Group("/api/v1")
	{
		chat := v1.Group("/chat")
		{
			chat.POST("", chatHandler.Chat)
			chat.POST("/reply", chatHandler.Reply)
			chat.GET("/history", chatHandler.History)
			chat.DELETE("/history/:roomId", chatHandler.DeleteHistory)
		}

		embedding := v1.Group("/embedding")
		{
			embedding.POST("/messages", embeddingHandler.IngestMessage)
			embedding.POST("/search", embeddingHandler.Search)
			embedding.GET("/stats", embeddingHandler.Stats)
			embedding.GET("/rooms/:roomId/summary", embeddingHandler.RoomSummary)
			embedding.GET("/users/:userId/personalization-summary", embeddingHandler.UserPersonalization)
			embedding.DELETE("/messages/:id", embeddingHandler.DeleteMessage)
			embedding.DELETE("/rooms/:roomId", embeddingHandler.DeleteRoom)
		}

		v1.GET("/queues/stats", opsHandler.QueueStats)
		v1.GET("/rate-limits", opsHandler.RateLimits)
	}
}

// ginLogger Gin日志中间件
func ginLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", statusCode),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
