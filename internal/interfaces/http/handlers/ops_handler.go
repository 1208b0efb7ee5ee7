package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mijoai/mijo-gateway/internal/application/usecase"
)

// OpsHandler 运维观测端点处理器
type OpsHandler struct {
	admin  *usecase.AdminUseCase
	logger *zap.Logger
}

// NewOpsHandler 创建运维处理器
func NewOpsHandler(admin *usecase.AdminUseCase, logger *zap.Logger) *OpsHandler {
	return &OpsHandler{admin: admin, logger: logger}
}

// QueueStats 汇报各作业队列与提供商的运行状态
// GET /api/v1/queues/stats
func (h *OpsHandler) QueueStats(c *gin.Context) {
	stats, err := h.admin.QueueStats(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to collect queue stats", zap.Error(err))
		respondError(c, err)
		return
	}

	resp := gin.H{
		"success": true,
		"queues":  stats.Queues,
	}
	if len(stats.Providers) > 0 {
		resp["providers"] = stats.Providers
	}
	c.JSON(http.StatusOK, resp)
}

// RateLimits 汇报各提供商的限流窗口状态
// GET /api/v1/rate-limits
func (h *OpsHandler) RateLimits(c *gin.Context) {
	limits, err := h.admin.RateLimits(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to collect rate limit status", zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"limits":  limits,
	})
}
