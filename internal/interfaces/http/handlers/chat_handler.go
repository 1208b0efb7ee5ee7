package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mijoai/mijo-gateway/internal/application/usecase"
	"github.com/mijoai/mijo-gateway/internal/domain/entity"
)

// ChatHandler 生成式端点与对话历史处理器
type ChatHandler struct {
	chat    *usecase.ChatUseCase
	reply   *usecase.ReplyUseCase
	history *usecase.HistoryUseCase
	logger  *zap.Logger
}

// NewChatHandler 创建对话处理器
func NewChatHandler(
	chat *usecase.ChatUseCase,
	reply *usecase.ReplyUseCase,
	history *usecase.HistoryUseCase,
	logger *zap.Logger,
) *ChatHandler {
	return &ChatHandler{
		chat:    chat,
		reply:   reply,
		history: history,
		logger:  logger,
	}
}

type ChatRequest struct {
	RoomID       string `json:"roomId" binding:"required"`
	UserID       string `json:"userId" binding:"required"`
	UserQuestion string `json:"userQuestion" binding:"required"`
}

type ReplyRequest struct {
	RoomID    string `json:"roomId" binding:"required"`
	SenderID  string `json:"senderId" binding:"required"`
	MessageID string `json:"messageId" binding:"required"`
}

type chatResponse struct {
	Success bool `json:"success"`
	*usecase.ChatOutput
}

type replyResponse struct {
	Success bool `json:"success"`
	*usecase.ReplyOutput
}

// historyRecord 对话历史的线格式
type historyRecord struct {
	ID              string    `json:"id"`
	UserID          string    `json:"userId"`
	RoomID          string    `json:"roomId"`
	Question        string    `json:"question"`
	Answer          string    `json:"answer"`
	SuggestedAnswer string    `json:"suggestedAnswer"`
	Provider        string    `json:"provider"`
	Model           string    `json:"model"`
	CreatedAt       time.Time `json:"createdAt"`
}

func historyRecords(records []*entity.AIChatRecord) []historyRecord {
	out := make([]historyRecord, 0, len(records))
	for _, r := range records {
		out = append(out, historyRecord{
			ID:              r.ID,
			UserID:          r.UserID,
			RoomID:          r.RoomID,
			Question:        r.Question,
			Answer:          r.Answer,
			SuggestedAnswer: r.SuggestedAnswer,
			Provider:        r.Provider,
			Model:           r.Model,
			CreatedAt:       r.CreatedAt,
		})
	}
	return out
}

// Chat 回答用户提问
// POST /api/v1/chat
func (h *ChatHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "roomId, userId and userQuestion are required")
		return
	}

	out, err := h.chat.Execute(c.Request.Context(), usecase.ChatInput{
		RoomID:   req.RoomID,
		UserID:   req.UserID,
		Question: req.UserQuestion,
	})
	if err != nil {
		h.logger.Error("Chat request failed",
			zap.String("room_id", req.RoomID),
			zap.String("user_id", req.UserID),
			zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, chatResponse{Success: true, ChatOutput: out})
}

// Reply 代笔回复目标消息
// POST /api/v1/chat/reply
func (h *ChatHandler) Reply(c *gin.Context) {
	var req ReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "roomId, senderId and messageId are required")
		return
	}

	out, err := h.reply.Execute(c.Request.Context(), usecase.ReplyInput{
		RoomID:    req.RoomID,
		SenderID:  req.SenderID,
		MessageID: req.MessageID,
	})
	if err != nil {
		h.logger.Warn("Reply request failed",
			zap.String("room_id", req.RoomID),
			zap.String("sender_id", req.SenderID),
			zap.String("message_id", req.MessageID),
			zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, replyResponse{Success: true, ReplyOutput: out})
}

// History 查询对话历史
// GET /api/v1/chat/history?userId=&roomId=&limit=
func (h *ChatHandler) History(c *gin.Context) {
	userID := c.Query("userId")
	roomID := c.Query("roomId")

	limit := usecase.DefaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			respondBadRequest(c, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	records, err := h.history.Query(c.Request.Context(), userID, roomID, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(records),
		"history": historyRecords(records),
	})
}

// DeleteHistory 删除房间对话历史
// DELETE /api/v1/chat/history/:roomId?userId=
func (h *ChatHandler) DeleteHistory(c *gin.Context) {
	roomID := c.Param("roomId")
	userID := c.Query("userId")

	if err := h.history.Delete(c.Request.Context(), roomID, userID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
