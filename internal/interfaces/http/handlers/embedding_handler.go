package handlers

import (
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mijoai/mijo-gateway/internal/application/usecase"
	"github.com/mijoai/mijo-gateway/internal/domain/memory"
)

// EmbeddingHandler serves message ingestion, semantic search and the
// embedding-store admin surface.
type EmbeddingHandler struct {
	ingest *usecase.IngestMessageUseCase
	search *usecase.SearchUseCase
	admin  *usecase.AdminUseCase
	logger *zap.Logger
}

func NewEmbeddingHandler(
	ingest *usecase.IngestMessageUseCase,
	search *usecase.SearchUseCase,
	admin *usecase.AdminUseCase,
	logger *zap.Logger,
) *EmbeddingHandler {
	return &EmbeddingHandler{
		ingest: ingest,
		search: search,
		admin:  admin,
		logger: logger,
	}
}

// IngestMessageRequest 与 sender backend 的转发格式对齐
type IngestMessageRequest struct {
	Room      string     `json:"room" binding:"required"`
	Message   string     `json:"message"`
	Media     []string   `json:"media"`
	InitID    string     `json:"initId" binding:"required"`
	CreatedAt *time.Time `json:"createdAt"`
	From      string     `json:"from"`
	FromName  string     `json:"from_name"`
}

type SearchRequest struct {
	Query    string   `json:"query" binding:"required"`
	TopK     *int     `json:"topK"`
	MinScore *float32 `json:"minScore"`
	Room     string   `json:"room"`
}

// searchHit is the wire view of one scored point; vectors stay out of
// the response.
type searchHit struct {
	ID      string                 `json:"id"`
	Score   float32                `json:"score"`
	Payload map[string]interface{} `json:"payload"`
}

func searchHits(points []*memory.ScoredPoint) []searchHit {
	hits := make([]searchHit, 0, len(points))
	for _, p := range points {
		hits = append(hits, searchHit{ID: p.ID, Score: p.Score, Payload: p.Payload})
	}
	return hits
}

func (h *EmbeddingHandler) IngestMessage(c *gin.Context) {
	start := time.Now()

	var req IngestMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "room and initId are required")
		return
	}
	if req.Message == "" && len(req.Media) == 0 {
		respondBadRequest(c, "message or media is required")
		return
	}

	input := usecase.IngestInput{
		RoomID:            req.Room,
		SenderID:          req.From,
		SenderName:        req.FromName,
		ExternalMessageID: req.InitID,
		Text:              req.Message,
		Media:             req.Media,
	}
	if req.CreatedAt != nil {
		input.CreatedAt = *req.CreatedAt
	}

	msg, err := h.ingest.Execute(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"id":             msg.ExternalMessageID,
			"room_id":        msg.RoomID,
			"sender_id":      msg.SenderID,
			"sender_name":    msg.SenderName,
			"content_length": utf8.RuneCountInString(msg.Content),
			"media_count":    len(req.Media),
		},
		"processingTime": time.Since(start).Milliseconds(),
	})
}

func (h *EmbeddingHandler) Search(c *gin.Context) {
	start := time.Now()

	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "query is required")
		return
	}

	input := usecase.SearchInput{
		Query:    req.Query,
		TopK:     usecase.DefaultTopK,
		MinScore: usecase.DefaultMinScore,
		RoomID:   req.Room,
	}
	if req.TopK != nil {
		input.TopK = *req.TopK
	}
	if req.MinScore != nil {
		input.MinScore = *req.MinScore
	}

	results, err := h.search.Execute(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"query":   req.Query,
		"results": gin.H{
			"authoritative": searchHits(results.Authoritative),
			"shadow":        searchHits(results.Shadow),
		},
		"metadata": gin.H{
			"topK":           input.TopK,
			"minScore":       input.MinScore,
			"room":           input.RoomID,
			"processingTime": time.Since(start).Milliseconds(),
		},
	})
}

func (h *EmbeddingHandler) Stats(c *gin.Context) {
	stats, err := h.admin.EmbeddingStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"stats":   stats,
	})
}

func (h *EmbeddingHandler) RoomSummary(c *gin.Context) {
	room, err := h.admin.RoomSummary(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"roomId":       room.RoomID,
		"summary":      room.Summary,
		"messageCount": room.MessageCount,
		"updatedAt":    room.UpdatedAt,
	})
}

func (h *EmbeddingHandler) UserPersonalization(c *gin.Context) {
	user, err := h.admin.UserPersonalization(c.Request.Context(), c.Param("userId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":                true,
		"userId":                 user.UserID,
		"personalizationSummary": user.PersonalizationSummary,
		"messageCount":           user.MessageCount,
		"updatedAt":              user.UpdatedAt,
	})
}

func (h *EmbeddingHandler) DeleteMessage(c *gin.Context) {
	if err := h.admin.DeleteMessage(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *EmbeddingHandler) DeleteRoom(c *gin.Context) {
	if err := h.admin.DeleteRoom(c.Request.Context(), c.Param("roomId")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
