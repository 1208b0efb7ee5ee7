package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mijoai/mijo-gateway/internal/application/usecase"
	"github.com/mijoai/mijo-gateway/internal/domain/entity"
)

// MediaHandler serves the synchronous extraction endpoints. Each request
// becomes a high-priority job so interactive callers overtake the ingest
// backlog but still share the limiter and the fallback chains.
type MediaHandler struct {
	jobs   *usecase.JobRunner
	logger *zap.Logger
}

func NewMediaHandler(jobs *usecase.JobRunner, logger *zap.Logger) *MediaHandler {
	return &MediaHandler{
		jobs:   jobs,
		logger: logger,
	}
}

type TranscribeAudioRequest struct {
	AudioURL string `json:"audioUrl" binding:"required"`
}

type DescribeImageRequest struct {
	ImageURL string `json:"imageUrl" binding:"required"`
	Prompt   string `json:"prompt"`
}

type ExtractTextRequest struct {
	ImageURL string `json:"imageUrl" binding:"required"`
}

func (h *MediaHandler) TranscribeAudio(c *gin.Context) {
	var req TranscribeAudioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "audioUrl is required")
		return
	}

	result, err := h.jobs.Transcribe(c.Request.Context(), req.AudioURL, "", entity.PriorityHigh)
	if err != nil {
		h.logger.Error("Transcription failed", zap.String("audio_url", req.AudioURL), zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"text":     result.Text,
		"audioUrl": req.AudioURL,
	})
}

func (h *MediaHandler) DescribeImage(c *gin.Context) {
	var req DescribeImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "imageUrl is required")
		return
	}

	result, err := h.jobs.Describe(c.Request.Context(), req.ImageURL, req.Prompt, entity.PriorityHigh)
	if err != nil {
		h.logger.Error("Image description failed", zap.String("image_url", req.ImageURL), zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"description": result.Description,
		"imageUrl":    req.ImageURL,
		"prompt":      req.Prompt,
	})
}

func (h *MediaHandler) ExtractText(c *gin.Context) {
	var req ExtractTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "imageUrl is required")
		return
	}

	result, err := h.jobs.ExtractText(c.Request.Context(), req.ImageURL, nil, entity.PriorityHigh)
	if err != nil {
		h.logger.Error("Text extraction failed", zap.String("image_url", req.ImageURL), zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"text":     result.Text,
		"imageUrl": req.ImageURL,
	})
}
