package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mijoai/mijo-gateway/internal/domain/entity"
	"github.com/mijoai/mijo-gateway/internal/domain/identity"
	"github.com/mijoai/mijo-gateway/internal/domain/memory"
	"github.com/mijoai/mijo-gateway/internal/domain/repository"
	"github.com/mijoai/mijo-gateway/internal/domain/service"
	"github.com/mijoai/mijo-gateway/internal/infrastructure/media"
	domainErrors "github.com/mijoai/mijo-gateway/pkg/errors"
	"github.com/mijoai/mijo-gateway/pkg/safego"
)

// summaryTimeout bounds the detached summary updates; they carry their own
// context because the HTTP request is already answered when they run.
const summaryTimeout = 3 * time.Minute

// ocrLanguageHints 房间以阿拉伯语为主, 图片内嵌英文也常见
var ocrLanguageHints = []string{"Arabic", "English"}

// IngestInput 采集一条房间消息所需的全部字段
// Media 中的每项是 sender backend 的媒体 key 或完整 URL
type IngestInput struct {
	RoomID            string
	SenderID          string
	SenderName        string
	ExternalMessageID string
	CreatedAt         time.Time
	Text              string
	Media             []string
}

// IngestMessageUseCase turns an incoming room message into a stored,
// embedded record. Media items are expanded into text through the job
// queue before the message is written, so the stored text always carries
// what the media said.
type IngestMessageUseCase struct {
	messages   repository.MessageRepository
	embedder   memory.Embedder
	fetcher    *media.Fetcher
	jobs       *JobRunner
	summarizer *service.Summarizer
	logger     *zap.Logger
}

// NewIngestMessageUseCase creates the message ingestion use-case.
func NewIngestMessageUseCase(
	messages repository.MessageRepository,
	embedder memory.Embedder,
	fetcher *media.Fetcher,
	jobs *JobRunner,
	summarizer *service.Summarizer,
	logger *zap.Logger,
) *IngestMessageUseCase {
	return &IngestMessageUseCase{
		messages:   messages,
		embedder:   embedder,
		fetcher:    fetcher,
		jobs:       jobs,
		summarizer: summarizer,
		logger:     logger.With(zap.String("component", "ingest")),
	}
}

// Execute ingests one message end to end. The returned entity reflects
// what both stores now hold; summary updates continue in the background
// after it returns.
func (uc *IngestMessageUseCase) Execute(ctx context.Context, input IngestInput) (*entity.Message, error) {
	if err := validateIngestInput(input); err != nil {
		return nil, err
	}

	msg, err := entity.NewMessage(identity.NewMessageID(), input.ExternalMessageID, input.RoomID)
	if err != nil {
		return nil, domainErrors.NewInvalidInputError(err.Error())
	}
	msg.SenderID = input.SenderID
	msg.SenderName = input.SenderName
	if !input.CreatedAt.IsZero() {
		msg.CreatedAt = input.CreatedAt.UTC()
	}

	// 1. Expand media into text. One failed extraction fails the whole
	// ingest: storing a message without its media text would silently
	// change what the room remembers.
	extracted, err := uc.extractMedia(ctx, input.Media)
	if err != nil {
		uc.logger.Error("Media extraction failed",
			zap.String("room_id", input.RoomID),
			zap.String("external_message_id", input.ExternalMessageID),
			zap.Error(err))
		return nil, err
	}

	// 2. Join raw text with extracted texts.
	msg.SetContent(input.Text, extracted)
	if !msg.HasContent() {
		return nil, domainErrors.NewInvalidInputError("no content")
	}

	// 3. Embed the final text as a passage.
	vector, err := uc.embedder.Embed(ctx, msg.Content, memory.PrefixPassage)
	if err != nil {
		return nil, domainErrors.NewProviderError("failed to embed message", err)
	}

	// 4. Dual-store write.
	if err := uc.messages.Save(ctx, msg, vector); err != nil {
		return nil, err
	}

	uc.logger.Info("Message ingested",
		zap.String("room_id", msg.RoomID),
		zap.String("external_message_id", msg.ExternalMessageID),
		zap.Int("media_count", len(input.Media)),
		zap.Int("content_length", len(msg.Content)))

	// 5. Detached summary updates. The response does not wait for them.
	content, senderID, senderName := msg.Content, msg.SenderID, msg.SenderName
	roomID := msg.RoomID
	safego.Go(uc.logger, "room-summary", func() {
		bg, cancel := context.WithTimeout(context.Background(), summaryTimeout)
		defer cancel()
		uc.summarizer.UpdateRoomSummary(bg, roomID, content, senderName)
	})
	if senderID != "" {
		safego.Go(uc.logger, "user-personalization", func() {
			bg, cancel := context.WithTimeout(context.Background(), summaryTimeout)
			defer cancel()
			uc.summarizer.UpdateUserPersonalization(bg, senderID, content, senderName)
		})
	}

	return msg, nil
}

func validateIngestInput(input IngestInput) error {
	if input.RoomID == "" {
		return domainErrors.NewInvalidInputError("room is required")
	}
	if input.ExternalMessageID == "" {
		return domainErrors.NewInvalidInputError("initId is required")
	}
	if input.Text == "" && len(input.Media) == 0 {
		return domainErrors.NewInvalidInputError("message or media is required")
	}
	return nil
}

// extractMedia runs every media item through its extraction pipeline
// concurrently and returns the texts in input order.
func (uc *IngestMessageUseCase) extractMedia(ctx context.Context, items []string) ([]string, error) {
	if len(items) == 0 {
		return nil, nil
	}

	texts := make([]string, len(items))
	g, gctx := errgroup.WithContext(ctx)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			text, err := uc.extractOne(gctx, item)
			if err != nil {
				return err
			}
			texts[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return texts, nil
}

// extractOne classifies one media item by its probed Content-Type and
// runs the matching extraction. Unknown types contribute nothing; the
// raw text may still carry the message.
func (uc *IngestMessageUseCase) extractOne(ctx context.Context, item string) (string, error) {
	mimeType, err := uc.fetcher.Probe(ctx, item)
	if err != nil {
		return "", domainErrors.NewProviderError("failed to probe media type", err)
	}

	switch media.Classify(mimeType) {
	case media.KindImage:
		return uc.extractImage(ctx, item)
	case media.KindAudio:
		transcript, err := uc.jobs.Transcribe(ctx, item, "", entity.PriorityNormal)
		if err != nil {
			return "", err
		}
		return transcript.Text, nil
	case media.KindText:
		data, _, err := uc.fetcher.Fetch(ctx, item)
		if err != nil {
			return "", domainErrors.NewProviderError("failed to fetch text media", err)
		}
		return string(data), nil
	default:
		uc.logger.Warn("Skipping media with unsupported type",
			zap.String("media", item),
			zap.String("mime_type", mimeType))
		return "", nil
	}
}

// extractImage runs description and OCR concurrently; both read the same
// image. The description leads so the stored text opens with what the
// image shows, followed by what it says.
func (uc *IngestMessageUseCase) extractImage(ctx context.Context, item string) (string, error) {
	var description, ocrText string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		result, err := uc.jobs.Describe(gctx, item, "", entity.PriorityNormal)
		if err != nil {
			return err
		}
		description = result.Description
		return nil
	})
	g.Go(func() error {
		result, err := uc.jobs.ExtractText(gctx, item, ocrLanguageHints, entity.PriorityNormal)
		if err != nil {
			return err
		}
		if result.HasText {
			ocrText = result.Text
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return "", err
	}

	if description != "" && ocrText != "" {
		return description + " " + ocrText, nil
	}
	return description + ocrText, nil
}
