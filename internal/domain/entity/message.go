package entity

import (
	"strings"
	"time"
)

// Message 房间消息实体
// Content 为原始文本与媒体提取文本拼接后的最终内容
type Message struct {
	ID                string
	ExternalMessageID string
	RoomID            string
	SenderID          string
	SenderName        string
	Content           string
	CreatedAt         time.Time
}

// NewMessage 创建新消息（工厂方法）
func NewMessage(id, externalMessageID, roomID string) (*Message, error) {
	if id == "" {
		return nil, ErrInvalidMessageID
	}
	if externalMessageID == "" {
		return nil, ErrInvalidExternalMessageID
	}
	if roomID == "" {
		return nil, ErrInvalidRoomID
	}
	return &Message{
		ID:                id,
		ExternalMessageID: externalMessageID,
		RoomID:            roomID,
		CreatedAt:         time.Now().UTC(),
	}, nil
}

// SetContent joins the raw text with any extracted media texts. Parts that
// are empty after trimming are skipped; the result is space-joined.
func (m *Message) SetContent(raw string, extracted []string) {
	parts := make([]string, 0, len(extracted)+1)
	if s := strings.TrimSpace(raw); s != "" {
		parts = append(parts, s)
	}
	for _, e := range extracted {
		if s := strings.TrimSpace(e); s != "" {
			parts = append(parts, s)
		}
	}
	m.Content = strings.Join(parts, " ")
}

// HasContent 判断拼接后是否仍有内容
func (m *Message) HasContent() bool {
	return strings.TrimSpace(m.Content) != ""
}
