package entity

import "time"

// AIChatRecord AI 对话历史记录
// 仅 chat 成功后写入; reply 请求从不持久化
type AIChatRecord struct {
	ID              string
	UserID          string
	RoomID          string
	Question        string
	Answer          string
	SuggestedAnswer string
	Provider        string
	Model           string
	CreatedAt       time.Time
}

// NewAIChatRecord 创建对话记录（工厂方法）
func NewAIChatRecord(id, userID, roomID, question, answer string) (*AIChatRecord, error) {
	if id == "" {
		return nil, ErrInvalidChatRecordID
	}
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	if roomID == "" {
		return nil, ErrInvalidRoomID
	}
	return &AIChatRecord{
		ID:        id,
		UserID:    userID,
		RoomID:    roomID,
		Question:  question,
		Answer:    answer,
		CreatedAt: time.Now().UTC(),
	}, nil
}
