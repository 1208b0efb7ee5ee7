package entity

import "time"

// MaxSummaryLength 滚动摘要长度上限（字符数）
const MaxSummaryLength = 3000

// RoomAggregate 房间聚合：滚动摘要 + 消息计数
// 聚合点位 ID 由 roomId 确定性派生, 同一房间始终落在同一点位
type RoomAggregate struct {
	RoomID       string
	Summary      string
	MessageCount int64
	UpdatedAt    time.Time
}

// NewRoomAggregate 创建空的房间聚合
func NewRoomAggregate(roomID string) (*RoomAggregate, error) {
	if roomID == "" {
		return nil, ErrInvalidRoomID
	}
	return &RoomAggregate{RoomID: roomID, UpdatedAt: time.Now().UTC()}, nil
}

// ApplySummary 更新摘要并推进计数, 超长部分按 rune 截断
func (r *RoomAggregate) ApplySummary(summary string) {
	r.Summary = TruncateSummary(summary)
	r.MessageCount++
	r.UpdatedAt = time.Now().UTC()
}

// UserAggregate 用户聚合：个性化摘要 + 消息计数
type UserAggregate struct {
	UserID                 string
	PersonalizationSummary string
	MessageCount           int64
	UpdatedAt              time.Time
}

// NewUserAggregate 创建空的用户聚合
func NewUserAggregate(userID string) (*UserAggregate, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	return &UserAggregate{UserID: userID, UpdatedAt: time.Now().UTC()}, nil
}

// ApplySummary 更新个性化摘要并推进计数
func (u *UserAggregate) ApplySummary(summary string) {
	u.PersonalizationSummary = TruncateSummary(summary)
	u.MessageCount++
	u.UpdatedAt = time.Now().UTC()
}

// TruncateSummary caps a summary at MaxSummaryLength runes. Truncation is
// rune-safe so multi-byte text (Arabic in particular) is never split
// mid-character.
func TruncateSummary(s string) string {
	runes := []rune(s)
	if len(runes) <= MaxSummaryLength {
		return s
	}
	return string(runes[:MaxSummaryLength])
}
