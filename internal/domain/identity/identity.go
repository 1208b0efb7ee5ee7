// Package identity derives point IDs for the vector collections.
//
// Messages and AI chat records get a fresh random ID per insert. Room and
// user aggregates get deterministic IDs derived from their external IDs, so
// repeated updates for the same room or user always land on the same point
// and an upsert replaces instead of duplicating.
package identity

import "github.com/google/uuid"

// Distinct namespaces keep the two derivation families collision-free even
// for identical external IDs.
var (
	roomNamespace = uuid.MustParse("7b9e6ad1-4c0a-4d2f-9b3e-5a1f2c8d7e60")
	userNamespace = uuid.MustParse("c3d8f7b2-91e4-4f6a-8d05-6b2a9c4e1f37")
)

// NewMessageID returns a fresh random ID for a message point.
func NewMessageID() string {
	return uuid.New().String()
}

// NewChatRecordID returns a fresh random ID for an AI chat record point.
func NewChatRecordID() string {
	return uuid.New().String()
}

// NewJobID returns a fresh random ID for a queued job.
func NewJobID() string {
	return uuid.New().String()
}

// RoomPointID returns the deterministic point ID for a room aggregate.
func RoomPointID(roomID string) string {
	return uuid.NewSHA1(roomNamespace, []byte(roomID)).String()
}

// UserPointID returns the deterministic point ID for a user aggregate.
func UserPointID(userID string) string {
	return uuid.NewSHA1(userNamespace, []byte(userID)).String()
}
