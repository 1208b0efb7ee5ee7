package entity

import "errors"

var (
	// Message errors
	ErrInvalidMessageID         = errors.New("invalid message id")
	ErrInvalidExternalMessageID = errors.New("invalid external message id")
	ErrInvalidRoomID            = errors.New("invalid room id")

	// Aggregate errors
	ErrInvalidUserID = errors.New("invalid user id")

	// AI chat errors
	ErrInvalidChatRecordID = errors.New("invalid chat record id")

	// Job errors
	ErrInvalidJobKind = errors.New("invalid job kind")
)
