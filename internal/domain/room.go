package domain

import (
	"errors"
	"time"
)

const RoomIDLen = 24

var ErrInvalidRoomID = errors.New("invalid room id")

type RoomID string

type RoomType string

const (
	RoomDirect RoomType = "direct"
	RoomGroup  RoomType = "group"
)

// ValidateRoomID rejects anything that is not a 24-char hex identifier
// before it ever reaches the wire.
func ValidateRoomID(id RoomID) error {
	if len(id) != RoomIDLen {
		return ErrInvalidRoomID
	}
	for _, r := range id {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return ErrInvalidRoomID
		}
	}
	return nil
}

// Room is immutable once joined except for LastMessage and membership.
type Room struct {
	ID             RoomID   `json:"id"`
	Name           string   `json:"name"`
	Type           RoomType `json:"type"`
	CreatorID      UserID   `json:"creatorId"`
	ParticipantIDs []UserID `json:"participantIds"`
	LastMessage    *Message `json:"lastMessage,omitempty"`
}

// RoomSpec is the client's create_room request body.
type RoomSpec struct {
	Name           string   `json:"name" validate:"required,max=64"`
	Type           RoomType `json:"type" validate:"required,oneof=direct group"`
	ParticipantIDs []UserID `json:"participantIds" validate:"required,min=1"`
}

type MessageID string

type Message struct {
	ID             MessageID `json:"id"`
	RoomID         RoomID    `json:"roomId"`
	SenderID       UserID    `json:"senderId"`
	SenderUsername string    `json:"senderUsername"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
}
