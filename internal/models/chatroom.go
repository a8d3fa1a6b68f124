package models

import "time"

// Chat kinds. Voice covers the text/voice search flow.
const (
	ChatKindVoice = "voice"
	ChatKindVideo = "video"
)

// ChatRoom records an accepted 1-on-1 pairing between two connections.
// Rows are written after the fact; the live match state is kept in memory.
type ChatRoom struct {
	// RoomID is the unique identifier for the pairing (UUID).
	RoomID string `gorm:"primaryKey"`
	// Kind is ChatKindVoice or ChatKindVideo.
	Kind string `gorm:"type:text;not null;index"`
	// User1ID and User2ID are the participants' user IDs.
	User1ID string `gorm:"index"`
	User2ID string `gorm:"index"`
	// Handle1 and Handle2 are the connection handles that were paired.
	Handle1 string
	Handle2 string
	// IsActive is true until the chat ends or the process restarts.
	IsActive  bool `gorm:"index"`
	StartedAt time.Time
	EndedAt   *time.Time
	// EndReason is "ended", "skipped", "disconnect" or "shutdown".
	EndReason string
}
