package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq" // pq.StringArray for the favorites column
	"gorm.io/gorm"
)

// User is a registered campus member.
// Registration, OTP verification and password handling live in the account
// service; this backend only reads profiles and writes presence columns.
type User struct {
	ID           string         `gorm:"primaryKey" json:"id"`
	Email        string         `gorm:"uniqueIndex;not null" json:"email"`
	Name         string         `json:"name"`
	Nickname     string         `json:"nickname,omitempty"`
	Campus       string         `json:"campus,omitempty"`
	Batch        string         `json:"batch,omitempty"`
	Department   string         `json:"department,omitempty"`
	Gender       string         `json:"gender,omitempty"` // male, female, other
	Age          int            `json:"age,omitempty"`
	AboutMe      string         `json:"aboutMe,omitempty"`
	ProfilePhoto string         `json:"profilePhoto,omitempty"`
	Favorites    pq.StringArray `gorm:"type:text[]" json:"favorites,omitempty"`

	IsOnline bool      `gorm:"index" json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BeforeCreate fills in a UUID when the account service did not provide one.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return
}

// DisplayName prefers the nickname, then the real name, then the email.
func (u *User) DisplayName() string {
	switch {
	case u.Nickname != "":
		return u.Nickname
	case u.Name != "":
		return u.Name
	default:
		return u.Email
	}
}

// Identity builds the session identity for an authenticated user.
func (u *User) Identity() Identity {
	return Identity{
		UserID:      u.ID,
		DisplayName: u.DisplayName(),
		AvatarRef:   u.ProfilePhoto,
		Campus:      u.Campus,
		Batch:       u.Batch,
		Department:  u.Department,
	}
}
