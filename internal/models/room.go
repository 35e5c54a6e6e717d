package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Room is an ephemeral chat room. Its status (waiting, active, full) is
// never stored; it is always derived from the member count and capacity.
type Room struct {
	ID          string `gorm:"type:uuid;primaryKey" json:"id"`
	DisplayName string `json:"display_name"`
	// CreatorID is the user who opened the room. Only the creator may
	// change the member limit.
	CreatorID string `gorm:"type:uuid;index" json:"creator_id"`
	// Question is the free-text prompt the room was opened around.
	// Matchmaking matches on it by case-insensitive substring.
	Question string `gorm:"index" json:"question"`
	// MemberLimit caps membership. Zero means the configured default.
	MemberLimit int `json:"member_limit"`

	Members   []*User   `gorm:"many2many:room_members" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

func (r *Room) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// Message is an append-only chat line. Messages are owned by their room
// and removed together with it; they are never edited.
type Message struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	CreatorID string    `gorm:"type:uuid;not null;index" json:"creator_id"`
	RoomID    string    `gorm:"type:uuid;not null;index:idx_room_created" json:"room_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"index:idx_room_created" json:"created_at"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// Conversation is a user's inbox entry for a room: exactly one row per
// (participant, room) pair while the participant remains a member. It is
// denormalized read-state, not source of truth.
type Conversation struct {
	ID              string    `gorm:"type:uuid;primaryKey" json:"id"`
	ParticipantID   string    `gorm:"type:uuid;not null;uniqueIndex:idx_participant_room" json:"participant_id"`
	RoomID          string    `gorm:"type:uuid;not null;uniqueIndex:idx_participant_room" json:"room_id"`
	LatestMessageID *string   `gorm:"type:uuid" json:"latest_message_id"`
	Read            bool      `json:"read"`
	CreatedAt       time.Time `json:"created_at"`
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
