package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User represents a participant in the system. The Username is the opaque
// subject string handed to us by the external identity provider; the ID is
// our own anonymous UUID and the only thing other users ever see.
type User struct {
	ID string `gorm:"type:uuid;primaryKey" json:"id"`
	// Username is the verified identity subject from the auth boundary.
	Username string `gorm:"uniqueIndex;not null" json:"username"`
	// DisplayName is unique across all users. Renames that collide fail
	// with ErrNameTaken instead of crashing.
	DisplayName string `gorm:"uniqueIndex;not null" json:"display_name"`
	IsVerified  bool   `json:"is_verified"`
	IsOnline    bool   `json:"is_online"`
	AgreedTerms bool   `json:"agreed_terms"`

	// BlockedUsers and ReportedUsers are asymmetric self-relations: A
	// blocking B says nothing about B blocking A.
	BlockedUsers  []*User  `gorm:"many2many:user_blocked_users;joinForeignKey:UserID;joinReferences:BlockedID" json:"-"`
	ReportedUsers []*User  `gorm:"many2many:user_reported_users;joinForeignKey:UserID;joinReferences:ReportedID" json:"-"`
	Topics        []*Topic `gorm:"many2many:user_topics" json:"-"`

	CreatedAt time.Time `json:"created_at"`
}

// BeforeCreate generates the anonymous UUID when none has been assigned yet.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// Topic is a chat interest attached to a user profile.
type Topic struct {
	ID   string `gorm:"type:uuid;primaryKey" json:"id"`
	Name string `gorm:"uniqueIndex;not null" json:"name"`
}

func (t *Topic) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}
