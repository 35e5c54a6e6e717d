package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// ReportedChat is an append-only audit record created when a user reports
// another member of a shared room. Messages holds a transcript snapshot
// taken at report time, so moderators can review the chat even after the
// room itself has been garbage-collected.
type ReportedChat struct {
	ID         string         `gorm:"type:uuid;primaryKey" json:"id"`
	ReporterID string         `gorm:"type:uuid;not null;index" json:"reporter_id"`
	ReportedID string         `gorm:"type:uuid;not null;index" json:"reported_id"`
	RoomID     string         `gorm:"type:uuid;not null" json:"room_id"`
	Messages   pq.StringArray `gorm:"type:text[]" json:"messages"`
	Resolved   bool           `json:"resolved"`
	CreatedAt  time.Time      `json:"created_at"`
}

func (r *ReportedChat) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
