package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"mullmine/backend/internal/models"
)

func (s *Service) CreateMessage(ctx context.Context, roomID, creatorID, content string) (*models.Message, error) {
	msg := &models.Message{RoomID: roomID, CreatorID: creatorID, Content: content}
	if err := s.DB.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, err
	}
	return msg, nil
}

type messageRow struct {
	ID          string
	CreatorID   string
	CreatorName string
	Content     string
	CreatedAt   time.Time
}

func (r messageRow) view() models.MessageView {
	return models.MessageView{
		ID:          r.ID,
		CreatorID:   r.CreatorID,
		CreatorName: r.CreatorName,
		Content:     r.Content,
		CreatedAt:   float64(r.CreatedAt.UnixMilli()) / 1000,
	}
}

func (s *Service) messageQuery(ctx context.Context, roomID string, excludeCreators []string) *gorm.DB {
	q := s.DB.WithContext(ctx).
		Table("messages").
		Select("messages.id, messages.creator_id, users.display_name AS creator_name, messages.content, messages.created_at").
		Joins("JOIN users ON users.id = messages.creator_id").
		Where("messages.room_id = ?", roomID)
	if len(excludeCreators) > 0 {
		q = q.Where("messages.creator_id NOT IN ?", excludeCreators)
	}
	return q
}

// MessagesBefore pages history strictly older than the cursor message,
// newest-first internally but returned oldest-first for display append
// ordering. An empty cursor yields the latest page. Messages from the
// excluded creators (the viewer's blocked set) are filtered out of the
// view; they are never deleted.
func (s *Service) MessagesBefore(ctx context.Context, roomID, beforeID string, excludeCreators []string, limit int) ([]models.MessageView, error) {
	q := s.messageQuery(ctx, roomID, excludeCreators)

	if beforeID != "" {
		var cursor models.Message
		err := s.DB.WithContext(ctx).
			First(&cursor, "id = ? AND room_id = ?", beforeID, roomID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		q = q.Where("messages.created_at < ?", cursor.CreatedAt)
	}

	var rows []messageRow
	if err := q.Order("messages.created_at DESC").Limit(limit).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return chronological(rows), nil
}

// chronological converts newest-first query rows into oldest-first views.
func chronological(rows []messageRow) []models.MessageView {
	views := make([]models.MessageView, len(rows))
	for i, row := range rows {
		views[len(rows)-1-i] = row.view()
	}
	return views
}

// MessagesSince returns messages at or after the given time in
// chronological order, block-filtered like MessagesBefore.
func (s *Service) MessagesSince(ctx context.Context, roomID string, since time.Time, excludeCreators []string) ([]models.MessageView, error) {
	var rows []messageRow
	err := s.messageQuery(ctx, roomID, excludeCreators).
		Where("messages.created_at >= ?", since).
		Order("messages.created_at ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	views := make([]models.MessageView, len(rows))
	for i, row := range rows {
		views[i] = row.view()
	}
	return views, nil
}

// RoomTranscript renders the last limit messages as "name: content" lines
// in chronological order, for report snapshots.
func (s *Service) RoomTranscript(ctx context.Context, roomID string, limit int) ([]string, error) {
	var rows []messageRow
	err := s.messageQuery(ctx, roomID, nil).
		Order("messages.created_at DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	lines := make([]string, len(rows))
	for i, row := range rows {
		lines[len(rows)-1-i] = fmt.Sprintf("%s: %s", row.CreatorName, row.Content)
	}
	return lines, nil
}
