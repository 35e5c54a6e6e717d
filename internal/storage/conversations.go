package storage

import (
	"context"
	"time"

	"mullmine/backend/internal/models"
)

// MembersWithBlocks returns, for each room member, the set of users that
// member has blocked. The ledger uses it to decide whose inbox entry a
// new message may touch.
func (s *Service) MembersWithBlocks(ctx context.Context, roomID string) ([]models.MemberBlocks, error) {
	ids, err := s.MemberIDs(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	type edge struct {
		UserID    string
		BlockedID string
	}
	var edges []edge
	if err := s.DB.WithContext(ctx).
		Table("user_blocked_users").
		Where("user_id IN ?", ids).
		Scan(&edges).Error; err != nil {
		return nil, err
	}
	blockedBy := make(map[string][]string)
	for _, e := range edges {
		blockedBy[e.UserID] = append(blockedBy[e.UserID], e.BlockedID)
	}

	members := make([]models.MemberBlocks, 0, len(ids))
	for _, id := range ids {
		members = append(members, models.MemberBlocks{UserID: id, BlockedIDs: blockedBy[id]})
	}
	return members, nil
}

// SetConversationLatest repoints a member's conversation row at a message
// and sets its read flag.
func (s *Service) SetConversationLatest(ctx context.Context, roomID, participantID, messageID string, read bool) error {
	return s.DB.WithContext(ctx).Model(&models.Conversation{}).
		Where("room_id = ? AND participant_id = ?", roomID, participantID).
		Updates(map[string]interface{}{
			"latest_message_id": messageID,
			"read":              read,
		}).Error
}

// MarkConversationRead flips read to true, writing only when currently
// unread. Returns whether anything changed so the caller can skip the
// refresh broadcast on the idempotent path.
func (s *Service) MarkConversationRead(ctx context.Context, roomID, userID string) (bool, error) {
	res := s.DB.WithContext(ctx).Model(&models.Conversation{}).
		Where("room_id = ? AND participant_id = ? AND read = ?", roomID, userID, false).
		Update("read", true)
	return res.RowsAffected > 0, res.Error
}

// ConversationsOf loads the user's inbox entries joined with room and
// latest-message metadata. Ordering is applied by the ledger service,
// where the unread-first contract lives.
func (s *Service) ConversationsOf(ctx context.Context, userID string) ([]models.ConversationView, error) {
	type row struct {
		RoomID            string
		Question          string
		Read              bool
		LatestContent     *string
		LatestCreatorName *string
		LatestCreatedAt   *time.Time
		CreatedAt         time.Time
	}
	var rows []row
	err := s.DB.WithContext(ctx).
		Table("conversations").
		Select(`conversations.room_id, rooms.question, conversations.read,
			messages.content AS latest_content,
			creators.display_name AS latest_creator_name,
			messages.created_at AS latest_created_at,
			conversations.created_at`).
		Joins("JOIN rooms ON rooms.id = conversations.room_id").
		Joins("LEFT JOIN messages ON messages.id = conversations.latest_message_id").
		Joins("LEFT JOIN users AS creators ON creators.id = messages.creator_id").
		Where("conversations.participant_id = ?", userID).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	views := make([]models.ConversationView, 0, len(rows))
	for _, r := range rows {
		v := models.ConversationView{
			RoomID:    r.RoomID,
			Question:  r.Question,
			Read:      r.Read,
			CreatedAt: float64(r.CreatedAt.UnixMilli()) / 1000,
		}
		if r.LatestContent != nil {
			v.LatestContent = *r.LatestContent
		}
		if r.LatestCreatorName != nil {
			v.LatestCreatorName = *r.LatestCreatorName
		}
		if r.LatestCreatedAt != nil {
			ts := float64(r.LatestCreatedAt.UnixMilli()) / 1000
			v.LatestCreatedAt = &ts
		}
		views = append(views, v)
	}
	return views, nil
}

// ParticipantsOfLatestBy returns the participants whose inbox currently
// shows a latest message written by the given user. Their lists must be
// refreshed when that user renames.
func (s *Service) ParticipantsOfLatestBy(ctx context.Context, creatorID string) ([]string, error) {
	var ids []string
	err := s.DB.WithContext(ctx).
		Table("conversations").
		Joins("JOIN messages ON messages.id = conversations.latest_message_id").
		Where("messages.creator_id = ?", creatorID).
		Distinct().
		Pluck("conversations.participant_id", &ids).Error
	return ids, err
}
