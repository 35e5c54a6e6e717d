// Package conversation is the ledger behind the inbox: it appends
// messages, keeps every member's per-room read-state current, and serves
// ordered listings and paged history.
package conversation

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"mullmine/backend/internal/models"
	"mullmine/backend/internal/storage"
)

// Store is the persistence slice the ledger needs. *storage.Service
// satisfies it.
type Store interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	IsMember(ctx context.Context, roomID, userID string) (bool, error)
	CreateMessage(ctx context.Context, roomID, creatorID, content string) (*models.Message, error)
	MembersWithBlocks(ctx context.Context, roomID string) ([]models.MemberBlocks, error)
	SetConversationLatest(ctx context.Context, roomID, participantID, messageID string, read bool) error
	MarkConversationRead(ctx context.Context, roomID, userID string) (bool, error)
	ConversationsOf(ctx context.Context, userID string) ([]models.ConversationView, error)
	MessagesBefore(ctx context.Context, roomID, beforeID string, excludeCreators []string, limit int) ([]models.MessageView, error)
	MessagesSince(ctx context.Context, roomID string, since time.Time, excludeCreators []string) ([]models.MessageView, error)
	BlockedIDs(ctx context.Context, userID string) ([]string, error)
}

type Service struct {
	store    Store
	log      *slog.Logger
	pageSize int
}

func NewService(store Store, log *slog.Logger, pageSize int) *Service {
	return &Service{store: store, log: log, pageSize: pageSize}
}

// RecordMessage appends an immutable message and repoints the conversation
// row of every member who has not blocked the creator. The creator's own
// copy is immediately read; everyone else's goes unread until they view
// the room. Blank content is a silent no-op, as is an unverified creator.
// Returns the message view and the ids whose inboxes changed.
func (s *Service) RecordMessage(ctx context.Context, content, roomID, creatorID string) (*models.MessageView, []string, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil, nil
	}
	creator, err := s.store.GetUserByID(ctx, creatorID)
	if errors.Is(err, storage.ErrUserNotFound) {
		s.log.Warn("message from unknown user", slog.String("user_id", creatorID))
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	if !creator.IsVerified {
		return nil, nil, nil
	}
	isMember, err := s.store.IsMember(ctx, roomID, creatorID)
	if err != nil || !isMember {
		return nil, nil, err
	}

	msg, err := s.store.CreateMessage(ctx, roomID, creatorID, content)
	if err != nil {
		return nil, nil, err
	}

	members, err := s.store.MembersWithBlocks(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}
	var notified []string
	for _, member := range members {
		if member.UserID != creatorID && contains(member.BlockedIDs, creatorID) {
			continue
		}
		read := member.UserID == creatorID
		if err := s.store.SetConversationLatest(ctx, roomID, member.UserID, msg.ID, read); err != nil {
			return nil, nil, err
		}
		notified = append(notified, member.UserID)
	}

	view := &models.MessageView{
		ID:          msg.ID,
		CreatorID:   creator.ID,
		CreatorName: creator.DisplayName,
		Content:     msg.Content,
		CreatedAt:   float64(msg.CreatedAt.UnixMilli()) / 1000,
	}
	return view, notified, nil
}

// MarkRead flips the (user, room) conversation to read, writing only when
// currently unread. Returns whether anything changed.
func (s *Service) MarkRead(ctx context.Context, roomID, userID string) (bool, error) {
	return s.store.MarkConversationRead(ctx, roomID, userID)
}

// List returns the user's conversations in the inbox contract order:
// unread always above read regardless of recency, then latest-message
// time descending with nulls last, then newest conversation first.
func (s *Service) List(ctx context.Context, userID string) ([]models.ConversationView, error) {
	views, err := s.store.ConversationsOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	SortViews(views)
	return views, nil
}

// SortViews applies the inbox ordering in place. It is exposed so the
// contract stays testable as a pure function.
func SortViews(views []models.ConversationView) {
	sort.SliceStable(views, func(i, j int) bool {
		a, b := views[i], views[j]
		if a.Read != b.Read {
			return !a.Read
		}
		switch {
		case a.LatestCreatedAt != nil && b.LatestCreatedAt == nil:
			return true
		case a.LatestCreatedAt == nil && b.LatestCreatedAt != nil:
			return false
		case a.LatestCreatedAt != nil && b.LatestCreatedAt != nil:
			if *a.LatestCreatedAt != *b.LatestCreatedAt {
				return *a.LatestCreatedAt > *b.LatestCreatedAt
			}
		}
		return a.CreatedAt > b.CreatedAt
	})
}

// History pages messages strictly older than the cursor (latest page when
// the cursor is empty), oldest-first for display append ordering, with
// the viewer's blocked creators filtered out of the view.
func (s *Service) History(ctx context.Context, roomID, userID, beforeMessageID string) ([]models.MessageView, error) {
	blocked, err := s.store.BlockedIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.store.MessagesBefore(ctx, roomID, beforeMessageID, blocked, s.pageSize)
}

// Refresh returns the block-filtered messages at or after the given time,
// used to re-render already-fetched history after a display-name change.
func (s *Service) Refresh(ctx context.Context, roomID, userID string, since time.Time) ([]models.MessageView, error) {
	blocked, err := s.store.BlockedIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.store.MessagesSince(ctx, roomID, since, blocked)
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
