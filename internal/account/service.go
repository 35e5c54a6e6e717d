// Package account covers the user-profile operations around the core:
// identity bootstrap, display-name changes, presence transitions, topics,
// terms agreement, blocking and account deletion.
package account

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"mullmine/backend/internal/models"
	"mullmine/backend/internal/storage"
)

// ErrNameTaken mirrors the storage sentinel so transports depend on this
// package only.
var ErrNameTaken = storage.ErrNameTaken

// Store is the persistence slice the account service needs.
// *storage.Service satisfies it.
type Store interface {
	GetOrCreateUser(ctx context.Context, username string, verified bool) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	UpdateDisplayName(ctx context.Context, userID, name string) error
	SetOnline(ctx context.Context, userID string, online bool) error
	AgreeTerms(ctx context.Context, userID string) error
	AddTopic(ctx context.Context, userID, name string) (bool, error)
	RemoveTopic(ctx context.Context, userID, name string) (bool, error)
	TopicsOf(ctx context.Context, userID string) ([]string, error)
	BlockUser(ctx context.Context, userID, targetID string) error
	RoomIDsOf(ctx context.Context, userID string) ([]string, error)
	MemberIDs(ctx context.Context, roomID string) ([]string, error)
	ParticipantsOfLatestBy(ctx context.Context, creatorID string) ([]string, error)
	DeleteUser(ctx context.Context, userID string) error
}

// RoomLeaver detaches a user from a room with full lifecycle semantics;
// account deletion leaves every room first.
type RoomLeaver interface {
	Leave(ctx context.Context, userID, roomID string) (bool, error)
}

type Service struct {
	store Store
	rooms RoomLeaver
	log   *slog.Logger
}

func NewService(store Store, rooms RoomLeaver, log *slog.Logger) *Service {
	return &Service{store: store, rooms: rooms, log: log}
}

// Bootstrap resolves the user for an authenticated identity, creating the
// record on first contact.
func (s *Service) Bootstrap(ctx context.Context, username string, verified bool) (*models.User, error) {
	return s.store.GetOrCreateUser(ctx, username, verified)
}

// NameChange describes a successful rename and who needs refreshing:
// every room the user is in, and every participant whose inbox shows a
// latest message written by the user.
type NameChange struct {
	Name           string
	RoomIDs        []string
	ParticipantIDs []string
}

// UpdateDisplayName renames the user. Blank names are a silent no-op
// (nil, nil). A collision with another user's name returns ErrNameTaken
// and leaves the original name intact; it is the one conflict surfaced
// to the caller so the UI can prompt a retry.
func (s *Service) UpdateDisplayName(ctx context.Context, userID, name string) (*NameChange, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	roomIDs, err := s.store.RoomIDsOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	participantIDs, err := s.store.ParticipantsOfLatestBy(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateDisplayName(ctx, userID, name); err != nil {
		if errors.Is(err, storage.ErrNameTaken) {
			return nil, ErrNameTaken
		}
		return nil, err
	}
	return &NameChange{Name: name, RoomIDs: roomIDs, ParticipantIDs: participantIDs}, nil
}

// GoOnline flips the persisted presence flag on. Returns the rooms whose
// members should re-pull conversations and presence.
func (s *Service) GoOnline(ctx context.Context, userID string) ([]string, error) {
	if err := s.store.SetOnline(ctx, userID, true); err != nil {
		return nil, err
	}
	return s.store.RoomIDsOf(ctx, userID)
}

// GoOffline flips the presence flag off with the same fan-out contract.
func (s *Service) GoOffline(ctx context.Context, userID string) ([]string, error) {
	if err := s.store.SetOnline(ctx, userID, false); err != nil {
		return nil, err
	}
	return s.store.RoomIDsOf(ctx, userID)
}

func (s *Service) AgreeTerms(ctx context.Context, userID string) error {
	return s.store.AgreeTerms(ctx, userID)
}

func (s *Service) AddTopic(ctx context.Context, userID, topic string) (bool, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return false, nil
	}
	return s.store.AddTopic(ctx, userID, topic)
}

func (s *Service) RemoveTopic(ctx context.Context, userID, topic string) (bool, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return false, nil
	}
	return s.store.RemoveTopic(ctx, userID, topic)
}

func (s *Service) Topics(ctx context.Context, userID string) ([]string, error) {
	return s.store.TopicsOf(ctx, userID)
}

// Block adds the named co-member of the room to the user's blocked set.
// Both sides must currently be members; anything else is a silent no-op.
func (s *Service) Block(ctx context.Context, userID, roomID, targetID string) error {
	memberIDs, err := s.store.MemberIDs(ctx, roomID)
	if err != nil {
		return err
	}
	if !containsID(memberIDs, userID) || !containsID(memberIDs, targetID) {
		return nil
	}
	return s.store.BlockUser(ctx, userID, targetID)
}

// DeleteAccount leaves every room with full lifecycle semantics (rooms
// emptied on the way out are garbage-collected) and then removes the
// user record.
func (s *Service) DeleteAccount(ctx context.Context, userID string) error {
	roomIDs, err := s.store.RoomIDsOf(ctx, userID)
	if err != nil {
		return err
	}
	for _, roomID := range roomIDs {
		if _, err := s.rooms.Leave(ctx, userID, roomID); err != nil {
			return err
		}
	}
	return s.store.DeleteUser(ctx, userID)
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
