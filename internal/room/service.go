// Package room is the lifecycle manager: joins with atomic capacity
// enforcement, departures with conversation cleanup, and deletion of
// emptied rooms.
package room

import (
	"context"
	"errors"
	"log/slog"

	"mullmine/backend/internal/models"
	"mullmine/backend/internal/storage"
)

// Store is the slice of the persistence layer the lifecycle manager
// needs. *storage.Service satisfies it.
type Store interface {
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	GetOrCreateRoom(ctx context.Context, roomID, creatorID string) (*models.Room, error)
	AddMember(ctx context.Context, roomID, userID string, defaultCapacity int) (bool, error)
	RemoveMember(ctx context.Context, roomID, userID string) (bool, int64, error)
	RoomMembers(ctx context.Context, roomID string) ([]models.MemberInfo, error)
	MemberIDs(ctx context.Context, roomID string) ([]string, error)
	UpdateRoomCapacity(ctx context.Context, roomID string, limit int) error
	UpdateRoomName(ctx context.Context, roomID, name string) error
}

type Service struct {
	store Store
	log   *slog.Logger
	// defaultCapacity applies to rooms with no explicit member limit.
	defaultCapacity int
}

func NewService(store Store, log *slog.Logger, defaultCapacity int) *Service {
	return &Service{store: store, log: log, defaultCapacity: defaultCapacity}
}

// Capacity resolves a room's effective member limit.
func (s *Service) Capacity(room *models.Room) int {
	if room.MemberLimit > 0 {
		return room.MemberLimit
	}
	return s.defaultCapacity
}

// Resolve returns the room for a join-by-id request, creating it when the
// id is unknown. Get-or-create is atomic so concurrent first joins with
// the same id converge on one room.
func (s *Service) Resolve(ctx context.Context, roomID, userID string) (*models.Room, error) {
	return s.store.GetOrCreateRoom(ctx, roomID, userID)
}

// Join adds the user to the room. Idempotent: re-joining an existing
// member is a no-op that still returns the member list, distinguishable
// through wasAdded so callers can decide whether to broadcast. The
// capacity check runs atomically with the membership write inside the
// store; storage.ErrRoomFull reports the losing side of a race.
func (s *Service) Join(ctx context.Context, userID, roomID string) ([]models.MemberInfo, bool, error) {
	added, err := s.store.AddMember(ctx, roomID, userID, s.defaultCapacity)
	if errors.Is(err, storage.ErrRoomNotFound) {
		s.log.Warn("join on nonexistent room", slog.String("room_id", roomID))
		return nil, false, err
	}
	if err != nil {
		return nil, false, err
	}
	members, err := s.store.RoomMembers(ctx, roomID)
	if err != nil {
		return nil, added, err
	}
	return members, added, nil
}

// Leave removes the user. A non-member leave is a no-op. The user's
// conversation row goes with the membership, and a room left empty is
// deleted together with its messages. Returns whether the room was
// removed so the caller can skip pointless fan-out.
func (s *Service) Leave(ctx context.Context, userID, roomID string) (bool, error) {
	removed, remaining, err := s.store.RemoveMember(ctx, roomID, userID)
	if errors.Is(err, storage.ErrRoomNotFound) {
		s.log.Warn("leave on nonexistent room", slog.String("room_id", roomID))
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !removed {
		return false, nil
	}
	return remaining == 0, nil
}

// SetCapacity changes the member limit. Only the creator may do it, and
// only to a value that does not shrink below current occupancy; anything
// else silently returns the unchanged room.
func (s *Service) SetCapacity(ctx context.Context, userID, roomID string, limit int) (*models.Room, error) {
	current, err := s.store.GetRoom(ctx, roomID)
	if errors.Is(err, storage.ErrRoomNotFound) {
		s.log.Warn("capacity change on nonexistent room", slog.String("room_id", roomID))
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if current.CreatorID != userID {
		return current, nil
	}
	memberIDs, err := s.store.MemberIDs(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if limit < len(memberIDs) {
		// Shrinking below occupancy would retroactively overfill the room.
		return current, nil
	}
	if err := s.store.UpdateRoomCapacity(ctx, roomID, limit); err != nil {
		return nil, err
	}
	current.MemberLimit = limit
	return current, nil
}

// Rename updates the room's display name.
func (s *Service) Rename(ctx context.Context, roomID, name string) error {
	return s.store.UpdateRoomName(ctx, roomID, name)
}

// StateFor derives the current lifecycle state of a room.
func (s *Service) StateFor(ctx context.Context, roomID string) (State, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return StateEmpty, err
	}
	memberIDs, err := s.store.MemberIDs(ctx, roomID)
	if err != nil {
		return StateEmpty, err
	}
	return StateOf(len(memberIDs), s.Capacity(room)), nil
}
