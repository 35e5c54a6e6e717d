// Package match resolves a waiting room for a user: tiered candidate
// pools over the open rooms, blocked-user filtering, and the one-standing-
// waiting-room invariant. The candidate search is read-only; the final
// join re-validates capacity at write time in the lifecycle manager.
package match

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"mullmine/backend/internal/models"
	"mullmine/backend/internal/storage"
)

// Store is the persistence slice the matchmaker needs. *storage.Service
// satisfies it.
type Store interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	CreateRoom(ctx context.Context, creatorID, question string) (*models.Room, error)
	BlockedEitherIDs(ctx context.Context, userID string) ([]string, error)
	RoomIDsOf(ctx context.Context, userID string) ([]string, error)
	WaitingRoomIDs(ctx context.Context, userID string) ([]string, error)
	OpenRoomFacts(ctx context.Context) ([]models.RoomFacts, error)
}

// PartnerSource supplies the social-affinity candidate set.
type PartnerSource interface {
	SecondOrderPartners(ctx context.Context, userID string, ownRoomIDs []string) ([]string, error)
}

// Vacater abandons a user's standing waiting room once a better room is
// matched. The lifecycle manager's Leave satisfies it.
type Vacater interface {
	Leave(ctx context.Context, userID, roomID string) (bool, error)
}

type Service struct {
	store    Store
	partners PartnerSource
	rooms    Vacater
	log      *slog.Logger

	defaultCapacity int
	maxSuggestions  int
}

func NewService(store Store, partners PartnerSource, rooms Vacater, log *slog.Logger, defaultCapacity, maxSuggestions int) *Service {
	return &Service{
		store:           store,
		partners:        partners,
		rooms:           rooms,
		log:             log,
		defaultCapacity: defaultCapacity,
		maxSuggestions:  maxSuggestions,
	}
}

// candidate pool indexes, evaluated in priority order.
const (
	poolAffinity = iota // rooms holding a most-chatted-of-most-chatted partner
	poolQuestion        // rooms whose question matches the query
	poolOpen            // other users' open rooms
	poolOwn             // the requester's own waiting rooms
	numPools
)

// FindOrCreateRoom resolves a room for a verified user and question.
// Unverified users get (nil, nil): no room, no error, so the transport
// can silently ignore the attempt. When a foreign room wins, any standing
// waiting room of the requester is vacated so at most one survives.
func (s *Service) FindOrCreateRoom(ctx context.Context, userID, question string) (*models.Room, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, storage.ErrUserNotFound) {
		s.log.Warn("match request from unknown user", slog.String("user_id", userID))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !user.IsVerified {
		return nil, nil
	}

	pools, err := s.candidatePools(ctx, userID, question)
	if err != nil {
		return nil, err
	}

	for pool := poolAffinity; pool < numPools; pool++ {
		if len(pools[pool]) == 0 {
			continue
		}
		chosen := pools[pool][0]
		if pool != poolOwn {
			if err := s.vacateWaitingRooms(ctx, userID, chosen.RoomID); err != nil {
				return nil, err
			}
		}
		return s.store.GetRoom(ctx, chosen.RoomID)
	}

	// Nothing matched: open a fresh room, which becomes the requester's
	// waiting room once they join it.
	return s.store.CreateRoom(ctx, userID, question)
}

// candidatePools partitions the eligible open rooms into the four tiers
// and sorts each by the in-pool policy: latest-message recency (nulls
// last), creation time descending, online members descending.
func (s *Service) candidatePools(ctx context.Context, userID, question string) ([][]models.RoomFacts, error) {
	facts, err := s.store.OpenRoomFacts(ctx)
	if err != nil {
		return nil, err
	}
	blockedIDs, err := s.store.BlockedEitherIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	ownRoomIDs, err := s.store.RoomIDsOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	partnerIDs, err := s.partners.SecondOrderPartners(ctx, userID, ownRoomIDs)
	if err != nil {
		return nil, err
	}

	blocked := toSet(blockedIDs)
	own := toSet(ownRoomIDs)
	partners := toSet(partnerIDs)
	query := strings.ToLower(strings.TrimSpace(question))

	pools := make([][]models.RoomFacts, numPools)
	for _, f := range facts {
		capacity := f.MemberLimit
		if capacity <= 0 {
			capacity = s.defaultCapacity
		}
		if len(f.MemberIDs) >= capacity {
			continue
		}
		if anyIn(f.MemberIDs, blocked) {
			continue
		}

		if _, isOwn := own[f.RoomID]; isOwn {
			// Only rooms still waiting from a prior unmatched attempt
			// count as re-joinable own rooms.
			if len(f.MemberIDs) == 1 {
				pools[poolOwn] = append(pools[poolOwn], f)
			}
			continue
		}
		switch {
		case anyIn(f.MemberIDs, partners):
			pools[poolAffinity] = append(pools[poolAffinity], f)
		case query != "" && strings.Contains(strings.ToLower(f.Question), query):
			pools[poolQuestion] = append(pools[poolQuestion], f)
		case len(f.MemberIDs) > 0:
			pools[poolOpen] = append(pools[poolOpen], f)
		}
	}
	for i := range pools {
		sortPool(pools[i])
	}
	return pools, nil
}

func sortPool(pool []models.RoomFacts) {
	sort.SliceStable(pool, func(i, j int) bool {
		a, b := pool[i], pool[j]
		switch {
		case a.LatestMessageAt != nil && b.LatestMessageAt == nil:
			return true
		case a.LatestMessageAt == nil && b.LatestMessageAt != nil:
			return false
		case a.LatestMessageAt != nil && b.LatestMessageAt != nil:
			if !a.LatestMessageAt.Equal(*b.LatestMessageAt) {
				return a.LatestMessageAt.After(*b.LatestMessageAt)
			}
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.NumOnline > b.NumOnline
	})
}

// vacateWaitingRooms abandons every waiting room of the user except the
// one just matched: the idempotence invariant that at most one standing
// waiting room per user exists at any time.
func (s *Service) vacateWaitingRooms(ctx context.Context, userID, keepRoomID string) error {
	waiting, err := s.store.WaitingRoomIDs(ctx, userID)
	if err != nil {
		return err
	}
	for _, roomID := range waiting {
		if roomID == keepRoomID {
			continue
		}
		if _, err := s.rooms.Leave(ctx, userID, roomID); err != nil {
			return err
		}
		s.log.Info("vacated waiting room",
			slog.String("user_id", userID), slog.String("room_id", roomID))
	}
	return nil
}

// SuggestQuestions returns up to the configured number of distinct
// questions from the eligible rooms matching the query, in candidate
// rank order.
func (s *Service) SuggestQuestions(ctx context.Context, userID, question string) ([]string, error) {
	pools, err := s.candidatePools(ctx, userID, question)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var suggestions []string
	for pool := poolAffinity; pool < numPools; pool++ {
		for _, f := range pools[pool] {
			if f.Question == "" {
				continue
			}
			if _, ok := seen[f.Question]; ok {
				continue
			}
			seen[f.Question] = struct{}{}
			suggestions = append(suggestions, f.Question)
			if len(suggestions) == s.maxSuggestions {
				return suggestions, nil
			}
		}
	}
	return suggestions, nil
}

// ActiveQuestions is the browse listing: the distinct questions of all
// eligible open rooms in candidate rank order, unfiltered by any query.
func (s *Service) ActiveQuestions(ctx context.Context, userID string) ([]string, error) {
	return s.SuggestQuestions(ctx, userID, "")
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func anyIn(ids []string, set map[string]struct{}) bool {
	for _, id := range ids {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}
