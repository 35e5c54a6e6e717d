// Package scoring ranks a user's rooms by how actively the user chats in
// them and derives candidate partner sets from the top of that ranking.
// Everything here is a pure function over pre-aggregated stats; the one
// batched read per matchmaking attempt happens in storage.
package scoring

import (
	"context"
	"sort"

	"mullmine/backend/internal/models"
)

// Chattiness is the affinity metric between a user and a room:
// (total messages * user's messages) / other members' messages. It is 0
// when either side has not written anything, which keeps one-sided and
// empty rooms from ranking at all and avoids the divide by zero.
func Chattiness(total, yours, others int) float64 {
	if yours == 0 || others == 0 {
		return 0
	}
	return float64(total) * float64(yours) / float64(others)
}

// RankRooms orders stats by chattiness descending. The sort is stable so
// equal scores keep their input order and the ranking stays deterministic.
func RankRooms(stats []models.RoomStats) []models.RoomStats {
	ranked := make([]models.RoomStats, len(stats))
	copy(ranked, stats)
	sort.SliceStable(ranked, func(i, j int) bool {
		si := Chattiness(ranked[i].NumMessages, ranked[i].NumYours, ranked[i].NumOthers)
		sj := Chattiness(ranked[j].NumMessages, ranked[j].NumYours, ranked[j].NumOthers)
		return si > sj
	})
	return ranked
}

// TopPartners unions the other members of the topRooms chattiest rooms.
func TopPartners(stats []models.RoomStats, topRooms int) []string {
	ranked := RankRooms(stats)
	if len(ranked) > topRooms {
		ranked = ranked[:topRooms]
	}
	seen := make(map[string]struct{})
	var partners []string
	for _, room := range ranked {
		for _, id := range room.OtherMemberIDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			partners = append(partners, id)
		}
	}
	return partners
}

// StatsSource is the single batched read the engine depends on.
type StatsSource interface {
	ChatStats(ctx context.Context, userID string, excludeRoomIDs []string, maxRoomSize int) ([]models.RoomStats, error)
}

// Engine resolves partner sets against live data.
type Engine struct {
	store StatsSource
	// maxRoomSize caps which rooms count towards chattiness.
	maxRoomSize int
	// topRooms is how many top-ranked rooms contribute partners.
	topRooms int
}

func NewEngine(store StatsSource, maxRoomSize, topRooms int) *Engine {
	return &Engine{store: store, maxRoomSize: maxRoomSize, topRooms: topRooms}
}

// MostChattedPartners returns the user's first-order partner set.
func (e *Engine) MostChattedPartners(ctx context.Context, userID string) ([]string, error) {
	stats, err := e.store.ChatStats(ctx, userID, nil, e.maxRoomSize)
	if err != nil {
		return nil, err
	}
	return TopPartners(stats, e.topRooms), nil
}

// SecondOrderPartners repeats the partner query rooted at each first-order
// partner, excluding the original user's own rooms, to surface indirect
// social proximity. The requesting user never appears in the result.
func (e *Engine) SecondOrderPartners(ctx context.Context, userID string, ownRoomIDs []string) ([]string, error) {
	firstOrder, err := e.MostChattedPartners(ctx, userID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var partners []string
	for _, partnerID := range firstOrder {
		stats, err := e.store.ChatStats(ctx, partnerID, ownRoomIDs, e.maxRoomSize)
		if err != nil {
			return nil, err
		}
		for _, id := range TopPartners(stats, e.topRooms) {
			if id == userID {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			partners = append(partners, id)
		}
	}
	return partners, nil
}
