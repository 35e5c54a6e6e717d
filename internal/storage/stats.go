package storage

import (
	"context"

	"mullmine/backend/internal/models"
)

// ChatStats produces the scoring engine's input for one user in a single
// batched read: for every room the user belongs to (size capped at
// maxRoomSize, minus any excluded rooms), the message totals split into
// the user's own and everyone else's, plus the other member ids.
func (s *Service) ChatStats(ctx context.Context, userID string, excludeRoomIDs []string, maxRoomSize int) ([]models.RoomStats, error) {
	memberQuery := s.DB.WithContext(ctx).
		Table("room_members").
		Select("room_id").
		Group("room_id").
		Having("COUNT(user_id) <= ?", maxRoomSize)

	q := s.DB.WithContext(ctx).
		Table("room_members").
		Select("room_id").
		Where("user_id = ?", userID).
		Where("room_id IN (?)", memberQuery)
	if len(excludeRoomIDs) > 0 {
		q = q.Where("room_id NOT IN ?", excludeRoomIDs)
	}
	var roomIDs []string
	if err := q.Pluck("room_id", &roomIDs).Error; err != nil {
		return nil, err
	}
	if len(roomIDs) == 0 {
		return nil, nil
	}

	type countRow struct {
		RoomID string
		Total  int
		Yours  int
	}
	var counts []countRow
	err := s.DB.WithContext(ctx).
		Table("messages").
		Select("room_id, COUNT(*) AS total, COUNT(*) FILTER (WHERE creator_id = ?) AS yours", userID).
		Where("room_id IN ?", roomIDs).
		Group("room_id").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	countsByRoom := make(map[string]countRow, len(counts))
	for _, c := range counts {
		countsByRoom[c.RoomID] = c
	}

	type memberRow struct {
		RoomID string
		UserID string
	}
	var memberRows []memberRow
	err = s.DB.WithContext(ctx).
		Table("room_members").
		Where("room_id IN ?", roomIDs).
		Scan(&memberRows).Error
	if err != nil {
		return nil, err
	}
	othersByRoom := make(map[string][]string)
	for _, m := range memberRows {
		if m.UserID != userID {
			othersByRoom[m.RoomID] = append(othersByRoom[m.RoomID], m.UserID)
		}
	}

	stats := make([]models.RoomStats, 0, len(roomIDs))
	for _, id := range roomIDs {
		c := countsByRoom[id]
		stats = append(stats, models.RoomStats{
			RoomID:         id,
			OtherMemberIDs: othersByRoom[id],
			NumMessages:    c.Total,
			NumYours:       c.Yours,
			NumOthers:      c.Total - c.Yours,
		})
	}
	return stats, nil
}
