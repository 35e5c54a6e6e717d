package storage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mullmine/backend/internal/models"
)

func (s *Service) CreateRoom(ctx context.Context, creatorID, question string) (*models.Room, error) {
	room := &models.Room{CreatorID: creatorID, Question: question}
	if err := s.DB.WithContext(ctx).Create(room).Error; err != nil {
		return nil, err
	}
	return room, nil
}

func (s *Service) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	var room models.Room
	err := s.DB.WithContext(ctx).First(&room, "id = ?", roomID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// GetOrCreateRoom resolves a join-by-id atomically: concurrent first joins
// with the same id converge on a single row instead of duplicating it.
func (s *Service) GetOrCreateRoom(ctx context.Context, roomID, creatorID string) (*models.Room, error) {
	var room models.Room
	defaults := models.Room{ID: roomID, CreatorID: creatorID}
	err := s.DB.WithContext(ctx).
		Where("id = ?", roomID).
		Attrs(defaults).
		FirstOrCreate(&room).Error
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (s *Service) UpdateRoomCapacity(ctx context.Context, roomID string, limit int) error {
	return s.DB.WithContext(ctx).Model(&models.Room{}).
		Where("id = ?", roomID).
		Update("member_limit", limit).Error
}

func (s *Service) UpdateRoomName(ctx context.Context, roomID, name string) error {
	return s.DB.WithContext(ctx).Model(&models.Room{}).
		Where("id = ?", roomID).
		Update("display_name", name).Error
}

// AddMember inserts the user into the room with the capacity re-checked
// under a row lock, so two concurrent joins on a near-capacity room
// cannot both slip in. The first join also seeds the member's
// conversation row with the room's current latest message, already read.
// Returns false without error when the user is already a member.
func (s *Service) AddMember(ctx context.Context, roomID, userID string, defaultCapacity int) (bool, error) {
	added := false
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var room models.Room
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&room, "id = ?", roomID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRoomNotFound
		}
		if err != nil {
			return err
		}

		var isMember int64
		if err := tx.Table("room_members").
			Where("room_id = ? AND user_id = ?", roomID, userID).
			Count(&isMember).Error; err != nil {
			return err
		}
		if isMember > 0 {
			return nil
		}

		var count int64
		if err := tx.Table("room_members").
			Where("room_id = ?", roomID).
			Count(&count).Error; err != nil {
			return err
		}
		capacity := room.MemberLimit
		if capacity <= 0 {
			capacity = defaultCapacity
		}
		if int(count) >= capacity {
			return ErrRoomFull
		}

		if err := tx.Exec("INSERT INTO room_members (room_id, user_id) VALUES (?, ?)", roomID, userID).Error; err != nil {
			return err
		}

		// Seed the inbox entry: the joiner is about to view the history,
		// so the latest message must not show up as unread.
		var latestID *string
		var latest models.Message
		err = tx.Where("room_id = ?", roomID).
			Order("created_at DESC").
			First(&latest).Error
		if err == nil {
			latestID = &latest.ID
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		conv := models.Conversation{
			ParticipantID:   userID,
			RoomID:          roomID,
			LatestMessageID: latestID,
			Read:            true,
		}
		if err := tx.Create(&conv).Error; err != nil {
			return err
		}
		added = true
		return nil
	})
	return added, err
}

// RemoveMember deletes the user's conversation row and membership. When
// the last member leaves, the room and everything it owns go with it.
// Returns whether anything was removed and how many members remain.
func (s *Service) RemoveMember(ctx context.Context, roomID, userID string) (bool, int64, error) {
	removed := false
	var remaining int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var room models.Room
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&room, "id = ?", roomID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRoomNotFound
		}
		if err != nil {
			return err
		}

		res := tx.Exec("DELETE FROM room_members WHERE room_id = ? AND user_id = ?", roomID, userID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		removed = true

		if err := tx.Where("participant_id = ? AND room_id = ?", userID, roomID).
			Delete(&models.Conversation{}).Error; err != nil {
			return err
		}

		if err := tx.Table("room_members").
			Where("room_id = ?", roomID).
			Count(&remaining).Error; err != nil {
			return err
		}
		if remaining == 0 {
			return deleteRoomTx(tx, roomID)
		}
		return nil
	})
	return removed, remaining, err
}

// DeleteRoom removes the room, its messages, conversations and membership
// rows. Cleanup is explicit, never left to implicit cascades.
func (s *Service) DeleteRoom(ctx context.Context, roomID string) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteRoomTx(tx, roomID)
	})
	if err == nil {
		s.log.Info("room deleted", slog.String("room_id", roomID))
	}
	return err
}

func deleteRoomTx(tx *gorm.DB, roomID string) error {
	if err := tx.Where("room_id = ?", roomID).Delete(&models.Message{}).Error; err != nil {
		return err
	}
	if err := tx.Where("room_id = ?", roomID).Delete(&models.Conversation{}).Error; err != nil {
		return err
	}
	if err := tx.Exec("DELETE FROM room_members WHERE room_id = ?", roomID).Error; err != nil {
		return err
	}
	return tx.Delete(&models.Room{}, "id = ?", roomID).Error
}

// RoomMembers returns the member projection used for members_changed.
func (s *Service) RoomMembers(ctx context.Context, roomID string) ([]models.MemberInfo, error) {
	var members []models.MemberInfo
	err := s.DB.WithContext(ctx).
		Table("users").
		Select("users.id AS user_id, users.display_name, users.is_online").
		Joins("JOIN room_members ON room_members.user_id = users.id").
		Where("room_members.room_id = ?", roomID).
		Order("users.display_name").
		Scan(&members).Error
	return members, err
}

func (s *Service) MemberIDs(ctx context.Context, roomID string) ([]string, error) {
	var ids []string
	err := s.DB.WithContext(ctx).
		Table("room_members").
		Where("room_id = ?", roomID).
		Pluck("user_id", &ids).Error
	return ids, err
}

func (s *Service) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	var count int64
	err := s.DB.WithContext(ctx).
		Table("room_members").
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Count(&count).Error
	return count > 0, err
}

func (s *Service) RoomIDsOf(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := s.DB.WithContext(ctx).
		Table("room_members").
		Where("user_id = ?", userID).
		Pluck("room_id", &ids).Error
	return ids, err
}

// WaitingRoomIDs returns rooms where the user is the sole member: their
// standing waiting rooms from prior unmatched attempts.
func (s *Service) WaitingRoomIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := s.DB.WithContext(ctx).
		Table("room_members").
		Select("room_id").
		Where("room_id IN (?)",
			s.DB.Table("room_members").Select("room_id").Where("user_id = ?", userID)).
		Group("room_id").
		Having("COUNT(user_id) = 1").
		Pluck("room_id", &ids).Error
	return ids, err
}

// OpenRoomFacts loads the candidate projection for every room in one
// batched read: members, online counts and latest-message times. The
// matchmaker does all filtering and ranking in code on top of this.
func (s *Service) OpenRoomFacts(ctx context.Context) ([]models.RoomFacts, error) {
	var rooms []models.Room
	if err := s.DB.WithContext(ctx).Preload("Members").Find(&rooms).Error; err != nil {
		return nil, err
	}

	type latestRow struct {
		RoomID   string
		LatestAt time.Time
	}
	var latest []latestRow
	if err := s.DB.WithContext(ctx).
		Table("messages").
		Select("room_id, MAX(created_at) AS latest_at").
		Group("room_id").
		Scan(&latest).Error; err != nil {
		return nil, err
	}
	latestByRoom := make(map[string]time.Time, len(latest))
	for _, row := range latest {
		latestByRoom[row.RoomID] = row.LatestAt
	}

	facts := make([]models.RoomFacts, 0, len(rooms))
	for _, room := range rooms {
		f := models.RoomFacts{
			RoomID:      room.ID,
			Question:    room.Question,
			CreatedAt:   room.CreatedAt,
			MemberLimit: room.MemberLimit,
		}
		for _, m := range room.Members {
			f.MemberIDs = append(f.MemberIDs, m.ID)
			if m.IsOnline {
				f.NumOnline++
			}
		}
		if at, ok := latestByRoom[room.ID]; ok {
			t := at
			f.LatestMessageAt = &t
		}
		facts = append(facts, f)
	}
	return facts, nil
}
