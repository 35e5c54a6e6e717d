package storage

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"mullmine/backend/internal/models"
)

// GetOrCreateUser fetches the user for an authenticated identity subject,
// creating the record on first contact. Creation is atomic under
// concurrent first connections from the same identity.
func (s *Service) GetOrCreateUser(ctx context.Context, username string, verified bool) (*models.User, error) {
	var user models.User
	defaults := models.User{
		Username:    username,
		DisplayName: "anon-" + uuid.NewString()[:8],
		IsVerified:  verified,
	}
	err := s.DB.WithContext(ctx).
		Where(&models.User{Username: username}).
		Attrs(defaults).
		FirstOrCreate(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Service) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Service) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).First(&user, "username = ?", username).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Service) GetUserByDisplayName(ctx context.Context, name string) (*models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).First(&user, "display_name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateDisplayName renames a user, translating the unique-index
// violation into ErrNameTaken so the caller can prompt a retry.
func (s *Service) UpdateDisplayName(ctx context.Context, userID, name string) error {
	err := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("display_name", name).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrNameTaken
	}
	return err
}

// SetOnline flips the persisted presence flag. Consumers re-read it on
// every use rather than caching.
func (s *Service) SetOnline(ctx context.Context, userID string, online bool) error {
	return s.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("is_online", online).Error
}

func (s *Service) AgreeTerms(ctx context.Context, userID string) error {
	return s.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("agreed_terms", true).Error
}

// BlockUser adds target to userID's blocked set. Idempotent.
func (s *Service) BlockUser(ctx context.Context, userID, targetID string) error {
	return s.DB.WithContext(ctx).
		Model(&models.User{ID: userID}).
		Association("BlockedUsers").
		Append(&models.User{ID: targetID})
}

// AddReported adds target to userID's reported set. Idempotent.
func (s *Service) AddReported(ctx context.Context, userID, targetID string) error {
	return s.DB.WithContext(ctx).
		Model(&models.User{ID: userID}).
		Association("ReportedUsers").
		Append(&models.User{ID: targetID})
}

// BlockedIDs returns the ids the given user has blocked.
func (s *Service) BlockedIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := s.DB.WithContext(ctx).
		Table("user_blocked_users").
		Where("user_id = ?", userID).
		Pluck("blocked_id", &ids).Error
	return ids, err
}

// BlockedEitherIDs returns every id with a block edge in either direction
// relative to the given user. The matchmaker filters candidate rooms on
// this set.
func (s *Service) BlockedEitherIDs(ctx context.Context, userID string) ([]string, error) {
	var outgoing, incoming []string
	if err := s.DB.WithContext(ctx).
		Table("user_blocked_users").
		Where("user_id = ?", userID).
		Pluck("blocked_id", &outgoing).Error; err != nil {
		return nil, err
	}
	if err := s.DB.WithContext(ctx).
		Table("user_blocked_users").
		Where("blocked_id = ?", userID).
		Pluck("user_id", &incoming).Error; err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(outgoing)+len(incoming))
	merged := make([]string, 0, len(outgoing)+len(incoming))
	for _, id := range append(outgoing, incoming...) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		merged = append(merged, id)
	}
	return merged, nil
}

// AddTopic attaches a topic to the user's profile, creating the topic row
// when it does not exist yet. Returns whether the association was new.
func (s *Service) AddTopic(ctx context.Context, userID, name string) (bool, error) {
	var topic models.Topic
	if err := s.DB.WithContext(ctx).
		Where(&models.Topic{Name: name}).
		FirstOrCreate(&topic).Error; err != nil {
		return false, err
	}
	var count int64
	if err := s.DB.WithContext(ctx).
		Table("user_topics").
		Where("user_id = ? AND topic_id = ?", userID, topic.ID).
		Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	err := s.DB.WithContext(ctx).
		Model(&models.User{ID: userID}).
		Association("Topics").
		Append(&topic)
	return err == nil, err
}

func (s *Service) RemoveTopic(ctx context.Context, userID, name string) (bool, error) {
	var topic models.Topic
	err := s.DB.WithContext(ctx).First(&topic, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	err = s.DB.WithContext(ctx).
		Model(&models.User{ID: userID}).
		Association("Topics").
		Delete(&topic)
	return err == nil, err
}

func (s *Service) TopicsOf(ctx context.Context, userID string) ([]string, error) {
	var names []string
	err := s.DB.WithContext(ctx).
		Table("topics").
		Joins("JOIN user_topics ON user_topics.topic_id = topics.id").
		Where("user_topics.user_id = ?", userID).
		Order("topics.name").
		Pluck("topics.name", &names).Error
	return names, err
}

// DeleteUser removes the user row, its messages, block/report/topic edges
// and the identity itself. Memberships and conversations are expected to
// be gone already: callers leave every room first so that the room
// invariants (delete-on-empty, one conversation per member) hold.
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Other members' conversation rows may still point at one of the
		// doomed messages; null the pointer before the delete.
		if err := tx.Exec("UPDATE conversations SET latest_message_id = NULL WHERE latest_message_id IN (SELECT id FROM messages WHERE creator_id = ?)", userID).Error; err != nil {
			return err
		}
		if err := tx.Where("creator_id = ?", userID).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM user_blocked_users WHERE user_id = ? OR blocked_id = ?", userID, userID).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM user_reported_users WHERE user_id = ? OR reported_id = ?", userID, userID).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM user_topics WHERE user_id = ?", userID).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.User{}, "id = ?", userID).Error; err != nil {
			return err
		}
		s.log.Info("user deleted", slog.String("user_id", userID))
		return nil
	})
}
