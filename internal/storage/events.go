package storage

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"mullmine/backend/internal/models"
)

// Event fan-out rides Redis Pub/Sub: one channel per user and per room.
// Every hub instance subscribes to both patterns and routes to its local
// connections, so delivery works the same with one server or many.
const (
	userChannelPrefix = "user:"
	roomChannelPrefix = "room:"
)

func UserChannel(userID string) string { return userChannelPrefix + userID }
func RoomChannel(roomID string) string { return roomChannelPrefix + roomID }

// PublishToUser fans an event out to every connection of one user.
func (s *Service) PublishToUser(ctx context.Context, userID string, evt models.Event) error {
	return s.publish(ctx, UserChannel(userID), evt)
}

// PublishToRoom fans an event out to every connection viewing a room.
func (s *Service) PublishToRoom(ctx context.Context, roomID string, evt models.Event) error {
	return s.publish(ctx, RoomChannel(roomID), evt)
}

func (s *Service) publish(ctx context.Context, channel string, evt models.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return s.Redis.Publish(ctx, channel, payload).Err()
}

// SubscribeEvents opens the pattern subscription the hub consumes.
func (s *Service) SubscribeEvents(ctx context.Context) *redis.PubSub {
	return s.Redis.PSubscribe(ctx, userChannelPrefix+"*", roomChannelPrefix+"*")
}
