// Package storage is the persistence layer: PostgreSQL through GORM for
// durable entities and Redis Pub/Sub for event fan-out. All gorm errors
// are mapped to package sentinels here and never leak upward.
package storage

import (
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomFull is returned by AddMember when the capacity re-check
	// inside the membership transaction fails.
	ErrRoomFull = errors.New("room is full")
	// ErrNameTaken is the one uniqueness conflict surfaced to callers:
	// a display-name rename colliding with another user.
	ErrNameTaken = errors.New("display name already taken")
)

// Service implements persistence against PostgreSQL and Redis.
type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
	log   *slog.Logger
}

func NewService(db *gorm.DB, rdb *redis.Client, log *slog.Logger) *Service {
	return &Service{DB: db, Redis: rdb, log: log}
}
