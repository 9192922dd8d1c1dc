// Package cursor persists the identifier of the last fully consumed bot update.
package cursor

import (
	"context"
	"errors"
	"voxrun/internal/storage"
	"voxrun/pkg/cache"
	"voxrun/pkg/logger"

	"go.uber.org/zap"
)

// Store reads and writes the update cursor.
//
// Read never fails: a missing, corrupt or unreachable value reads as 0 so
// the run starts from the oldest pending update.
type Store interface {
	Read(ctx context.Context) int64
	Write(ctx context.Context, value int64) error
	Reset(ctx context.Context) error
}

// RedisStore keeps the cursor under a single Redis key
type RedisStore struct {
	cache cache.Cache
	key   string
}

func NewRedisStore(c cache.Cache, botName string) *RedisStore {
	return &RedisStore{
		cache: c,
		key:   cache.CursorCacheKey(botName),
	}
}

func (s *RedisStore) Read(ctx context.Context) int64 {
	var value int64
	if err := s.cache.Get(ctx, s.key, &value); err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			logger.Warn("Failed to read cursor from Redis, starting from zero",
				zap.String("key", s.key),
				zap.Error(err))
		}
		return 0
	}
	return clamp(value)
}

func (s *RedisStore) Write(ctx context.Context, value int64) error {
	return s.cache.Set(ctx, s.key, value)
}

func (s *RedisStore) Reset(ctx context.Context) error {
	return s.cache.Delete(ctx, s.key)
}

// CursorRepository is the part of PostgresStorage the postgres store needs
type CursorRepository interface {
	GetCursor(ctx context.Context, botName string) (int64, error)
	SetCursor(ctx context.Context, botName string, updateID int64) error
	DeleteCursor(ctx context.Context, botName string) error
}

// PostgresStore keeps the cursor in the bot_cursor table
type PostgresStore struct {
	repo    CursorRepository
	botName string
}

func NewPostgresStore(repo CursorRepository, botName string) *PostgresStore {
	return &PostgresStore{repo: repo, botName: botName}
}

func (s *PostgresStore) Read(ctx context.Context) int64 {
	value, err := s.repo.GetCursor(ctx, s.botName)
	if err != nil {
		if !errors.Is(err, storage.ErrCursorNotFound) {
			logger.Warn("Failed to read cursor from Postgres, starting from zero",
				zap.String("bot", s.botName),
				zap.Error(err))
		}
		return 0
	}
	return clamp(value)
}

func (s *PostgresStore) Write(ctx context.Context, value int64) error {
	return s.repo.SetCursor(ctx, s.botName, value)
}

func (s *PostgresStore) Reset(ctx context.Context) error {
	return s.repo.DeleteCursor(ctx, s.botName)
}

func clamp(value int64) int64 {
	if value < 0 {
		return 0
	}
	return value
}
