package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/pilgrim/internal/common"
	"github.com/dmitrijs2005/pilgrim/internal/server/models"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "pilgrim:session:"

type redisRecord struct {
	UserID    int64 `json:"uid"`
	ExpiresAt int64 `json:"exp"`
	CreatedAt int64 `json:"iat"`
}

// RedisRepository keeps sessions as JSON strings whose Redis TTL matches the
// session expiry, so Redis evicts them on its own.
type RedisRepository struct {
	rdb redis.UniversalClient
	now func() time.Time
}

func NewRedisRepository(rdb redis.UniversalClient) *RedisRepository {
	return &RedisRepository{rdb: rdb, now: time.Now}
}

func (r *RedisRepository) Create(ctx context.Context, s *models.Session) error {
	ttl := s.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return common.ErrSessionExpired
	}

	b, err := json.Marshal(redisRecord{
		UserID:    s.UserID,
		ExpiresAt: s.ExpiresAt.UnixMilli(),
		CreatedAt: s.CreatedAt.UnixMilli(),
	})
	if err != nil {
		return err
	}

	if err := r.rdb.Set(ctx, redisKeyPrefix+s.ID, b, ttl).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

func (r *RedisRepository) Find(ctx context.Context, id string) (*models.Session, error) {
	b, err := r.rdb.Get(ctx, redisKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("redis error: %w", err)
	}

	var rec redisRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("corrupt session %s: %w", id, err)
	}

	s := &models.Session{
		ID:        id,
		UserID:    rec.UserID,
		ExpiresAt: time.UnixMilli(rec.ExpiresAt),
		CreatedAt: time.UnixMilli(rec.CreatedAt),
	}
	if !r.now().Before(s.ExpiresAt) {
		return nil, common.ErrorNotFound
	}
	return s, nil
}

func (r *RedisRepository) Delete(ctx context.Context, id string) error {
	if err := r.rdb.Del(ctx, redisKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}
