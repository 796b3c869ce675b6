package repomanager

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/pilgrim/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/pilgrim/internal/server/repositories/users"
	"github.com/redis/go-redis/v9"
)

// WithRedisSessions keeps base for users but moves sessions to Redis.
type WithRedisSessions struct {
	RepositoryManager
	rdb      redis.UniversalClient
	sessions *sessions.RedisRepository
}

func NewWithRedisSessions(base RepositoryManager, rdb redis.UniversalClient) *WithRedisSessions {
	return &WithRedisSessions{
		RepositoryManager: base,
		rdb:               rdb,
		sessions:          sessions.NewRedisRepository(rdb),
	}
}

func (m *WithRedisSessions) Sessions() sessions.Repository {
	return m.sessions
}

func (m *WithRedisSessions) Users() users.Repository {
	return m.RepositoryManager.Users()
}

func (m *WithRedisSessions) Ping(ctx context.Context) error {
	if err := m.RepositoryManager.Ping(ctx); err != nil {
		return err
	}
	return m.rdb.Ping(ctx).Err()
}

func (m *WithRedisSessions) Close() error {
	return errors.Join(m.RepositoryManager.Close(), m.rdb.Close())
}
