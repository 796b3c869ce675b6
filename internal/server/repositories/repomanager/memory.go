package repomanager

import (
	"context"

	"github.com/dmitrijs2005/pilgrim/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/pilgrim/internal/server/repositories/users"
)

type InMemoryRepositoryManager struct {
	users    *users.MemoryRepository
	sessions *sessions.MemoryRepository
}

func NewInMemoryRepositoryManager() *InMemoryRepositoryManager {
	return &InMemoryRepositoryManager{
		users:    users.NewMemoryRepository(),
		sessions: sessions.NewMemoryRepository(),
	}
}

func (m *InMemoryRepositoryManager) Users() users.Repository {
	return m.users
}

func (m *InMemoryRepositoryManager) Sessions() sessions.Repository {
	return m.sessions
}

// SessionJanitor exposes the expired-session sweep of the memory store.
func (m *InMemoryRepositoryManager) SessionJanitor() *sessions.MemoryRepository {
	return m.sessions
}

// WithinTx calls fn directly: every memory operation is already atomic and
// nothing survives a crash anyway.
func (m *InMemoryRepositoryManager) WithinTx(ctx context.Context, fn func(ctx context.Context, repo users.Repository) error) error {
	return fn(ctx, m.users)
}

func (m *InMemoryRepositoryManager) Ping(ctx context.Context) error {
	return nil
}

func (m *InMemoryRepositoryManager) Close() error {
	return nil
}
