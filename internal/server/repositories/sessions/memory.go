package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/pilgrim/internal/common"
	"github.com/dmitrijs2005/pilgrim/internal/server/models"
)

type MemoryRepository struct {
	mu       sync.Mutex
	sessions map[string]models.Session
	now      func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sessions: make(map[string]models.Session), now: time.Now}
}

func (r *MemoryRepository) Create(ctx context.Context, s *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[s.ID] = *s
	return nil
}

func (r *MemoryRepository) Find(ctx context.Context, id string) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	if !r.now().Before(s.ExpiresAt) {
		delete(r.sessions, id)
		return nil, common.ErrorNotFound
	}
	return &s, nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)
	return nil
}

// DeleteExpired drops every record whose expiry has passed, looked up or not.
func (r *MemoryRepository) DeleteExpired(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var n int64
	for id, s := range r.sessions {
		if !now.Before(s.ExpiresAt) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}
