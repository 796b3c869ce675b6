package users

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/pilgrim/internal/common"
	"github.com/dmitrijs2005/pilgrim/internal/server/models"
)

// MemoryRepository keeps users in a map for the lifetime of the process.
// Ids start at 1 and have no gaps.
type MemoryRepository struct {
	mu     sync.Mutex
	users  map[int64]*models.User
	nextID int64
	now    func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:  make(map[int64]*models.User),
		nextID: 1,
		now:    time.Now,
	}
}

func (r *MemoryRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Username == user.Username || u.Email == user.Email {
			return nil, common.ErrorAlreadyExists
		}
	}

	c := prepareNew(user, r.now())
	c.ID = r.nextID
	r.nextID++
	r.users[c.ID] = c

	return c.Clone(), nil
}

func (r *MemoryRepository) Get(ctx context.Context, id int64) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return u.Clone(), nil
}

func (r *MemoryRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.Username == username })
}

func (r *MemoryRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.Email == email })
}

func (r *MemoryRepository) GetByVerificationToken(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, common.ErrorNotFound
	}
	return r.find(func(u *models.User) bool { return u.Verification.Token == token })
}

func (r *MemoryRepository) GetByResetToken(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, common.ErrorNotFound
	}
	return r.find(func(u *models.User) bool { return u.Reset.Token == token })
}

func (r *MemoryRepository) GetByTwoFactorCode(ctx context.Context, code string) (*models.User, error) {
	if code == "" {
		return nil, common.ErrorNotFound
	}
	return r.find(func(u *models.User) bool { return u.TwoFactor.Token == code })
}

func (r *MemoryRepository) Update(ctx context.Context, id int64, patch models.UserPatch) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}

	for otherID, other := range r.users {
		if otherID == id {
			continue
		}
		if (patch.Username != nil && *patch.Username == other.Username) ||
			(patch.Email != nil && *patch.Email == other.Email) {
			return nil, common.ErrorAlreadyExists
		}
	}

	normalizePatch(patch).Apply(u)
	return u.Clone(), nil
}

// find returns the lowest-id match so results are deterministic.
func (r *MemoryRepository) find(match func(*models.User) bool) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var found *models.User
	for _, u := range r.users {
		if match(u) && (found == nil || u.ID < found.ID) {
			found = u
		}
	}
	if found == nil {
		return nil, common.ErrorNotFound
	}
	return found.Clone(), nil
}
