package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/pilgrim/internal/common"
	"github.com/dmitrijs2005/pilgrim/internal/server/auth"
	"github.com/dmitrijs2005/pilgrim/internal/server/models"
	"github.com/dmitrijs2005/pilgrim/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/pilgrim/internal/server/repositories/users"
	"github.com/google/uuid"
)

// SessionResolver turns an authenticated user into a session cookie and a
// cookie back into a user on every request.
//
// Only the user id is kept in the session record. The virtual administrator
// (models.VirtualAdminID) is never looked up in the user repository: it is
// rebuilt from a template plus the profile edits made during this process's
// lifetime.
type SessionResolver struct {
	users    users.Repository
	sessions sessions.Repository
	secret   []byte
	ttl      time.Duration

	// Now is the clock. Tests replace it.
	Now func() time.Time

	mu            sync.Mutex
	adminTemplate models.User
	adminOverride models.UserPatch
}

func NewSessionResolver(u users.Repository, s sessions.Repository, secret []byte, ttl time.Duration, adminUsername string) *SessionResolver {
	return &SessionResolver{
		users:    u,
		sessions: s,
		secret:   secret,
		ttl:      ttl,
		Now:      time.Now,
		adminTemplate: models.User{
			ID:       models.VirtualAdminID,
			Username: adminUsername,
			Email:    adminUsername + "@pilgrim.local",
			Role:     models.RoleAdmin,
			Verified: true,
			FullName: "Administrator",
			// stable across restarts
			CreatedAt: time.Unix(0, 0).UTC(),
		},
	}
}

// Serialize stores a new session for user and returns the signed cookie
// value.
func (r *SessionResolver) Serialize(ctx context.Context, user *models.User) (string, error) {
	now := r.Now()
	s := &models.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(r.ttl),
	}
	if err := r.sessions.Create(ctx, s); err != nil {
		return "", fmt.Errorf("session create: %w", err)
	}

	token, err := auth.GenerateToken(s.ID, r.secret, r.ttl)
	if err != nil {
		return "", fmt.Errorf("session sign: %w", err)
	}
	return token, nil
}

// Deserialize resolves cookie to the session's user. Every way of not
// having a usable session (bad signature, expired or deleted session,
// vanished user, unverified non-admin) yields common.ErrorUnauthorized.
func (r *SessionResolver) Deserialize(ctx context.Context, cookie string) (*models.User, error) {
	userID, err := r.sessionUserID(ctx, cookie)
	if err != nil {
		return nil, err
	}

	if userID == models.VirtualAdminID {
		return r.AdminUser(), nil
	}

	u, err := r.users.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, err
	}

	if !u.Verified && u.Role != models.RoleAdmin {
		return nil, common.ErrorUnauthorized
	}
	return u, nil
}

// Invalidate deletes the session behind cookie. Unknown or already expired
// sessions are not an error.
func (r *SessionResolver) Invalidate(ctx context.Context, cookie string) error {
	id, err := auth.GetSessionIDFromToken(cookie, r.secret)
	if err != nil {
		return nil
	}
	return r.sessions.Delete(ctx, id)
}

func (r *SessionResolver) sessionUserID(ctx context.Context, cookie string) (int64, error) {
	if cookie == "" {
		return 0, common.ErrorUnauthorized
	}

	id, err := auth.GetSessionIDFromToken(cookie, r.secret)
	if err != nil {
		return 0, common.ErrorUnauthorized
	}

	s, err := r.sessions.Find(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return 0, common.ErrorUnauthorized
		}
		return 0, err
	}
	return s.UserID, nil
}

// AdminUser returns the virtual administrator: the template with the
// in-process profile edits applied. Role and verification cannot be
// overridden.
func (r *SessionResolver) AdminUser() *models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.adminLocked()
}

// UpdateAdminProfile records profile edits for the virtual administrator.
// They are kept in memory only and lost on restart.
func (r *SessionResolver) UpdateAdminProfile(patch models.UserPatch) *models.User {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.adminOverride = r.adminOverride.Merge(models.UserPatch{
		Email:     patch.Email,
		FullName:  patch.FullName,
		Phone:     patch.Phone,
		Bio:       patch.Bio,
		AvatarURL: patch.AvatarURL,
	})
	return r.adminLocked()
}

func (r *SessionResolver) adminLocked() *models.User {
	u := r.adminTemplate
	r.adminOverride.Apply(&u)
	return &u
}
