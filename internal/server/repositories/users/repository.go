// Package users declares the user storage contract and its two backends:
// MemoryRepository (process lifetime) and SQLRepository (PostgreSQL or SQLite).
//
// Both backends behave identically to callers: same sentinel errors, same
// merge semantics, ascending ids. Only MemoryRepository guarantees gapless ids.
package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/pilgrim/internal/server/models"
)

type Repository interface {
	// Create assigns the next id and CreatedAt, and marks admins verified.
	// A username or email that is already taken yields common.ErrorAlreadyExists.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	// Get returns common.ErrorNotFound when id does not exist.
	Get(ctx context.Context, id int64) (*models.User, error)

	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByVerificationToken(ctx context.Context, token string) (*models.User, error)
	GetByResetToken(ctx context.Context, token string) (*models.User, error)
	GetByTwoFactorCode(ctx context.Context, code string) (*models.User, error)

	// Update shallow-merges patch over the stored record and returns the result.
	Update(ctx context.Context, id int64, patch models.UserPatch) (*models.User, error)
}

// normalizeTime drops the monotonic reading and sub-microsecond precision so
// that every backend returns the same instants.
func normalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC().Truncate(time.Microsecond)
}

func normalizeToken(ts models.TokenState) models.TokenState {
	if ts.IsZero() {
		return models.TokenState{}
	}
	return models.TokenState{Token: ts.Token, ExpiresAt: normalizeTime(ts.ExpiresAt)}
}

func normalizePatch(p models.UserPatch) models.UserPatch {
	if p.Verification != nil {
		p.Verification = models.Ptr(normalizeToken(*p.Verification))
	}
	if p.Reset != nil {
		p.Reset = models.Ptr(normalizeToken(*p.Reset))
	}
	if p.TwoFactor != nil {
		p.TwoFactor = models.Ptr(normalizeToken(*p.TwoFactor))
	}
	return p
}

// prepareNew applies the creation rules shared by every backend.
func prepareNew(u *models.User, now time.Time) *models.User {
	c := u.Clone()
	c.CreatedAt = normalizeTime(now)
	c.Verified = c.Role == models.RoleAdmin
	c.Verification = normalizeToken(c.Verification)
	c.Reset = normalizeToken(c.Reset)
	c.TwoFactor = normalizeToken(c.TwoFactor)
	return c
}
