// Package sessions stores the mapping from session id to user id. Records
// carry their own expiry; an expired record is reported as not found.
package sessions

import (
	"context"

	"github.com/dmitrijs2005/pilgrim/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, s *models.Session) error

	// Find returns common.ErrorNotFound for unknown or expired sessions.
	Find(ctx context.Context, id string) (*models.Session, error)

	// Delete is idempotent.
	Delete(ctx context.Context, id string) error
}

// Janitor is implemented by stores that keep expired records until swept.
// Redis expires keys itself and has no janitor.
type Janitor interface {
	DeleteExpired(ctx context.Context) (int64, error)
}
