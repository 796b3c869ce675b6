// Package repomanager wires repository implementations to a storage backend:
// process memory, or a relational database reached through database/sql.
package repomanager

import (
	"context"

	"github.com/dmitrijs2005/pilgrim/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/pilgrim/internal/server/repositories/users"
)

type RepositoryManager interface {
	Users() users.Repository
	Sessions() sessions.Repository

	// WithinTx runs fn with a users repository whose writes commit together
	// when the backend supports transactions.
	WithinTx(ctx context.Context, fn func(ctx context.Context, repo users.Repository) error) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
	Close() error
}
