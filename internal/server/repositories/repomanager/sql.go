package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/pilgrim/internal/dbx"
	"github.com/dmitrijs2005/pilgrim/internal/server/migrations"
	"github.com/dmitrijs2005/pilgrim/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/pilgrim/internal/server/repositories/users"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// SQLRepositoryManager vends relational repositories over one *sql.DB. The
// driver is "pgx" for PostgreSQL or "sqlite" for an embedded database file.
type SQLRepositoryManager struct {
	db       *sql.DB
	driver   string
	users    *users.SQLRepository
	sessions *sessions.SQLRepository
}

// runMigrations is a seam for tests.
var runMigrations = migrations.Up

// NewSQLRepositoryManager opens dsn with driver and applies pending
// migrations.
func NewSQLRepositoryManager(ctx context.Context, driver, dsn string) (*SQLRepositoryManager, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if driver == "sqlite" {
		// one writer at a time; also keeps ":memory:" on a single database
		db.SetMaxOpenConns(1)
	}

	m := newSQLRepositoryManager(db, driver)

	if err := runMigrations(ctx, db, driver); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return m, nil
}

func newSQLRepositoryManager(db *sql.DB, driver string) *SQLRepositoryManager {
	conn := dbx.ForDriver(db, driver)
	return &SQLRepositoryManager{
		db:       db,
		driver:   driver,
		users:    users.NewSQLRepository(conn),
		sessions: sessions.NewSQLRepository(conn),
	}
}

func (m *SQLRepositoryManager) Conn() *sql.DB {
	return m.db
}

func (m *SQLRepositoryManager) Users() users.Repository {
	return m.users
}

func (m *SQLRepositoryManager) Sessions() sessions.Repository {
	return m.sessions
}

// SessionJanitor exposes the expired-session sweep of the SQL session table.
func (m *SQLRepositoryManager) SessionJanitor() *sessions.SQLRepository {
	return m.sessions
}

func (m *SQLRepositoryManager) WithinTx(ctx context.Context, fn func(ctx context.Context, repo users.Repository) error) error {
	return dbx.WithTx(ctx, m.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, users.NewSQLRepository(dbx.ForDriver(tx, m.driver)))
	})
}

func (m *SQLRepositoryManager) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

func (m *SQLRepositoryManager) Close() error {
	return m.db.Close()
}
