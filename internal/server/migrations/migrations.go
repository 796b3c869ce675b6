// Package migrations embeds the goose schema migrations, one directory per
// SQL dialect, and applies them.
package migrations

import (
	"context"
	"database/sql"
	"embed"

	"github.com/pressly/goose/v3"
)

//go:embed postgres/*.sql sqlite/*.sql
var Migrations embed.FS

// Dir returns the migration directory and goose dialect for a database/sql
// driver name.
func Dir(driver string) (dir string, dialect string) {
	if driver == "sqlite" {
		return "sqlite", "sqlite3"
	}
	return "postgres", "pgx"
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Up applies every pending migration for driver.
func Up(ctx context.Context, db *sql.DB, driver string) error {
	dir, dialect := Dir(driver)

	goose.SetBaseFS(Migrations)
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	goose.SetLogger(goose.NopLogger())

	return gooseUpContext(ctx, db, dir)
}
