package migration

import (
	"context"
	"io/fs"
)

// AppMigrationsTable records which application migrations have been applied.
const AppMigrationsTable = "batch_app_migrations"

// Migrator applies schema migrations to one database connection.
type Migrator interface {
	// Up applies all pending migrations found under path in migrationFS.
	// tableName is the table that tracks the migration history.
	Up(ctx context.Context, migrationFS fs.FS, path string, tableName string) error
	// Down reverts every applied migration.
	Down(ctx context.Context, migrationFS fs.FS, path string, tableName string) error
	// Version returns the current schema version and whether the last migration left it dirty.
	// ok is false when no migration has been applied yet.
	Version(ctx context.Context, migrationFS fs.FS, path string, tableName string) (version uint, dirty bool, ok bool, err error)
}
