package migration

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/tigerroll/customer-batch/pkg/batch/adapter/database"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/exception"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

// Runner brings the schema of a named connection up to date before a job starts.
// Migrations are read from <type>/ inside the migration filesystem, so one filesystem can
// carry a variant per database type.
type Runner struct {
	dbResolver  database.DBConnectionResolver
	migrationFS fs.FS
	newMigrator func(database.DBConnection) Migrator
}

// NewRunner returns a Runner reading migrations from migrationFS.
func NewRunner(dbResolver database.DBConnectionResolver, migrationFS fs.FS) *Runner {
	return &Runner{dbResolver: dbResolver, migrationFS: migrationFS, newMigrator: NewMigrator}
}

// Run applies pending migrations to dbName. Connections whose configuration does not set
// migrate are left alone.
func (r *Runner) Run(ctx context.Context, dbName string) error {
	conn, err := r.dbResolver.ResolveDBConnection(ctx, dbName)
	if err != nil {
		return exception.NewBatchError("migration", fmt.Sprintf("failed to resolve connection '%s'", dbName), err, false, false)
	}
	if !conn.Config().Migrate {
		logger.Debugf("Schema migration disabled for '%s'.", dbName)
		return nil
	}

	if err := r.newMigrator(conn).Up(ctx, r.migrationFS, conn.Type(), AppMigrationsTable); err != nil {
		return exception.NewBatchError("migration", fmt.Sprintf("schema migration of '%s' failed", dbName), err, false, false)
	}

	// The migrator closed the pool; resolving again reconnects.
	if _, err := r.dbResolver.ResolveDBConnection(ctx, dbName); err != nil {
		return exception.NewBatchError("migration", fmt.Sprintf("failed to reconnect '%s' after migration", dbName), err, false, false)
	}
	return nil
}
