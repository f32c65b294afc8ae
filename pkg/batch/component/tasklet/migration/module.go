// Package migration applies the embedded schema migrations with golang-migrate.
package migration

import (
	"io/fs"

	"go.uber.org/fx"

	"github.com/tigerroll/customer-batch/pkg/batch/adapter/database"
)

// MigrationFSTag names the fs.FS holding the application migrations in the fx graph.
const MigrationFSTag = `name:"migrationFS"`

type runnerParams struct {
	fx.In
	DBResolver  database.DBConnectionResolver
	MigrationFS fs.FS `name:"migrationFS"`
}

func newRunnerFromParams(p runnerParams) *Runner {
	return NewRunner(p.DBResolver, p.MigrationFS)
}

// Module provides the migration Runner. The application supplies the filesystem under
// MigrationFSTag.
var Module = fx.Module("migration",
	fx.Provide(newRunnerFromParams),
)
