package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/tigerroll/customer-batch/pkg/batch/adapter/database"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

type migratorImpl struct {
	dbConn database.DBConnection
	dbType string
}

// NewMigrator returns a Migrator working on the pool of dbConn.
//
// golang-migrate closes the *sql.DB it was given when it is done, so dbConn is unusable
// afterwards. The connection resolver re-establishes it on the next resolve.
func NewMigrator(dbConn database.DBConnection) Migrator {
	return &migratorImpl{dbConn: dbConn, dbType: dbConn.Type()}
}

func (m *migratorImpl) databaseDriver(sqlDB *sql.DB, tableName string) (migratedb.Driver, error) {
	switch m.dbType {
	case "postgres":
		return postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: tableName})
	case "mysql":
		return mysql.WithInstance(sqlDB, &mysql.Config{MigrationsTable: tableName})
	case "sqlite":
		return sqlite.WithInstance(sqlDB, &sqlite.Config{MigrationsTable: tableName})
	default:
		return nil, fmt.Errorf("unsupported database type for migration: %s", m.dbType)
	}
}

func (m *migratorImpl) instance(migrationFS fs.FS, path string, tableName string) (*migrate.Migrate, error) {
	sqlDB, err := m.dbConn.GetSQLDB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	source, err := iofs.New(migrationFS, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open migrations at '%s': %w", path, err)
	}
	driver, err := m.databaseDriver(sqlDB, tableName)
	if err != nil {
		source.Close()
		return nil, err
	}
	mi, err := migrate.NewWithInstance("iofs", source, m.dbType, driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	mi.Log = migrateLogger{}
	return mi, nil
}

func (m *migratorImpl) run(migrationFS fs.FS, path string, tableName string, command string, apply func(*migrate.Migrate) error) error {
	logger.Infof("Executing migration '%s' (Path: %s, Table: %s)", command, path, tableName)

	mi, err := m.instance(migrationFS, path, tableName)
	if err != nil {
		return err
	}
	defer closeInstance(mi)

	if err := apply(mi); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Infof("Migration '%s': schema already up to date.", command)
			return nil
		}
		return fmt.Errorf("migration '%s' failed (DB: %s, Path: %s): %w", command, m.dbType, path, err)
	}
	logger.Infof("Migration '%s' completed successfully.", command)
	return nil
}

func (m *migratorImpl) Up(ctx context.Context, migrationFS fs.FS, path string, tableName string) error {
	return m.run(migrationFS, path, tableName, "up", (*migrate.Migrate).Up)
}

func (m *migratorImpl) Down(ctx context.Context, migrationFS fs.FS, path string, tableName string) error {
	return m.run(migrationFS, path, tableName, "down", (*migrate.Migrate).Down)
}

func (m *migratorImpl) Version(ctx context.Context, migrationFS fs.FS, path string, tableName string) (uint, bool, bool, error) {
	mi, err := m.instance(migrationFS, path, tableName)
	if err != nil {
		return 0, false, false, err
	}
	defer closeInstance(mi)

	version, dirty, err := mi.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, false, nil
	}
	if err != nil {
		return 0, false, false, err
	}
	return version, dirty, true, nil
}

func closeInstance(mi *migrate.Migrate) {
	srcErr, dbErr := mi.Close()
	if srcErr != nil {
		logger.Warnf("Failed to close migration source: %v", srcErr)
	}
	if dbErr != nil {
		logger.Warnf("Failed to close migration database driver: %v", dbErr)
	}
}

// migrateLogger routes golang-migrate output to the batch logger.
type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	logger.Debugf("migrate: "+format, v...)
}

func (migrateLogger) Verbose() bool {
	return false
}
