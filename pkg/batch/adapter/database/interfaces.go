// Package database defines the database connection abstraction the writer and the migrator use.
// Concrete connections are built by the gorm adapter and its per-dialect providers.
package database

import (
	"context"
	"database/sql"

	dbconfig "github.com/tigerroll/customer-batch/pkg/batch/adapter/database/config"
	tx "github.com/tigerroll/customer-batch/pkg/batch/core/tx"
)

// DBExecutor holds the operations available outside a managed transaction.
type DBExecutor interface {
	tx.TxExecutor

	// ExecuteQuery loads the rows matching query into target, a pointer to a slice.
	ExecuteQuery(ctx context.Context, target interface{}, query map[string]interface{}) error

	// Count counts the rows of model's table matching query.
	Count(ctx context.Context, model interface{}, query map[string]interface{}) (int64, error)
}

// DBConnection is a named, pooled database connection.
type DBConnection interface {
	DBExecutor

	Close() error
	// Type is the database type, e.g. "sqlite", "postgres" or "mysql".
	Type() string
	Name() string

	// IsTableNotExistError reports whether err means the table is missing.
	IsTableNotExistError(err error) bool
	// RefreshConnection pings the pool, re-establishing connections as needed.
	RefreshConnection(ctx context.Context) error
	Config() dbconfig.DatabaseConfig
	GetSQLDB() (*sql.DB, error)
}

// DBConnectionResolver finds the connection configured under a name.
type DBConnectionResolver interface {
	ResolveDBConnection(ctx context.Context, name string) (DBConnection, error)
}

// DBProvider creates and caches the connections of one database type.
type DBProvider interface {
	GetConnection(name string) (DBConnection, error)
	CloseAll() error
	Type() string
	// ForceReconnect closes the named connection, if open, and establishes it again.
	ForceReconnect(name string) (DBConnection, error)
}

// DBProviderGroup is the fx value group DBProviders are collected in.
const DBProviderGroup = "db_providers"
