// Package tx defines the transaction handle passed to item writers and the manager that
// opens and closes it around each chunk.
package tx

import (
	"context"
	"database/sql"
)

// TxExecutor is the set of write operations available inside a transaction.
type TxExecutor interface {
	// ExecuteUpsert inserts model (a struct pointer or a pointer to a slice of structs) into tableName.
	// Rows conflicting on conflictColumns are updated with the values of updateColumns.
	ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (rowsAffected int64, err error)
	// ExecuteUpdate runs a "create", "update" or "delete" of model against tableName.
	// query restricts the rows affected by update and delete.
	ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (rowsAffected int64, err error)
}

// Tx is an open transaction.
type Tx interface {
	TxExecutor
	// Savepoint marks a point the transaction can be rolled back to without being aborted.
	Savepoint(name string) error
	RollbackToSavepoint(name string) error
}

// TransactionManager opens and closes transactions. Commit and Rollback must be called exactly
// once per Begin; the orchestrator guarantees this on every exit path of a chunk.
type TransactionManager interface {
	Begin(ctx context.Context, opts ...*sql.TxOptions) (Tx, error)
	Commit(tx Tx) error
	Rollback(tx Tx) error
}

// ParseIsolationLevel converts a configuration value such as "READ_COMMITTED" or
// "serializable" to sql.IsolationLevel. Unknown or empty values map to sql.LevelDefault.
func ParseIsolationLevel(level string) sql.IsolationLevel {
	switch level {
	case "READ_UNCOMMITTED", "read_uncommitted":
		return sql.LevelReadUncommitted
	case "READ_COMMITTED", "read_committed":
		return sql.LevelReadCommitted
	case "REPEATABLE_READ", "repeatable_read":
		return sql.LevelRepeatableRead
	case "SERIALIZABLE", "serializable":
		return sql.LevelSerializable
	default:
		return sql.LevelDefault
	}
}
