package gorm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/tigerroll/customer-batch/pkg/batch/adapter/database"
	tx "github.com/tigerroll/customer-batch/pkg/batch/core/tx"
)

var errForeignTx = errors.New("invalid transaction type: expected *GormTxAdapter")

// GormTxAdapter implements tx.Tx on a gorm transaction.
type GormTxAdapter struct {
	db *gorm.DB
}

var _ tx.Tx = (*GormTxAdapter)(nil)

// ExecuteUpdate implements tx.Tx. operation is CREATE, UPDATE or DELETE; query narrows UPDATE
// and DELETE.
func (t *GormTxAdapter) ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (int64, error) {
	return executeUpdate(ctx, t.db, model, operation, tableName, query)
}

// ExecuteUpsert implements tx.Tx. It inserts model, a struct or a slice, and on a conflict over
// conflictColumns overwrites updateColumns with the incoming values. An empty slice is a no-op.
//
// Returns:
//
//	The number of rows the database reports as affected. Drivers differ: MySQL counts an
//	updated row twice.
func (t *GormTxAdapter) ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (int64, error) {
	return executeUpsert(ctx, t.db, model, tableName, conflictColumns, updateColumns)
}

// Savepoint implements tx.Tx.
func (t *GormTxAdapter) Savepoint(name string) error {
	return t.db.SavePoint(name).Error
}

// RollbackToSavepoint implements tx.Tx. Work done after the savepoint is discarded; the
// transaction itself stays open.
func (t *GormTxAdapter) RollbackToSavepoint(name string) error {
	return t.db.RollbackTo(name).Error
}

// GormTransactionManager opens transactions on the connection named dbName. The connection is
// resolved on every Begin so a reconnected pool is picked up.
type GormTransactionManager struct {
	dbResolver database.DBConnectionResolver
	dbName     string
}

var _ tx.TransactionManager = (*GormTransactionManager)(nil)

// NewGormTransactionManager returns a manager for the connection dbName.
func NewGormTransactionManager(dbResolver database.DBConnectionResolver, dbName string) *GormTransactionManager {
	return &GormTransactionManager{dbResolver: dbResolver, dbName: dbName}
}

// Begin starts a transaction on the managed connection.
//
// Parameters:
//
//	ctx: Bound to the transaction. Cancelling it aborts statements issued through the Tx.
//	opts: Optional; only the first element is used. A default isolation level leaves the
//	      choice to the driver.
//
// Returns:
//
//	A *GormTxAdapter, or an error when the connection cannot be resolved or BEGIN fails.
func (m *GormTransactionManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (tx.Tx, error) {
	conn, err := m.dbResolver.ResolveDBConnection(ctx, m.dbName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve DB connection '%s' for transaction: %w", m.dbName, err)
	}
	adapter, ok := conn.(*GormDBAdapter)
	if !ok {
		return nil, fmt.Errorf("DB connection '%s' is a %T, expected *GormDBAdapter", m.dbName, conn)
	}

	var txOpts *sql.TxOptions
	if len(opts) > 0 && opts[0] != nil && opts[0].Isolation != sql.LevelDefault {
		txOpts = opts[0]
	}
	gormTx := adapter.GormDB().WithContext(ctx).Begin(txOpts)
	if gormTx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", gormTx.Error)
	}
	return &GormTxAdapter{db: gormTx}, nil
}

// Commit commits t. t must have been returned by Begin of a GormTransactionManager.
func (m *GormTransactionManager) Commit(t tx.Tx) error {
	gt, ok := t.(*GormTxAdapter)
	if !ok {
		return errForeignTx
	}
	return gt.db.Commit().Error
}

// Rollback rolls t back. t must have been returned by Begin of a GormTransactionManager.
func (m *GormTransactionManager) Rollback(t tx.Tx) error {
	gt, ok := t.(*GormTxAdapter)
	if !ok {
		return errForeignTx
	}
	return gt.db.Rollback().Error
}
