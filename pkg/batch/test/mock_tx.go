// Package test holds testify mocks shared by the engine and component tests.
package test

import (
	"context"
	"database/sql"

	"github.com/stretchr/testify/mock"

	tx "github.com/tigerroll/customer-batch/pkg/batch/core/tx"
)

var (
	_ tx.Tx                 = (*MockTx)(nil)
	_ tx.TransactionManager = (*MockTxManager)(nil)
)

// MockTx records the writes a component issues inside a chunk transaction.
type MockTx struct{ mock.Mock }

func rowsAndErr(args mock.Arguments) (int64, error) {
	n, _ := args.Get(0).(int64)
	return n, args.Error(1)
}

func (m *MockTx) ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (int64, error) {
	return rowsAndErr(m.Called(ctx, model, operation, tableName, query))
}

func (m *MockTx) ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (int64, error) {
	return rowsAndErr(m.Called(ctx, model, tableName, conflictColumns, updateColumns))
}

func (m *MockTx) Savepoint(name string) error           { return m.Called(name).Error(0) }
func (m *MockTx) RollbackToSavepoint(name string) error { return m.Called(name).Error(0) }

// MockTxManager hands out the tx configured with On("Begin"). A nil first return value means
// Begin fails with the second.
type MockTxManager struct{ mock.Mock }

func (m *MockTxManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (tx.Tx, error) {
	args := m.Called(ctx, opts)
	t, _ := args.Get(0).(tx.Tx)
	return t, args.Error(1)
}

func (m *MockTxManager) Commit(t tx.Tx) error   { return m.Called(t).Error(0) }
func (m *MockTxManager) Rollback(t tx.Tx) error { return m.Called(t).Error(0) }
