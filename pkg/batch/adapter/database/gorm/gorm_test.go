package gorm_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tigerroll/customer-batch/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/customer-batch/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/customer-batch/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/customer-batch/pkg/batch/adapter/database/gorm/sqlite"
	config "github.com/tigerroll/customer-batch/pkg/batch/core/config"
)

type account struct {
	ID    int64  `gorm:"column:id;primaryKey;autoIncrement:false"`
	Name  string `gorm:"column:name"`
	Email string `gorm:"column:email"`
}

func (account) TableName() string { return "accounts" }

func newSQLiteResolver(t *testing.T) *gormadapter.GormDBConnectionResolver {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Database = map[string]interface{}{
		"default": map[string]interface{}{
			"type":     "sqlite",
			"database": filepath.Join(t.TempDir(), "test.db"),
			"pool":     map[string]interface{}{"max_open_conns": 1},
		},
	}
	r := gormadapter.NewGormDBConnectionResolver(gormadapter.ResolverParams{
		DBProviders: []database.DBProvider{sqlite.NewProvider(cfg)},
		Cfg:         cfg,
	})
	t.Cleanup(r.CloseAll)

	conn, err := r.ResolveDBConnection(context.Background(), "default")
	require.NoError(t, err)
	require.NoError(t, conn.(*gormadapter.GormDBAdapter).GormDB().AutoMigrate(&account{}))
	return r
}

func TestTransactionManager_UpsertAndCommit(t *testing.T) {
	ctx := context.Background()
	r := newSQLiteResolver(t)
	tm := gormadapter.NewGormTransactionManager(r, "default")

	txn, err := tm.Begin(ctx, &sql.TxOptions{})
	require.NoError(t, err)
	n, err := txn.ExecuteUpsert(ctx, &[]account{{ID: 1, Name: "a", Email: "a@x"}, {ID: 2, Name: "b", Email: "b@x"}},
		"accounts", []string{"id"}, []string{"name", "email"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.NoError(t, tm.Commit(txn))

	txn, err = tm.Begin(ctx)
	require.NoError(t, err)
	_, err = txn.ExecuteUpsert(ctx, &[]account{{ID: 1, Name: "a2", Email: "a2@x"}}, "accounts", []string{"id"}, []string{"name", "email"})
	require.NoError(t, err)
	require.NoError(t, tm.Commit(txn))

	conn, err := r.ResolveDBConnection(ctx, "default")
	require.NoError(t, err)
	count, err := conn.Count(ctx, &account{}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	var rows []account
	require.NoError(t, conn.ExecuteQuery(ctx, &rows, map[string]interface{}{"id": 1}))
	require.Len(t, rows, 1)
	assert.Equal(t, "a2", rows[0].Name)
}

func TestTransactionManager_Rollback(t *testing.T) {
	ctx := context.Background()
	r := newSQLiteResolver(t)
	tm := gormadapter.NewGormTransactionManager(r, "default")

	txn, err := tm.Begin(ctx)
	require.NoError(t, err)
	_, err = txn.ExecuteUpsert(ctx, &[]account{{ID: 1, Name: "a"}}, "accounts", []string{"id"}, []string{"name"})
	require.NoError(t, err)
	require.NoError(t, tm.Rollback(txn))

	conn, err := r.ResolveDBConnection(ctx, "default")
	require.NoError(t, err)
	count, err := conn.Count(ctx, &account{}, nil)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestTransactionManager_Savepoint(t *testing.T) {
	ctx := context.Background()
	r := newSQLiteResolver(t)
	tm := gormadapter.NewGormTransactionManager(r, "default")

	txn, err := tm.Begin(ctx)
	require.NoError(t, err)
	_, err = txn.ExecuteUpdate(ctx, &account{ID: 1, Name: "kept"}, "CREATE", "accounts", nil)
	require.NoError(t, err)
	require.NoError(t, txn.Savepoint("sp1"))
	_, err = txn.ExecuteUpdate(ctx, &account{ID: 2, Name: "undone"}, "CREATE", "accounts", nil)
	require.NoError(t, err)
	require.NoError(t, txn.RollbackToSavepoint("sp1"))
	require.NoError(t, tm.Commit(txn))

	conn, err := r.ResolveDBConnection(ctx, "default")
	require.NoError(t, err)
	var rows []account
	require.NoError(t, conn.ExecuteQuery(ctx, &rows, nil))
	require.Len(t, rows, 1)
	assert.Equal(t, "kept", rows[0].Name)
}

func TestExecuteUpsert_EmptySliceIsNoop(t *testing.T) {
	ctx := context.Background()
	r := newSQLiteResolver(t)
	conn, err := r.ResolveDBConnection(ctx, "default")
	require.NoError(t, err)

	n, err := conn.ExecuteUpsert(ctx, &[]account{}, "accounts", []string{"id"}, []string{"name"})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIsTableNotExistError(t *testing.T) {
	ctx := context.Background()
	r := newSQLiteResolver(t)
	conn, err := r.ResolveDBConnection(ctx, "default")
	require.NoError(t, err)

	_, err = conn.ExecuteUpdate(ctx, &account{ID: 1}, "CREATE", "missing_table", nil)
	require.Error(t, err)
	assert.True(t, conn.IsTableNotExistError(err))
	assert.False(t, conn.IsTableNotExistError(nil))

	_, err = conn.ExecuteUpdate(ctx, &account{ID: 1}, "MERGE", "accounts", nil)
	assert.ErrorContains(t, err, "unsupported update operation")
}

func TestResolver_UnknownConnection(t *testing.T) {
	r := newSQLiteResolver(t)

	_, err := r.ResolveDBConnection(context.Background(), "reporting")
	assert.ErrorContains(t, err, "not found")
}

func TestResolver_NoProviderForType(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Database = map[string]interface{}{"default": map[string]interface{}{"type": "oracle"}}
	r := gormadapter.NewGormDBConnectionResolver(gormadapter.ResolverParams{Cfg: cfg})

	_, err := r.ResolveDBConnection(context.Background(), "default")
	assert.ErrorContains(t, err, "no database provider registered for type 'oracle'")
}

func TestGormTx_UpsertStatementOnMySQL(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{
		Logger: gormadapter.NewGormLogger("SILENT"),
	})
	require.NoError(t, err)
	conn, err := gormadapter.NewGormDBAdapter(db, dbconfig.DatabaseConfig{Type: "mysql"}, "default")
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `accounts` .* ON DUPLICATE KEY UPDATE `name`=VALUES\\(`name`\\)").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tm := gormadapter.NewGormTransactionManager(staticResolver{conn}, "default")
	txn, err := tm.Begin(context.Background())
	require.NoError(t, err)
	_, err = txn.ExecuteUpsert(context.Background(), &[]account{{ID: 7, Name: "n"}}, "accounts", []string{"id"}, []string{"name"})
	require.NoError(t, err)
	require.NoError(t, tm.Commit(txn))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionManager_ForeignTx(t *testing.T) {
	tm := gormadapter.NewGormTransactionManager(nil, "default")
	assert.Error(t, tm.Commit(nil))
	assert.Error(t, tm.Rollback(nil))
}

type staticResolver struct {
	conn database.DBConnection
}

func (s staticResolver) ResolveDBConnection(context.Context, string) (database.DBConnection, error) {
	return s.conn, nil
}
