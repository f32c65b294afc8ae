// Package writer persists customers into the target database.
package writer

import (
	"context"

	"github.com/tigerroll/customer-batch/internal/domain/entity"
	port "github.com/tigerroll/customer-batch/pkg/batch/core/application/port"
	tx "github.com/tigerroll/customer-batch/pkg/batch/core/tx"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

// CustomerWriter upserts each chunk into the customers table keyed by id, so saving a customer
// twice overwrites the first row instead of failing.
type CustomerWriter struct {
	tableName string
}

var _ port.ItemWriter[entity.Customer] = (*CustomerWriter)(nil)

// NewCustomerWriter returns a CustomerWriter.
func NewCustomerWriter() *CustomerWriter {
	return &CustomerWriter{tableName: entity.Customer{}.TableName()}
}

// Open implements port.ItemWriter.
func (w *CustomerWriter) Open(ctx context.Context) error {
	logger.Debugf("CustomerWriter opened (table '%s').", w.tableName)
	return nil
}

// Write implements port.ItemWriter. The chunk goes out as one multi-row upsert in t.
// Failures are returned as *exception.WriteError; the caller rolls t back.
func (w *CustomerWriter) Write(ctx context.Context, t tx.Tx, items []entity.Customer) error {
	if len(items) == 0 {
		return nil
	}
	rows := lastWriteWins(items)
	affected, err := t.ExecuteUpsert(ctx, &rows, w.tableName, []string{"id"}, entity.UpdatableColumns)
	if err != nil {
		return exception.NewWriteError(exception.NoFailedIndex, err)
	}
	logger.Debugf("CustomerWriter upserted %d customer(s), %d row(s) affected.", len(rows), affected)
	return nil
}

// Close implements port.ItemWriter.
func (w *CustomerWriter) Close(ctx context.Context) error {
	logger.Debugf("CustomerWriter closed.")
	return nil
}

// lastWriteWins collapses customers sharing an id to the last one, keeping the position of the
// first. A single upsert statement cannot touch the same key twice on postgres.
func lastWriteWins(items []entity.Customer) []entity.Customer {
	pos := make(map[int64]int, len(items))
	out := make([]entity.Customer, 0, len(items))
	for _, c := range items {
		if i, ok := pos[c.ID]; ok {
			out[i] = c
			continue
		}
		pos[c.ID] = len(out)
		out = append(out, c)
	}
	return out
}
