package item

import (
	"context"
	"fmt"
	"time"

	port "github.com/tigerroll/customer-batch/pkg/batch/core/application/port"
	metrics "github.com/tigerroll/customer-batch/pkg/batch/core/metrics"
	tx "github.com/tigerroll/customer-batch/pkg/batch/core/tx"
	"github.com/tigerroll/customer-batch/pkg/batch/engine/step/retry"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/exception"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

// RetryingItemWriter retries a failed chunk write inside the same transaction. Each attempt
// starts at a savepoint so a retry sees none of the previous attempt's changes.
type RetryingItemWriter[T any] struct {
	name     string
	delegate port.ItemWriter[T]
	policy   retry.RetryPolicy
	recorder metrics.MetricRecorder
	sleep    func(ctx context.Context, d time.Duration) error
}

var _ port.ItemWriter[any] = (*RetryingItemWriter[any])(nil)

// NewRetryingItemWriter wraps delegate. stepName labels the retry metric.
func NewRetryingItemWriter[T any](stepName string, delegate port.ItemWriter[T], policy retry.RetryPolicy, recorder metrics.MetricRecorder) *RetryingItemWriter[T] {
	if recorder == nil {
		recorder = metrics.NewNoOpMetricRecorder()
	}
	return &RetryingItemWriter[T]{
		name:     stepName,
		delegate: delegate,
		policy:   policy,
		recorder: recorder,
		sleep:    sleepContext,
	}
}

// Open implements port.ItemWriter by delegating.
func (w *RetryingItemWriter[T]) Open(ctx context.Context) error {
	return w.delegate.Open(ctx)
}

// Close implements port.ItemWriter by delegating.
func (w *RetryingItemWriter[T]) Close(ctx context.Context) error {
	return w.delegate.Close(ctx)
}

// Write implements port.ItemWriter.
func (w *RetryingItemWriter[T]) Write(ctx context.Context, t tx.Tx, items []T) error {
	for attempt := 0; ; attempt++ {
		savepoint := fmt.Sprintf("chunk_write_%d", attempt)
		if err := t.Savepoint(savepoint); err != nil {
			return exception.NewWriteError(exception.NoFailedIndex, fmt.Errorf("failed to create savepoint: %w", err))
		}

		err := w.delegate.Write(ctx, t, items)
		if err == nil {
			return nil
		}
		if attempt >= w.policy.GetMaxAttempts() || !w.policy.ShouldRetry(err) {
			return err
		}

		if rbErr := t.RollbackToSavepoint(savepoint); rbErr != nil {
			logger.Errorf("RetryingItemWriter '%s': rollback to savepoint failed: %v", w.name, rbErr)
			return err
		}
		backoff := w.policy.GetBackoffInterval(attempt + 1)
		logger.Warnf("RetryingItemWriter '%s': write failed (retry %d of %d in %v): %v",
			w.name, attempt+1, w.policy.GetMaxAttempts(), backoff, err)
		w.recorder.RecordItemRetry(ctx, w.name, fmt.Sprintf("%T", err))
		if err := w.sleep(ctx, backoff); err != nil {
			return exception.NewWriteError(exception.NoFailedIndex, err)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
