// Package metrics defines the observability ports of the engine: a metric recorder and a tracer.
// Backends live in pkg/batch/infrastructure/metrics.
package metrics

import (
	"context"

	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
)

// MetricRecorder receives execution events. Implementations must be safe for concurrent use.
type MetricRecorder interface {
	RecordJobStart(ctx context.Context, execution *model.JobExecution)
	RecordJobEnd(ctx context.Context, execution *model.JobExecution)
	RecordStepStart(ctx context.Context, state *model.ExecutionState)
	RecordStepEnd(ctx context.Context, state *model.ExecutionState)
	RecordItemRead(ctx context.Context, stepName string)
	RecordItemFilter(ctx context.Context, stepName string)
	// RecordItemSkip counts a record rejected before the processor. reason is a short error class.
	RecordItemSkip(ctx context.Context, stepName string, reason string)
	RecordItemRetry(ctx context.Context, stepName string, reason string)
	RecordChunkCommit(ctx context.Context, stepName string, count int)
	RecordChunkRollback(ctx context.Context, stepName string, count int)
}
