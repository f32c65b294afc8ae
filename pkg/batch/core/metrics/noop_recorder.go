package metrics

import (
	"context"

	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
)

// NoOpMetricRecorder discards every event.
type NoOpMetricRecorder struct{}

// NewNoOpMetricRecorder returns a MetricRecorder that does nothing.
func NewNoOpMetricRecorder() MetricRecorder {
	return &NoOpMetricRecorder{}
}

func (r *NoOpMetricRecorder) RecordJobStart(context.Context, *model.JobExecution) {}
func (r *NoOpMetricRecorder) RecordJobEnd(context.Context, *model.JobExecution) {}
func (r *NoOpMetricRecorder) RecordStepStart(context.Context, *model.ExecutionState) {}
func (r *NoOpMetricRecorder) RecordStepEnd(context.Context, *model.ExecutionState) {}
func (r *NoOpMetricRecorder) RecordItemRead(context.Context, string) {}
func (r *NoOpMetricRecorder) RecordItemFilter(context.Context, string) {}
func (r *NoOpMetricRecorder) RecordItemSkip(context.Context, string, string) {}
func (r *NoOpMetricRecorder) RecordItemRetry(context.Context, string, string) {}
func (r *NoOpMetricRecorder) RecordChunkCommit(context.Context, string, int) {}
func (r *NoOpMetricRecorder) RecordChunkRollback(context.Context, string, int) {}

// NoOpTracer opens no spans.
type NoOpTracer struct{}

// NewNoOpTracer returns a Tracer that does nothing.
func NewNoOpTracer() Tracer {
	return &NoOpTracer{}
}

func (t *NoOpTracer) StartJobSpan(ctx context.Context, _ *model.JobExecution) (context.Context, func()) {
	return ctx, func() {}
}

func (t *NoOpTracer) StartStepSpan(ctx context.Context, _ *model.ExecutionState) (context.Context, func()) {
	return ctx, func() {}
}

func (t *NoOpTracer) StartChunkSpan(ctx context.Context, _ string, _ int) (context.Context, func()) {
	return ctx, func() {}
}

func (t *NoOpTracer) RecordError(context.Context, string, error) {}
func (t *NoOpTracer) RecordEvent(context.Context, string, map[string]interface{}) {}
