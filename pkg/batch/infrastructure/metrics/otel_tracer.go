package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/customer-batch/pkg/batch/core/metrics"
)

// OpenTelemetryTracer is an implementation of metrics.Tracer using OpenTelemetry.
// Chunk spans are children of the step span, which is a child of the job span.
type OpenTelemetryTracer struct {
	tracer trace.Tracer
}

// NewOpenTelemetryTracer returns a Tracer that opens its spans on tracer.
func NewOpenTelemetryTracer(tracer trace.Tracer) *OpenTelemetryTracer {
	return &OpenTelemetryTracer{tracer: tracer}
}

func (t *OpenTelemetryTracer) StartJobSpan(ctx context.Context, execution *model.JobExecution) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "job "+execution.JobName, trace.WithAttributes(
		attribute.String("batch.job.name", execution.JobName),
		attribute.String("batch.job.execution_id", execution.ID),
	))
	return ctx, func() {
		span.SetAttributes(attribute.String("batch.phase", string(execution.Phase())))
		if execution.Phase() == model.PhaseFailed {
			span.SetStatus(codes.Error, "job failed")
		}
		span.End()
	}
}

func (t *OpenTelemetryTracer) StartStepSpan(ctx context.Context, state *model.ExecutionState) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "step "+state.Name, trace.WithAttributes(
		attribute.String("batch.step.name", state.Name),
		attribute.String("batch.step.execution_id", state.ID),
	))
	return ctx, func() {
		span.SetAttributes(
			attribute.String("batch.phase", string(state.Phase)),
			attribute.Int("batch.read_count", state.ReadCount),
			attribute.Int("batch.write_count", state.WriteCount),
			attribute.Int("batch.skip_count", state.SkipCount),
			attribute.Int("batch.commit_count", state.CommitCount),
			attribute.Int("batch.rollback_count", state.RollbackCount),
		)
		span.End()
	}
}

func (t *OpenTelemetryTracer) StartChunkSpan(ctx context.Context, stepName string, chunk int) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "chunk", trace.WithAttributes(
		attribute.String("batch.step.name", stepName),
		attribute.Int("batch.chunk.number", chunk),
	))
	return ctx, func() { span.End() }
}

// RecordError marks the span in ctx as failed.
func (t *OpenTelemetryTracer) RecordError(ctx context.Context, module string, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err, trace.WithAttributes(attribute.String("batch.module", module)))
	span.SetStatus(codes.Error, err.Error())
}

func (t *OpenTelemetryTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	attrs := make([]attribute.KeyValue, 0, len(attributes))
	for k, v := range attributes {
		switch val := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		case float64:
			attrs = append(attrs, attribute.Float64(k, val))
		default:
			attrs = append(attrs, attribute.String(k, fmt.Sprint(val)))
		}
	}
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

var _ metrics.Tracer = (*OpenTelemetryTracer)(nil)
