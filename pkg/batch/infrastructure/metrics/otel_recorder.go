package metrics

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/customer-batch/pkg/batch/core/metrics"
)

// OTelMetricRecorder records the batch metrics as OpenTelemetry instruments. The exporter is
// configured on the MeterProvider the meter comes from.
type OTelMetricRecorder struct {
	jobName string

	jobs         metric.Int64Counter
	jobDuration  metric.Float64Histogram
	steps        metric.Int64Counter
	stepDuration metric.Float64Histogram
	reads        metric.Int64Counter
	writes       metric.Int64Counter
	filters      metric.Int64Counter
	skips        metric.Int64Counter
	retries      metric.Int64Counter
	commits      metric.Int64Counter
	rollbacks    metric.Int64Counter
}

// NewOTelMetricRecorder creates the instruments on meter.
func NewOTelMetricRecorder(meter metric.Meter, jobName string) (*OTelMetricRecorder, error) {
	r := &OTelMetricRecorder{jobName: jobName}
	var errs []error
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		errs = append(errs, err)
		return c
	}
	histogram := func(name, desc string) metric.Float64Histogram {
		h, err := meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("s"))
		errs = append(errs, err)
		return h
	}

	r.jobs = counter("batch.job.executions", "Job executions by phase.")
	r.jobDuration = histogram("batch.job.duration", "Duration of job executions.")
	r.steps = counter("batch.step.executions", "Step executions by phase.")
	r.stepDuration = histogram("batch.step.duration", "Duration of step executions.")
	r.reads = counter("batch.step.reads", "Records mapped.")
	r.writes = counter("batch.step.writes", "Items written in committed chunks.")
	r.filters = counter("batch.step.filters", "Items filtered by the processor.")
	r.skips = counter("batch.item.skips", "Records skipped.")
	r.retries = counter("batch.item.retries", "Write retries.")
	r.commits = counter("batch.chunk.commits", "Chunk commits.")
	r.rollbacks = counter("batch.chunk.rollbacks", "Chunk rollbacks.")
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *OTelMetricRecorder) attrs(kv ...attribute.KeyValue) metric.MeasurementOption {
	return metric.WithAttributes(append([]attribute.KeyValue{attribute.String("job_name", r.jobName)}, kv...)...)
}

func step(name string) attribute.KeyValue {
	return attribute.String("step_name", name)
}

func (r *OTelMetricRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {}

func (r *OTelMetricRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	phase := attribute.String("phase", string(execution.Phase()))
	r.jobs.Add(ctx, 1, r.attrs(phase))
	r.jobDuration.Record(ctx, execution.State.Duration().Seconds(), r.attrs(phase))
}

func (r *OTelMetricRecorder) RecordStepStart(ctx context.Context, state *model.ExecutionState) {}

func (r *OTelMetricRecorder) RecordStepEnd(ctx context.Context, state *model.ExecutionState) {
	phase := attribute.String("phase", string(state.Phase))
	r.steps.Add(ctx, 1, r.attrs(step(state.Name), phase))
	r.stepDuration.Record(ctx, state.Duration().Seconds(), r.attrs(step(state.Name), phase))
}

func (r *OTelMetricRecorder) RecordItemRead(ctx context.Context, stepName string) {
	r.reads.Add(ctx, 1, r.attrs(step(stepName)))
}

func (r *OTelMetricRecorder) RecordItemFilter(ctx context.Context, stepName string) {
	r.filters.Add(ctx, 1, r.attrs(step(stepName)))
}

func (r *OTelMetricRecorder) RecordItemSkip(ctx context.Context, stepName string, reason string) {
	r.skips.Add(ctx, 1, r.attrs(step(stepName), attribute.String("reason", reason)))
}

func (r *OTelMetricRecorder) RecordItemRetry(ctx context.Context, stepName string, reason string) {
	r.retries.Add(ctx, 1, r.attrs(step(stepName), attribute.String("reason", reason)))
}

func (r *OTelMetricRecorder) RecordChunkCommit(ctx context.Context, stepName string, count int) {
	r.commits.Add(ctx, 1, r.attrs(step(stepName)))
	r.writes.Add(ctx, int64(count), r.attrs(step(stepName)))
}

func (r *OTelMetricRecorder) RecordChunkRollback(ctx context.Context, stepName string, count int) {
	r.rollbacks.Add(ctx, 1, r.attrs(step(stepName)))
}

var _ metrics.MetricRecorder = (*OTelMetricRecorder)(nil)
