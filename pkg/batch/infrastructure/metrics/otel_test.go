package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/fx/fxtest"

	config "github.com/tigerroll/customer-batch/pkg/batch/core/config"
	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	coremetrics "github.com/tigerroll/customer-batch/pkg/batch/core/metrics"
)

func TestOpenTelemetryTracer_SpanHierarchy(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	tracer := NewOpenTelemetryTracer(tp.Tracer("test"))

	je := model.NewJobExecution("myjob")
	state := model.NewExecutionState("customerStep")

	ctx, endJob := tracer.StartJobSpan(context.Background(), je)
	stepCtx, endStep := tracer.StartStepSpan(ctx, state)
	chunkCtx, endChunk := tracer.StartChunkSpan(stepCtx, "customerStep", 1)
	tracer.RecordEvent(chunkCtx, "chunk.committed", map[string]interface{}{"items": 2, "table": "customers"})
	endChunk()
	tracer.RecordError(stepCtx, "customerStep", errors.New("write failed"))
	endStep()
	endJob()

	spans := sr.Ended()
	require.Len(t, spans, 3)
	chunk, step, job := spans[0], spans[1], spans[2]
	assert.Equal(t, "chunk", chunk.Name())
	assert.Equal(t, "step customerStep", step.Name())
	assert.Equal(t, "job myjob", job.Name())
	assert.Equal(t, step.SpanContext().SpanID(), chunk.Parent().SpanID())
	assert.Equal(t, job.SpanContext().SpanID(), step.Parent().SpanID())

	require.Len(t, chunk.Events(), 1)
	assert.Contains(t, chunk.Events()[0].Attributes, attribute.Int("items", 2))
	assert.Equal(t, codes.Error, step.Status().Code)
	assert.Equal(t, "write failed", step.Status().Description)
}

func sumOf(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, name)
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	t.Fatalf("metric %s not collected", name)
	return 0
}

func TestOTelMetricRecorder(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	r, err := NewOTelMetricRecorder(mp.Meter("test"), "myjob")
	require.NoError(t, err)

	r.RecordItemRead(ctx, "customerStep")
	r.RecordItemRead(ctx, "customerStep")
	r.RecordItemFilter(ctx, "customerStep")
	r.RecordItemSkip(ctx, "customerStep", "mapping")
	r.RecordChunkCommit(ctx, "customerStep", 2)
	r.RecordChunkRollback(ctx, "customerStep", 3)
	state := model.NewExecutionState("customerStep")
	state.MarkAsRunning()
	state.MarkAsCompleted()
	r.RecordStepEnd(ctx, state)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	assert.Equal(t, int64(2), sumOf(t, rm, "batch.step.reads"))
	assert.Equal(t, int64(1), sumOf(t, rm, "batch.step.filters"))
	assert.Equal(t, int64(1), sumOf(t, rm, "batch.item.skips"))
	assert.Equal(t, int64(1), sumOf(t, rm, "batch.chunk.commits"))
	assert.Equal(t, int64(2), sumOf(t, rm, "batch.step.writes"))
	assert.Equal(t, int64(1), sumOf(t, rm, "batch.chunk.rollbacks"))
	assert.Equal(t, int64(1), sumOf(t, rm, "batch.step.executions"))
}

func TestNewMetricRecorder_SelectsBackend(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	cfg := config.NewConfig()

	rec, err := NewMetricRecorder(lc, cfg)
	require.NoError(t, err)
	assert.IsType(t, &coremetrics.NoOpMetricRecorder{}, rec)

	cfg.Observability.Metrics.Exporter = "prometheus"
	rec, err = NewMetricRecorder(lc, cfg)
	require.NoError(t, err)
	assert.IsType(t, &PrometheusRecorder{}, rec)

	cfg.Observability.Metrics.Exporter = "statsd"
	_, err = NewMetricRecorder(lc, cfg)
	assert.ErrorContains(t, err, "unsupported metrics exporter")
}

func TestNewTracer_SelectsBackend(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	cfg := config.NewConfig()

	tr, err := NewTracer(lc, cfg)
	require.NoError(t, err)
	assert.IsType(t, &coremetrics.NoOpTracer{}, tr)

	cfg.Observability.Tracing.Exporter = "otlp"
	cfg.Observability.Tracing.Protocol = "http"
	cfg.Observability.Tracing.Endpoint = "localhost:4318"
	cfg.Observability.Tracing.Insecure = true
	tr, err = NewTracer(lc, cfg)
	require.NoError(t, err)
	assert.IsType(t, &OpenTelemetryTracer{}, tr)

	cfg.Observability.Tracing.Protocol = "thrift"
	_, err = NewTracer(lc, cfg)
	assert.ErrorContains(t, err, "unsupported OTLP protocol")
}
