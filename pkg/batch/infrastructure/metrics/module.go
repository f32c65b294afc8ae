// Package metrics provides the Prometheus and OpenTelemetry backends of the metric recorder
// and tracer ports, selected by the observability section of the configuration.
package metrics

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/fx"

	config "github.com/tigerroll/customer-batch/pkg/batch/core/config"
	metrics "github.com/tigerroll/customer-batch/pkg/batch/core/metrics"
	logger "github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

const instrumentationName = "github.com/tigerroll/customer-batch"

// NewMetricRecorder returns the recorder named by observability.metrics.exporter:
// "none", "prometheus" or "otlp". An OTLP meter provider is shut down, and flushed, on stop.
func NewMetricRecorder(lc fx.Lifecycle, cfg *config.Config) (metrics.MetricRecorder, error) {
	mc := cfg.Observability.Metrics
	switch strings.ToLower(mc.Exporter) {
	case "", "none":
		return metrics.NewNoOpMetricRecorder(), nil
	case "prometheus":
		logger.Infof("Metrics: Prometheus recorder enabled (pushgateway: %q).", mc.PushgatewayURL)
		return NewPrometheusRecorder(cfg.Batch.JobName, mc.PushgatewayURL), nil
	case "otlp":
		mp, err := NewMeterProvider(context.Background(), mc, cfg.Observability.Tracing.ServiceName)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{OnStop: mp.Shutdown})
		logger.Infof("Metrics: OTLP recorder enabled (%s, endpoint %q).", mc.Protocol, mc.Endpoint)
		return NewOTelMetricRecorder(mp.Meter(instrumentationName), cfg.Batch.JobName)
	default:
		return nil, fmt.Errorf("unsupported metrics exporter: %s", mc.Exporter)
	}
}

// NewTracer returns the tracer named by observability.tracing.exporter: "none" or "otlp".
func NewTracer(lc fx.Lifecycle, cfg *config.Config) (metrics.Tracer, error) {
	tc := cfg.Observability.Tracing
	switch strings.ToLower(tc.Exporter) {
	case "", "none":
		return metrics.NewNoOpTracer(), nil
	case "otlp":
		tp, err := NewTracerProvider(context.Background(), tc)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{OnStop: tp.Shutdown})
		logger.Infof("Tracing: OTLP exporter enabled (%s, endpoint %q).", tc.Protocol, tc.Endpoint)
		return NewOpenTelemetryTracer(tp.Tracer(instrumentationName)), nil
	default:
		return nil, fmt.Errorf("unsupported tracing exporter: %s", tc.Exporter)
	}
}

// Module provides metrics.MetricRecorder and metrics.Tracer.
var Module = fx.Module("metrics",
	fx.Provide(NewMetricRecorder, NewTracer),
)
