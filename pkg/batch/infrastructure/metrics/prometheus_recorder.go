package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/push"

	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/customer-batch/pkg/batch/core/metrics"
	logger "github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

// PrometheusRecorder is a Prometheus implementation of metrics.MetricRecorder.
// A batch process usually exits before it can be scraped, so when a Pushgateway URL is set
// the registry is pushed once the job ends.
type PrometheusRecorder struct {
	registry       *prometheus.Registry
	jobName        string
	pushgatewayURL string

	jobDurationSeconds  *prometheus.HistogramVec
	jobStatusCounter    *prometheus.CounterVec
	stepDurationSeconds *prometheus.HistogramVec
	stepStatusCounter   *prometheus.CounterVec
	readCounter         *prometheus.CounterVec
	writeCounter        *prometheus.CounterVec
	filterCounter       *prometheus.CounterVec
	commitCounter       *prometheus.CounterVec
	rollbackCounter     *prometheus.CounterVec
	skipCounter         *prometheus.CounterVec
	retryCounter        *prometheus.CounterVec
}

// NewPrometheusRecorder registers the batch metrics on a fresh registry. Every series carries
// the job_name label jobName.
func NewPrometheusRecorder(jobName, pushgatewayURL string) *PrometheusRecorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		c := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, append([]string{"job_name"}, labels...))
		registry.MustRegister(c)
		return c
	}
	histogram := func(name, help string, labels ...string) *prometheus.HistogramVec {
		h := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: help, Buckets: prometheus.DefBuckets}, append([]string{"job_name"}, labels...))
		registry.MustRegister(h)
		return h
	}

	return &PrometheusRecorder{
		registry:            registry,
		jobName:             jobName,
		pushgatewayURL:      pushgatewayURL,
		jobDurationSeconds:  histogram("batch_job_duration_seconds", "Duration of batch job executions.", "phase"),
		jobStatusCounter:    counter("batch_job_status_total", "Total number of batch job executions by phase.", "phase"),
		stepDurationSeconds: histogram("batch_step_duration_seconds", "Duration of batch step executions.", "step_name", "phase"),
		stepStatusCounter:   counter("batch_step_status_total", "Total number of batch step executions by phase.", "step_name", "phase"),
		readCounter:         counter("batch_step_read_total", "Total records mapped by step.", "step_name"),
		writeCounter:        counter("batch_step_write_total", "Total items written in committed chunks by step.", "step_name"),
		filterCounter:       counter("batch_step_filter_total", "Total items filtered by the processor by step.", "step_name"),
		commitCounter:       counter("batch_step_commit_total", "Total chunk commits by step.", "step_name"),
		rollbackCounter:     counter("batch_step_rollback_total", "Total chunk rollbacks by step.", "step_name"),
		skipCounter:         counter("batch_item_skip_total", "Total records skipped by step and reason.", "step_name", "reason"),
		retryCounter:        counter("batch_item_retry_total", "Total write retries by step and reason.", "step_name", "reason"),
	}
}

// GetRegistry returns the Prometheus registry.
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

func (r *PrometheusRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {
	r.jobStatusCounter.WithLabelValues(r.jobName, string(execution.Phase())).Inc()
	logger.Debugf("Metrics: Job '%s' started.", execution.JobName)
}

// RecordJobEnd observes the job duration and pushes the registry when a Pushgateway is configured.
func (r *PrometheusRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	duration := execution.State.Duration().Seconds()
	r.jobStatusCounter.WithLabelValues(r.jobName, string(execution.Phase())).Inc()
	r.jobDurationSeconds.WithLabelValues(r.jobName, string(execution.Phase())).Observe(duration)
	logger.Debugf("Metrics: Job '%s' ended. Duration: %.3fs", execution.JobName, duration)

	if r.pushgatewayURL != "" {
		if err := r.Push(ctx); err != nil {
			logger.Warnf("Metrics: %v", err)
		}
	}
}

func (r *PrometheusRecorder) RecordStepStart(ctx context.Context, state *model.ExecutionState) {
	r.stepStatusCounter.WithLabelValues(r.jobName, state.Name, string(state.Phase)).Inc()
}

func (r *PrometheusRecorder) RecordStepEnd(ctx context.Context, state *model.ExecutionState) {
	duration := state.Duration().Seconds()
	r.stepStatusCounter.WithLabelValues(r.jobName, state.Name, string(state.Phase)).Inc()
	r.stepDurationSeconds.WithLabelValues(r.jobName, state.Name, string(state.Phase)).Observe(duration)
	logger.Debugf("Metrics: Step '%s' ended. Duration: %.3fs", state.Name, duration)
}

func (r *PrometheusRecorder) RecordItemRead(ctx context.Context, stepName string) {
	r.readCounter.WithLabelValues(r.jobName, stepName).Inc()
}

func (r *PrometheusRecorder) RecordItemFilter(ctx context.Context, stepName string) {
	r.filterCounter.WithLabelValues(r.jobName, stepName).Inc()
}

func (r *PrometheusRecorder) RecordItemSkip(ctx context.Context, stepName string, reason string) {
	r.skipCounter.WithLabelValues(r.jobName, stepName, reason).Inc()
}

func (r *PrometheusRecorder) RecordItemRetry(ctx context.Context, stepName string, reason string) {
	r.retryCounter.WithLabelValues(r.jobName, stepName, reason).Inc()
}

// RecordChunkCommit counts the commit and the count items it made visible.
func (r *PrometheusRecorder) RecordChunkCommit(ctx context.Context, stepName string, count int) {
	r.commitCounter.WithLabelValues(r.jobName, stepName).Inc()
	r.writeCounter.WithLabelValues(r.jobName, stepName).Add(float64(count))
}

func (r *PrometheusRecorder) RecordChunkRollback(ctx context.Context, stepName string, count int) {
	r.rollbackCounter.WithLabelValues(r.jobName, stepName).Inc()
}

// Push replaces the job's metric group on the Pushgateway with the current registry.
func (r *PrometheusRecorder) Push(ctx context.Context) error {
	if err := push.New(r.pushgatewayURL, r.jobName).Gatherer(r.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", r.pushgatewayURL, err)
	}
	logger.Debugf("Metrics: pushed to %s.", r.pushgatewayURL)
	return nil
}

var _ metrics.MetricRecorder = (*PrometheusRecorder)(nil)
