package runner

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/customer-batch/pkg/batch/core/application/port"
	repository "github.com/tigerroll/customer-batch/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/customer-batch/pkg/batch/core/metrics"
)

// SimpleJobRunnerParams defines dependencies for SimpleJobRunner.
type SimpleJobRunnerParams struct {
	fx.In
	Repository repository.ExecutionRepository
	Recorder   metrics.MetricRecorder
	Tracer     metrics.Tracer
	Listeners  []port.JobExecutionListener `group:"job_listeners"`
}

// NewJobRunner provides the SimpleJobRunner.
func NewJobRunner(p SimpleJobRunnerParams) *SimpleJobRunner {
	return NewSimpleJobRunner(p.Repository, p.Recorder, p.Tracer, p.Listeners...)
}

// Module provides the SimpleJobRunner.
var Module = fx.Module("job_runner",
	fx.Provide(NewJobRunner),
)
