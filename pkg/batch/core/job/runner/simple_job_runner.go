// Package runner executes jobs: their steps run one after another until one of them does
// not complete.
package runner

import (
	"context"
	"errors"
	"fmt"

	port "github.com/tigerroll/customer-batch/pkg/batch/core/application/port"
	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/customer-batch/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/customer-batch/pkg/batch/core/metrics"
	logger "github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

// SimpleJobRunner runs the steps of a job sequentially and aggregates their states into a
// JobExecution.
type SimpleJobRunner struct {
	repo      repository.ExecutionRepository
	recorder  metrics.MetricRecorder
	tracer    metrics.Tracer
	listeners []port.JobExecutionListener
}

// NewSimpleJobRunner returns a runner. A nil recorder or tracer disables that concern.
func NewSimpleJobRunner(
	repo repository.ExecutionRepository,
	recorder metrics.MetricRecorder,
	tracer metrics.Tracer,
	listeners ...port.JobExecutionListener,
) *SimpleJobRunner {
	if recorder == nil {
		recorder = metrics.NewNoOpMetricRecorder()
	}
	if tracer == nil {
		tracer = metrics.NewNoOpTracer()
	}
	return &SimpleJobRunner{repo: repo, recorder: recorder, tracer: tracer, listeners: listeners}
}

// Run executes job and returns its execution in a terminal phase.
//
// A FAILED step fails the job and a STOPPED step stops it; the remaining steps are not run.
// Cancelling ctx before a step starts stops the job. The job completes when every step did.
func (r *SimpleJobRunner) Run(ctx context.Context, job port.Job) *model.JobExecution {
	je := model.NewJobExecution(job.Name())
	ctx, endSpan := r.tracer.StartJobSpan(ctx, je)
	defer endSpan()

	je.State.MarkAsRunning()
	r.save(ctx, je)
	r.recorder.RecordJobStart(ctx, je)
	for _, l := range r.listeners {
		l.BeforeJob(ctx, je)
	}
	logger.Infof("JobRunner: Job '%s' (ID: %s) started with %d step(s).", je.JobName, je.ID, len(job.Steps()))

	r.runSteps(ctx, job, je)

	r.save(context.WithoutCancel(ctx), je)
	for _, l := range r.listeners {
		l.AfterJob(ctx, je)
	}
	r.recorder.RecordJobEnd(ctx, je)
	logger.Infof("JobRunner: Job '%s' (ID: %s) finished: %s", je.JobName, je.ID, je.State)
	return je
}

func (r *SimpleJobRunner) runSteps(ctx context.Context, job port.Job, je *model.JobExecution) {
	for _, step := range job.Steps() {
		if ctx.Err() != nil {
			logger.Warnf("JobRunner: Job '%s' cancelled before step '%s'.", je.JobName, step.Name())
			je.State.MarkAsStopped()
			return
		}

		state, err := step.Execute(ctx)
		if state == nil {
			state = model.NewExecutionState(step.Name())
			state.MarkAsFailed(fmt.Errorf("step '%s' returned no execution state", step.Name()))
		}
		je.AddStepExecution(state)

		switch state.Phase {
		case model.PhaseCompleted:
			continue
		case model.PhaseStopped:
			logger.Warnf("JobRunner: Step '%s' stopped; job '%s' stops.", step.Name(), je.JobName)
			je.State.MarkAsStopped()
			return
		default:
			if err == nil {
				err = state.Err()
			}
			if err == nil {
				err = errors.New("step ended in phase " + string(state.Phase))
			}
			logger.Errorf("JobRunner: Step '%s' failed; remaining steps of job '%s' are skipped: %v", step.Name(), je.JobName, err)
			r.tracer.RecordError(ctx, step.Name(), err)
			je.State.MarkAsFailed(err)
			return
		}
	}
	je.State.MarkAsCompleted()
}

func (r *SimpleJobRunner) save(ctx context.Context, je *model.JobExecution) {
	if r.repo == nil {
		return
	}
	if err := r.repo.SaveJobExecution(ctx, je); err != nil {
		// Bookkeeping only; the job outcome does not depend on it.
		logger.Errorf("JobRunner: Failed to save JobExecution (ID: %s): %v", je.ID, err)
	}
}
