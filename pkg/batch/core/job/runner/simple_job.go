package runner

import (
	port "github.com/tigerroll/customer-batch/pkg/batch/core/application/port"
)

// SimpleJob runs its steps in order.
type SimpleJob struct {
	name  string
	steps []port.Step
}

// NewSimpleJob returns a job made of steps.
func NewSimpleJob(name string, steps ...port.Step) *SimpleJob {
	return &SimpleJob{name: name, steps: steps}
}

// Name implements port.Job. It is the name job executions are recorded under.
func (j *SimpleJob) Name() string { return j.name }

// Steps implements port.Job. The runner executes them in this order.
func (j *SimpleJob) Steps() []port.Step { return j.steps }

var _ port.Job = (*SimpleJob)(nil)
