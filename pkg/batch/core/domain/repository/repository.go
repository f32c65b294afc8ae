// Package repository defines where execution state is kept while a job runs.
package repository

import (
	"context"
	"errors"

	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
)

var (
	ErrJobExecutionNotFound  = errors.New("job execution not found")
	ErrStepExecutionNotFound = errors.New("step execution not found")
)

// ExecutionRepository stores job executions and step state snapshots.
type ExecutionRepository interface {
	SaveJobExecution(ctx context.Context, execution *model.JobExecution) error
	FindJobExecution(ctx context.Context, id string) (*model.JobExecution, error)
	// UpdateStepExecution stores the latest snapshot of a step, keyed by its ID.
	UpdateStepExecution(ctx context.Context, state model.ExecutionState) error
	FindStepExecution(ctx context.Context, id string) (model.ExecutionState, error)
	// LatestStepExecution returns the most recently updated snapshot of the named step.
	LatestStepExecution(ctx context.Context, stepName string) (model.ExecutionState, error)
}
