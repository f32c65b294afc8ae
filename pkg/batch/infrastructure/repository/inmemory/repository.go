// Package inmemory keeps execution state in process memory for the lifetime of a run.
package inmemory

import (
	"context"
	"sync"

	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	"github.com/tigerroll/customer-batch/pkg/batch/core/domain/repository"
)

// InMemoryExecutionRepository implements repository.ExecutionRepository with maps.
type InMemoryExecutionRepository struct {
	mu             sync.RWMutex
	jobExecutions  map[string]*model.JobExecution
	stepExecutions map[string]model.ExecutionState
	latestByName   map[string]string
}

// NewInMemoryExecutionRepository returns an empty repository.
func NewInMemoryExecutionRepository() *InMemoryExecutionRepository {
	return &InMemoryExecutionRepository{
		jobExecutions:  make(map[string]*model.JobExecution),
		stepExecutions: make(map[string]model.ExecutionState),
		latestByName:   make(map[string]string),
	}
}

// SaveJobExecution stores execution, replacing any previous entry with the same ID.
func (r *InMemoryExecutionRepository) SaveJobExecution(ctx context.Context, execution *model.JobExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobExecutions[execution.ID] = execution
	return nil
}

// FindJobExecution returns the stored execution or repository.ErrJobExecutionNotFound.
func (r *InMemoryExecutionRepository) FindJobExecution(ctx context.Context, id string) (*model.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	je, ok := r.jobExecutions[id]
	if !ok {
		return nil, repository.ErrJobExecutionNotFound
	}
	return je, nil
}

// UpdateStepExecution stores a snapshot of a step.
func (r *InMemoryExecutionRepository) UpdateStepExecution(ctx context.Context, state model.ExecutionState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stepExecutions[state.ID] = state.Snapshot()
	r.latestByName[state.Name] = state.ID
	return nil
}

// FindStepExecution returns the snapshot stored under id.
func (r *InMemoryExecutionRepository) FindStepExecution(ctx context.Context, id string) (model.ExecutionState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.stepExecutions[id]
	if !ok {
		return model.ExecutionState{}, repository.ErrStepExecutionNotFound
	}
	return state.Snapshot(), nil
}

// LatestStepExecution returns the last snapshot stored for stepName.
func (r *InMemoryExecutionRepository) LatestStepExecution(ctx context.Context, stepName string) (model.ExecutionState, error) {
	r.mu.RLock()
	id, ok := r.latestByName[stepName]
	r.mu.RUnlock()
	if !ok {
		return model.ExecutionState{}, repository.ErrStepExecutionNotFound
	}
	return r.FindStepExecution(ctx, id)
}

var _ repository.ExecutionRepository = (*InMemoryExecutionRepository)(nil)
