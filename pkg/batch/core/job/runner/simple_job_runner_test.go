package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	"github.com/tigerroll/customer-batch/pkg/batch/infrastructure/repository/inmemory"
)

type fakeStep struct {
	name     string
	phase    model.Phase
	err      error
	written  int
	executed bool
	onRun    func()
}

func (s *fakeStep) Name() string { return s.name }

func (s *fakeStep) Execute(ctx context.Context) (*model.ExecutionState, error) {
	s.executed = true
	if s.onRun != nil {
		s.onRun()
	}
	state := model.NewExecutionState(s.name)
	state.MarkAsRunning()
	state.ReadCount = s.written
	state.WriteCount = s.written
	switch s.phase {
	case model.PhaseFailed:
		state.MarkAsFailed(s.err)
		return state, s.err
	case model.PhaseStopped:
		state.MarkAsStopped()
	default:
		state.MarkAsCompleted()
	}
	return state, nil
}

type recordingJobListener struct {
	events []string
}

func (l *recordingJobListener) BeforeJob(_ context.Context, je *model.JobExecution) {
	l.events = append(l.events, "before:"+string(je.Phase()))
}

func (l *recordingJobListener) AfterJob(_ context.Context, je *model.JobExecution) {
	l.events = append(l.events, "after:"+string(je.Phase()))
}

func TestSimpleJobRunner_AllStepsComplete(t *testing.T) {
	repo := inmemory.NewInMemoryExecutionRepository()
	listener := &recordingJobListener{}
	r := NewSimpleJobRunner(repo, nil, nil, listener)
	s1 := &fakeStep{name: "load", written: 5}
	s2 := &fakeStep{name: "report", written: 2}

	je := r.Run(context.Background(), NewSimpleJob("myjob", s1, s2))

	assert.Equal(t, model.PhaseCompleted, je.Phase())
	assert.Equal(t, 0, je.State.ExitCode())
	assert.Equal(t, 7, je.State.WriteCount)
	assert.Len(t, je.StepExecutions, 2)
	assert.Equal(t, []string{"before:RUNNING", "after:COMPLETED"}, listener.events)

	saved, err := repo.FindJobExecution(context.Background(), je.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseCompleted, saved.Phase())
}

func TestSimpleJobRunner_FailedStepStopsTheJob(t *testing.T) {
	boom := errors.New("write failed")
	s1 := &fakeStep{name: "load", phase: model.PhaseFailed, err: boom}
	s2 := &fakeStep{name: "report"}

	je := NewSimpleJobRunner(nil, nil, nil).Run(context.Background(), NewSimpleJob("myjob", s1, s2))

	assert.Equal(t, model.PhaseFailed, je.Phase())
	assert.Equal(t, 1, je.State.ExitCode())
	assert.False(t, s2.executed)
	assert.ErrorIs(t, je.State.Err(), boom)
	assert.Len(t, je.StepExecutions, 1)
}

func TestSimpleJobRunner_StoppedStep(t *testing.T) {
	s1 := &fakeStep{name: "load", phase: model.PhaseStopped}
	s2 := &fakeStep{name: "report"}

	je := NewSimpleJobRunner(nil, nil, nil).Run(context.Background(), NewSimpleJob("myjob", s1, s2))

	assert.Equal(t, model.PhaseStopped, je.Phase())
	assert.Equal(t, 2, je.State.ExitCode())
	assert.False(t, s2.executed)
}

func TestSimpleJobRunner_CancelledBetweenSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s1 := &fakeStep{name: "load", onRun: cancel}
	s2 := &fakeStep{name: "report"}

	je := NewSimpleJobRunner(nil, nil, nil).Run(ctx, NewSimpleJob("myjob", s1, s2))

	assert.Equal(t, model.PhaseStopped, je.Phase())
	assert.True(t, s1.executed)
	assert.False(t, s2.executed)
}

func TestSimpleJobRunner_EmptyJobCompletes(t *testing.T) {
	je := NewSimpleJobRunner(nil, nil, nil).Run(context.Background(), NewSimpleJob("empty"))

	assert.Equal(t, model.PhaseCompleted, je.Phase())
	assert.Zero(t, je.State.ReadCount)
}
