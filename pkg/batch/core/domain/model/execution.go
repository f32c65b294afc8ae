// Package model contains the execution domain model: raw records, phases and execution state.
package model

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

// Phase is the lifecycle phase of a step or job execution.
type Phase string

const (
	PhaseStarting  Phase = "STARTING"
	PhaseRunning   Phase = "RUNNING"
	PhaseCompleted Phase = "COMPLETED"
	PhaseFailed    Phase = "FAILED"
	PhaseStopped   Phase = "STOPPED"
)

// Process exit codes for the terminal phases.
const (
	ExitCodeCompleted = 0
	ExitCodeFailed    = 1
	ExitCodeStopped   = 2
)

// IsFinished reports whether p is terminal.
func (p Phase) IsFinished() bool {
	return p == PhaseCompleted || p == PhaseFailed || p == PhaseStopped
}

// ExitCode maps a phase to the process exit code. Anything but COMPLETED is non-zero.
func (p Phase) ExitCode() int {
	switch p {
	case PhaseCompleted:
		return ExitCodeCompleted
	case PhaseStopped:
		return ExitCodeStopped
	default:
		return ExitCodeFailed
	}
}

func isValidTransition(from, to Phase) bool {
	switch from {
	case PhaseStarting:
		return to == PhaseRunning || to == PhaseFailed || to == PhaseStopped
	case PhaseRunning:
		return to == PhaseCompleted || to == PhaseFailed || to == PhaseStopped
	default:
		return false
	}
}

// NewID returns a new execution identifier.
func NewID() string {
	return uuid.New().String()
}

// ExecutionState is the progress of one step execution, or the aggregate of a job's steps.
// It is mutated only by the component that owns the execution.
type ExecutionState struct {
	ID    string
	Name  string
	Phase Phase

	ReadCount     int // mapped records, filtered ones included
	WriteCount    int // items in committed chunks
	FilterCount   int // items the processor dropped
	SkipCount     int // FilterCount plus mapping errors absorbed by the skip policy
	FailedCount   int // items lost to rolled-back chunks or fatal mapping errors
	CommitCount   int
	RollbackCount int
	// Offset is the number of data records consumed through the last committed chunk,
	// counted from the first data line after the header. Feed it back as the resume offset.
	Offset int

	StartTime   time.Time
	EndTime     time.Time
	LastUpdated time.Time
	Failures    []error
}

// NewExecutionState returns a STARTING state with a fresh ID.
func NewExecutionState(name string) *ExecutionState {
	now := time.Now()
	return &ExecutionState{
		ID:          NewID(),
		Name:        name,
		Phase:       PhaseStarting,
		LastUpdated: now,
	}
}

// TransitionTo moves the state to next, rejecting transitions out of terminal phases.
func (s *ExecutionState) TransitionTo(next Phase) error {
	if !isValidTransition(s.Phase, next) {
		return fmt.Errorf("execution %s (%s): invalid phase transition %s -> %s", s.Name, s.ID, s.Phase, next)
	}
	s.Phase = next
	s.LastUpdated = time.Now()
	return nil
}

func (s *ExecutionState) mark(next Phase) {
	if err := s.TransitionTo(next); err != nil {
		logger.Warnf("%v", err)
		return
	}
	if next.IsFinished() {
		s.EndTime = s.LastUpdated
	}
}

// MarkAsRunning moves the state to RUNNING and records the start time.
func (s *ExecutionState) MarkAsRunning() {
	s.mark(PhaseRunning)
	s.StartTime = s.LastUpdated
}

// MarkAsCompleted moves the state to COMPLETED.
func (s *ExecutionState) MarkAsCompleted() {
	s.mark(PhaseCompleted)
}

// MarkAsFailed moves the state to FAILED and records err.
func (s *ExecutionState) MarkAsFailed(err error) {
	s.mark(PhaseFailed)
	s.AddFailure(err)
}

// MarkAsStopped moves the state to STOPPED.
func (s *ExecutionState) MarkAsStopped() {
	s.mark(PhaseStopped)
}

// AddFailure records err unless it is nil or already recorded.
func (s *ExecutionState) AddFailure(err error) {
	if err == nil {
		return
	}
	if reflect.TypeOf(err).Comparable() {
		for _, existing := range s.Failures {
			if existing == err {
				return
			}
		}
	}
	s.Failures = append(s.Failures, err)
}

// Err joins the recorded failures, or returns nil.
func (s *ExecutionState) Err() error {
	return errors.Join(s.Failures...)
}

// ExitCode is Phase.ExitCode.
func (s *ExecutionState) ExitCode() int {
	return s.Phase.ExitCode()
}

// Duration is the elapsed time between start and end (or now, while running).
func (s *ExecutionState) Duration() time.Duration {
	if s.StartTime.IsZero() {
		return 0
	}
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// Snapshot returns a copy that shares nothing mutable with s.
func (s *ExecutionState) Snapshot() ExecutionState {
	cp := *s
	cp.Failures = append([]error(nil), s.Failures...)
	return cp
}

// AddCounts adds the counters of other to s. Phase and times are left alone.
func (s *ExecutionState) AddCounts(other *ExecutionState) {
	s.ReadCount += other.ReadCount
	s.WriteCount += other.WriteCount
	s.FilterCount += other.FilterCount
	s.SkipCount += other.SkipCount
	s.FailedCount += other.FailedCount
	s.CommitCount += other.CommitCount
	s.RollbackCount += other.RollbackCount
	s.Offset += other.Offset
}

func (s *ExecutionState) String() string {
	return fmt.Sprintf("%s[%s] read=%d written=%d filtered=%d skipped=%d failed=%d commits=%d rollbacks=%d offset=%d",
		s.Name, s.Phase, s.ReadCount, s.WriteCount, s.FilterCount, s.SkipCount, s.FailedCount,
		s.CommitCount, s.RollbackCount, s.Offset)
}

// JobExecution is one run of a job: the per-step states plus their aggregate.
type JobExecution struct {
	ID             string
	JobName        string
	State          *ExecutionState
	StepExecutions []*ExecutionState
	CreateTime     time.Time
}

// NewJobExecution returns a JobExecution in STARTING phase.
func NewJobExecution(jobName string) *JobExecution {
	state := NewExecutionState(jobName)
	return &JobExecution{
		ID:         state.ID,
		JobName:    jobName,
		State:      state,
		CreateTime: state.LastUpdated,
	}
}

// AddStepExecution appends a finished step state and folds its counters into the job state.
func (je *JobExecution) AddStepExecution(step *ExecutionState) {
	je.StepExecutions = append(je.StepExecutions, step)
	je.State.AddCounts(step)
	for _, f := range step.Failures {
		je.State.AddFailure(f)
	}
}

// Phase returns the job phase.
func (je *JobExecution) Phase() Phase {
	return je.State.Phase
}
