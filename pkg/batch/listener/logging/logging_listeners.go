// Package logging provides listeners that narrate a job run through the batch logger.
package logging

import (
	"context"
	"errors"
	"strings"

	port "github.com/tigerroll/customer-batch/pkg/batch/core/application/port"
	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

var (
	_ port.JobExecutionListener  = (*LoggingJobListener)(nil)
	_ port.StepExecutionListener = (*LoggingStepListener)(nil)
	_ port.ChunkListener         = (*LoggingChunkListener)(nil)
	_ port.SkipListener          = (*LoggingSkipListener)(nil)
)

// LoggingJobListener logs the start and the outcome of a job run.
type LoggingJobListener struct{}

// NewLoggingJobListener returns a LoggingJobListener.
func NewLoggingJobListener() *LoggingJobListener { return &LoggingJobListener{} }

// BeforeJob implements port.JobExecutionListener.
func (l *LoggingJobListener) BeforeJob(_ context.Context, je *model.JobExecution) {
	logger.Infof("Job '%s' starting (execution %s).", je.JobName, je.ID)
}

// AfterJob implements port.JobExecutionListener. It logs the final phase, the elapsed time and the counters.
func (l *LoggingJobListener) AfterJob(_ context.Context, je *model.JobExecution) {
	logger.Infof("Job '%s' finished: %s in %s, %s", je.JobName, je.Phase(), je.State.Duration(), je.State)
}

// LoggingStepListener logs step boundaries, including the offset a restarted step resumes from.
type LoggingStepListener struct{}

// NewLoggingStepListener returns a LoggingStepListener.
func NewLoggingStepListener() *LoggingStepListener { return &LoggingStepListener{} }

// BeforeStep implements port.StepExecutionListener.
func (l *LoggingStepListener) BeforeStep(_ context.Context, state *model.ExecutionState) {
	if state.Offset > 0 {
		logger.Infof("Step '%s' resuming after record %d.", state.Name, state.Offset)
		return
	}
	logger.Infof("Step '%s' starting.", state.Name)
}

// AfterStep implements port.StepExecutionListener. A failed step is logged at ERROR with its cause.
func (l *LoggingStepListener) AfterStep(_ context.Context, state *model.ExecutionState) {
	if state.Phase == model.PhaseFailed {
		logger.Errorf("Step '%s' failed: %s: %v", state.Name, state, state.Err())
		return
	}
	logger.Infof("Step '%s' done: %s", state.Name, state)
}

// LoggingChunkListener reports chunk boundaries at DEBUG and rollbacks at ERROR.
type LoggingChunkListener struct{}

// NewLoggingChunkListener returns a LoggingChunkListener.
func NewLoggingChunkListener() *LoggingChunkListener { return &LoggingChunkListener{} }

// BeforeChunk implements port.ChunkListener.
func (l *LoggingChunkListener) BeforeChunk(_ context.Context, state *model.ExecutionState) {
	logger.Debugf("Step '%s': chunk %d begins at record %d.", state.Name, state.CommitCount+1, state.Offset)
}

// AfterChunk implements port.ChunkListener.
func (l *LoggingChunkListener) AfterChunk(_ context.Context, state *model.ExecutionState) {
	logger.Debugf("Step '%s': committed through record %d (read=%d written=%d skipped=%d).",
		state.Name, state.Offset, state.ReadCount, state.WriteCount, state.SkipCount)
}

// AfterChunkError implements port.ChunkListener.
func (l *LoggingChunkListener) AfterChunkError(_ context.Context, state *model.ExecutionState, err error) {
	logger.Errorf("Step '%s': chunk rolled back (%d rollbacks so far): %v", state.Name, state.RollbackCount, err)
}

// LoggingSkipListener logs skipped and filtered records.
type LoggingSkipListener struct{}

// NewLoggingSkipListener returns a LoggingSkipListener.
func NewLoggingSkipListener() *LoggingSkipListener { return &LoggingSkipListener{} }

// OnSkipInRead implements port.SkipListener. A *exception.MappingError is logged with its line
// number and raw fields.
func (l *LoggingSkipListener) OnSkipInRead(_ context.Context, err error) {
	var me *exception.MappingError
	if errors.As(err, &me) {
		logger.Warnf("Skipped record at line %d [%s]: %v", me.Line, strings.Join(me.RawRecord, ","), me.Cause)
		return
	}
	logger.Warnf("Skipped unreadable record: %v", err)
}

// OnFilter implements port.SkipListener.
func (l *LoggingSkipListener) OnFilter(_ context.Context, item interface{}) {
	logger.Debugf("Filtered by processor: %+v", item)
}
