// Package port defines the contracts between the chunk engine and its collaborators:
// the record source, the record mapper, the item processor, the item writer, steps, jobs
// and execution listeners.
package port

import (
	"context"
	"errors"

	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	tx "github.com/tigerroll/customer-batch/pkg/batch/core/tx"
)

// ErrEndOfStream is returned by RecordSource.Next once the input is exhausted.
var ErrEndOfStream = errors.New("end of stream")

// ErrSkipItem is returned by ItemProcessor.Process to drop an item from the chunk's write set.
// The item still counts as read.
var ErrSkipItem = errors.New("skip item")

// RecordSource produces a lazy, finite sequence of raw records.
type RecordSource interface {
	// Open prepares the source for reading. Header lines are skipped, then resumeOffset data
	// records are discarded so that reading continues after a previous run's last commit.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//   resumeOffset: Number of data records already consumed by a previous run.
	//
	// Returns:
	//   error: A *exception.SourceError if the input cannot be opened.
	Open(ctx context.Context, resumeOffset int) error
	// Next returns the next record.
	//
	// Returns:
	//   model.RawRecord: The record and its 1-based line number.
	//   error: ErrEndOfStream at the end of input, a *exception.SourceError on I/O failure,
	//          or a *exception.MappingError when a single line cannot be tokenized.
	Next(ctx context.Context) (model.RawRecord, error)
	// Close releases the input. The source cannot be read again afterwards.
	Close() error
}

// RecordMapper converts a raw record into a domain object.
type RecordMapper[T any] interface {
	// Map binds the record's fields to a new T by position.
	//
	// Parameters:
	//   record: The raw record to convert.
	//
	// Returns:
	//   T: The mapped object.
	//   error: A *exception.MappingError when the record cannot be converted.
	Map(record model.RawRecord) (T, error)
}

// ItemProcessor transforms one item. Implementations must be free of I/O and shared mutable
// state: the engine may call Process for several items of one chunk concurrently.
type ItemProcessor[I, O any] interface {
	// Process transforms item.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//   item: The item to transform.
	//
	// Returns:
	//   O: The transformed item.
	//   error: ErrSkipItem to filter the item out, or any other error to fail the step.
	Process(ctx context.Context, item I) (O, error)
}

// ItemWriter persists one chunk of items inside the transaction opened for that chunk.
type ItemWriter[I any] interface {
	// Open acquires resources before the first chunk.
	Open(ctx context.Context) error
	// Write persists items. Either all items become visible on commit or none do.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//   tx: The chunk's transaction. It is committed or rolled back by the caller.
	//   items: The chunk, 0 < len(items) <= chunk size.
	//
	// Returns:
	//   error: A *exception.WriteError describing the failure.
	Write(ctx context.Context, tx tx.Tx, items []I) error
	// Close releases resources after the last chunk.
	Close(ctx context.Context) error
}

// Step is one unit of work of a job.
type Step interface {
	// Name returns the step name.
	Name() string
	// Execute runs the step to a terminal phase.
	//
	// Returns:
	//   *model.ExecutionState: The final state of the step, never nil.
	//   error: The error that made the step FAILED, or nil.
	Execute(ctx context.Context) (*model.ExecutionState, error)
}

// Job is an ordered list of steps.
type Job interface {
	Name() string
	Steps() []Step
}

// JobExecutionListener is notified around a job run.
type JobExecutionListener interface {
	BeforeJob(ctx context.Context, jobExecution *model.JobExecution)
	AfterJob(ctx context.Context, jobExecution *model.JobExecution)
}

// StepExecutionListener is notified around a step run.
type StepExecutionListener interface {
	BeforeStep(ctx context.Context, state *model.ExecutionState)
	AfterStep(ctx context.Context, state *model.ExecutionState)
}

// ChunkListener is notified around every chunk transaction.
type ChunkListener interface {
	BeforeChunk(ctx context.Context, state *model.ExecutionState)
	// AfterChunk is called after a successful commit.
	AfterChunk(ctx context.Context, state *model.ExecutionState)
	// AfterChunkError is called after the chunk was rolled back.
	AfterChunkError(ctx context.Context, state *model.ExecutionState, err error)
}

// SkipListener is notified about items that do not reach the writer.
type SkipListener interface {
	// OnSkipInRead is called for a record rejected by the source or the mapper and absorbed
	// by the skip policy. err is usually a *exception.MappingError.
	OnSkipInRead(ctx context.Context, err error)
	// OnFilter is called for an item the processor filtered out.
	OnFilter(ctx context.Context, item interface{})
}

// StepListeners groups the listeners a chunk step notifies.
type StepListeners struct {
	Step  []StepExecutionListener
	Chunk []ChunkListener
	Skip  []SkipListener
}
