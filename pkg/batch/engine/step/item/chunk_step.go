// Package item implements the chunk-oriented step: records are read, mapped and processed
// until a chunk of chunkSize items is accumulated, then the chunk is written and committed
// in its own transaction.
package item

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	port "github.com/tigerroll/customer-batch/pkg/batch/core/application/port"
	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/customer-batch/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/customer-batch/pkg/batch/core/metrics"
	tx "github.com/tigerroll/customer-batch/pkg/batch/core/tx"
	"github.com/tigerroll/customer-batch/pkg/batch/engine/step/skip"
	exception "github.com/tigerroll/customer-batch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

// errStopped ends the chunk loop when the context is cancelled between chunks.
var errStopped = errors.New("step stopped")

// Options configures a ChunkStep. Zero values of the optional fields select the defaults.
type Options struct {
	ChunkSize int
	// ProcessingWorkers > 1 runs the processor concurrently over the items of a chunk.
	ProcessingWorkers int
	// ResumeOffset is passed to RecordSource.Open.
	ResumeOffset   int
	SkipPolicy     string
	SkipLimit      int
	IsolationLevel string
	Listeners      port.StepListeners
	MetricRecorder metrics.MetricRecorder
	Tracer         metrics.Tracer
	// Repository, when set, receives a snapshot of the step state after every commit.
	Repository repository.ExecutionRepository
}

// ChunkStep drives RecordSource -> RecordMapper -> ItemProcessor -> ItemWriter in chunks.
// I is the mapped item type and O the written item type.
type ChunkStep[I, O any] struct {
	name      string
	source    port.RecordSource
	mapper    port.RecordMapper[I]
	processor port.ItemProcessor[I, O]
	writer    port.ItemWriter[O]
	txManager tx.TransactionManager
	txOptions *sql.TxOptions
	opts      Options
}

var _ port.Step = (*ChunkStep[any, any])(nil)

// NewChunkStep returns a ChunkStep. The options are validated when the step executes.
func NewChunkStep[I, O any](
	name string,
	source port.RecordSource,
	mapper port.RecordMapper[I],
	processor port.ItemProcessor[I, O],
	writer port.ItemWriter[O],
	txManager tx.TransactionManager,
	opts Options,
) *ChunkStep[I, O] {
	if opts.MetricRecorder == nil {
		opts.MetricRecorder = metrics.NewNoOpMetricRecorder()
	}
	if opts.Tracer == nil {
		opts.Tracer = metrics.NewNoOpTracer()
	}
	if opts.ProcessingWorkers < 1 {
		opts.ProcessingWorkers = 1
	}
	return &ChunkStep[I, O]{
		name:      name,
		source:    source,
		mapper:    mapper,
		processor: processor,
		writer:    writer,
		txManager: txManager,
		txOptions: &sql.TxOptions{Isolation: tx.ParseIsolationLevel(opts.IsolationLevel)},
		opts:      opts,
	}
}

// Name implements port.Step.
func (s *ChunkStep[I, O]) Name() string {
	return s.name
}

// chunk holds what one iteration accumulated. Its counters are folded into the step state
// only when the chunk commits, so a failed step reports the totals of the committed chunks.
type chunk[O any] struct {
	number   int
	items    []O
	inFlight int // mapped items not yet processed
	read     int
	filtered int
	skipped  int
	consumed int // source records used, rejected ones included
	eof      bool
}

// lost is the number of items the chunk drops when it fails.
func (c *chunk[O]) lost() int {
	return len(c.items) + c.inFlight
}

// Execute implements port.Step. It always returns a state in a terminal phase.
func (s *ChunkStep[I, O]) Execute(ctx context.Context) (*model.ExecutionState, error) {
	state := model.NewExecutionState(s.name)
	ctx, endSpan := s.opts.Tracer.StartStepSpan(ctx, state)
	defer endSpan()

	logger.Infof("ChunkStep '%s' executing (chunk size %d, workers %d).", s.name, s.opts.ChunkSize, s.opts.ProcessingWorkers)

	policy, err := s.validate()
	if err != nil {
		logger.Errorf("ChunkStep '%s' rejected its configuration: %v", s.name, err)
		s.opts.Tracer.RecordError(ctx, s.name, err)
		state.MarkAsFailed(err)
		return state, err
	}

	state.MarkAsRunning()
	state.Offset = s.opts.ResumeOffset
	s.opts.MetricRecorder.RecordStepStart(ctx, state)
	for _, l := range s.opts.Listeners.Step {
		l.BeforeStep(ctx, state)
	}

	runErr := s.open(ctx)
	if runErr == nil {
		runErr = s.loop(ctx, state, policy)
		if closeErr := s.close(ctx); closeErr != nil && runErr == nil {
			runErr = closeErr
		}
	}

	switch {
	case errors.Is(runErr, errStopped):
		logger.Warnf("ChunkStep '%s' stopped after %d committed chunk(s).", s.name, state.CommitCount)
		state.MarkAsStopped()
		runErr = nil
	case runErr != nil:
		s.opts.Tracer.RecordError(ctx, s.name, runErr)
		state.MarkAsFailed(runErr)
	default:
		state.MarkAsCompleted()
	}
	s.saveState(ctx, state)

	for _, l := range s.opts.Listeners.Step {
		l.AfterStep(ctx, state)
	}
	s.opts.MetricRecorder.RecordStepEnd(ctx, state)
	logger.Infof("ChunkStep '%s' finished: %s", s.name, state)
	return state, runErr
}

func (s *ChunkStep[I, O]) validate() (skip.SkipPolicy, error) {
	if s.opts.ChunkSize <= 0 {
		return nil, exception.NewConfigError("batch.chunk_size", "must be a positive integer, got %d", s.opts.ChunkSize)
	}
	if s.opts.ResumeOffset < 0 {
		return nil, exception.NewConfigError("batch.source.resume_offset", "must not be negative, got %d", s.opts.ResumeOffset)
	}
	if s.source == nil || s.mapper == nil || s.processor == nil || s.writer == nil || s.txManager == nil {
		return nil, exception.NewConfigError(s.name, "source, mapper, processor, writer and transaction manager are required")
	}
	return skip.NewSkipPolicy(s.opts.SkipPolicy, s.opts.SkipLimit)
}

func (s *ChunkStep[I, O]) open(ctx context.Context) error {
	if err := s.source.Open(ctx, s.opts.ResumeOffset); err != nil {
		return err
	}
	if err := s.writer.Open(ctx); err != nil {
		if closeErr := s.source.Close(); closeErr != nil {
			logger.Warnf("ChunkStep '%s': failed to close source after writer open failure: %v", s.name, closeErr)
		}
		return exception.NewBatchError(s.name, "failed to open item writer", err, false, false)
	}
	return nil
}

func (s *ChunkStep[I, O]) close(ctx context.Context) error {
	var result *multierror.Error
	if err := s.source.Close(); err != nil {
		result = multierror.Append(result, exception.NewBatchError(s.name, "failed to close record source", err, false, false))
	}
	if err := s.writer.Close(ctx); err != nil {
		result = multierror.Append(result, exception.NewBatchError(s.name, "failed to close item writer", err, false, false))
	}
	return result.ErrorOrNil()
}

// loop runs chunks until the source is exhausted. Cancellation is honoured only here, between chunks.
func (s *ChunkStep[I, O]) loop(ctx context.Context, state *model.ExecutionState, policy skip.SkipPolicy) error {
	for number := 1; ; number++ {
		select {
		case <-ctx.Done():
			return errStopped
		default:
		}

		eof, err := s.executeChunk(ctx, state, policy, number)
		if err != nil {
			return err
		}
		if eof {
			return nil
		}
	}
}

// executeChunk fills, writes and commits one chunk. The chunk runs to completion under a
// context that ignores cancellation of ctx.
func (s *ChunkStep[I, O]) executeChunk(ctx context.Context, state *model.ExecutionState, policy skip.SkipPolicy, number int) (bool, error) {
	chunkCtx, endSpan := s.opts.Tracer.StartChunkSpan(context.WithoutCancel(ctx), s.name, number)
	defer endSpan()

	c := &chunk[O]{number: number, items: make([]O, 0, s.opts.ChunkSize)}
	for _, l := range s.opts.Listeners.Chunk {
		l.BeforeChunk(chunkCtx, state)
	}

	if err := s.fill(chunkCtx, c, policy); err != nil {
		return false, s.failChunk(chunkCtx, state, c, err)
	}

	if len(c.items) == 0 {
		// only possible at end of input: nothing to write, no transaction needed
		s.fold(state, c)
		for _, l := range s.opts.Listeners.Chunk {
			l.AfterChunk(chunkCtx, state)
		}
		return true, nil
	}

	if err := s.write(chunkCtx, c); err != nil {
		state.RollbackCount++
		s.opts.MetricRecorder.RecordChunkRollback(chunkCtx, s.name, len(c.items))
		return false, s.failChunk(chunkCtx, state, c, err)
	}

	s.fold(state, c)
	state.WriteCount += len(c.items)
	state.CommitCount++
	s.opts.MetricRecorder.RecordChunkCommit(chunkCtx, s.name, len(c.items))
	logger.Debugf("ChunkStep '%s': chunk %d committed (%d item(s)).", s.name, number, len(c.items))
	s.saveState(chunkCtx, state)

	for _, l := range s.opts.Listeners.Chunk {
		l.AfterChunk(chunkCtx, state)
	}
	return c.eof, nil
}

// fill reads and processes records until the chunk holds ChunkSize items or the source ends.
func (s *ChunkStep[I, O]) fill(ctx context.Context, c *chunk[O], policy skip.SkipPolicy) error {
	for len(c.items) < s.opts.ChunkSize && !c.eof {
		batch, err := s.readBatch(ctx, c, policy, s.opts.ChunkSize-len(c.items))
		if err != nil {
			return err
		}
		if err := s.processBatch(ctx, c, batch); err != nil {
			return err
		}
	}
	return nil
}

// readBatch maps up to n records. Record-level failures go through the skip policy.
func (s *ChunkStep[I, O]) readBatch(ctx context.Context, c *chunk[O], policy skip.SkipPolicy, n int) ([]I, error) {
	batch := make([]I, 0, n)
	for len(batch) < n {
		record, err := s.source.Next(ctx)
		if errors.Is(err, port.ErrEndOfStream) {
			c.eof = true
			break
		}
		if err == nil {
			var item I
			item, err = s.mapper.Map(record)
			if err == nil {
				c.consumed++
				c.read++
				c.inFlight++
				s.opts.MetricRecorder.RecordItemRead(ctx, s.name)
				batch = append(batch, item)
				continue
			}
			if !exception.IsMappingError(err) {
				err = exception.NewMappingError(record.Line, record.Fields, err)
			}
		}

		if !skip.IsSkippable(err) {
			return nil, err
		}
		c.consumed++
		if !policy.ShouldSkip(err) {
			return nil, s.skipRefused(policy, err)
		}
		policy.RecordSkip()
		c.skipped++
		logger.Warnf("ChunkStep '%s': record skipped (%d so far): %v", s.name, policy.GetSkipCount(), err)
		s.opts.MetricRecorder.RecordItemSkip(ctx, s.name, "mapping")
		for _, l := range s.opts.Listeners.Skip {
			l.OnSkipInRead(ctx, err)
		}
	}
	return batch, nil
}

func (s *ChunkStep[I, O]) skipRefused(policy skip.SkipPolicy, err error) error {
	if policy.GetSkipLimit() > 0 && policy.GetSkipCount() >= policy.GetSkipLimit() {
		return exception.NewBatchError(s.name, fmt.Sprintf("skip limit of %d reached", policy.GetSkipLimit()), err, false, false)
	}
	return err
}

// processBatch runs the processor over batch and appends the surviving items to the chunk in
// input order. With several workers all items are processed before this returns.
func (s *ChunkStep[I, O]) processBatch(ctx context.Context, c *chunk[O], batch []I) error {
	if len(batch) == 0 {
		return nil
	}
	out := make([]O, len(batch))
	filtered := make([]bool, len(batch))

	processOne := func(gctx context.Context, i int) error {
		result, err := s.processor.Process(gctx, batch[i])
		if errors.Is(err, port.ErrSkipItem) {
			filtered[i] = true
			return nil
		}
		if err != nil {
			return exception.NewBatchError(s.name, "item processing failed", err, false, false)
		}
		out[i] = result
		return nil
	}

	if s.opts.ProcessingWorkers > 1 && len(batch) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.opts.ProcessingWorkers)
		for i := range batch {
			g.Go(func() error { return processOne(gctx, i) })
		}
		if err := g.Wait(); err != nil {
			return err
		}
	} else {
		for i := range batch {
			if err := processOne(ctx, i); err != nil {
				return err
			}
		}
	}

	for i := range batch {
		c.inFlight--
		if filtered[i] {
			c.filtered++
			s.opts.MetricRecorder.RecordItemFilter(ctx, s.name)
			for _, l := range s.opts.Listeners.Skip {
				l.OnFilter(ctx, batch[i])
			}
			continue
		}
		c.items = append(c.items, out[i])
	}
	return nil
}

// write opens the chunk transaction, writes the items and commits. The transaction is rolled
// back on every other exit path, panics included.
func (s *ChunkStep[I, O]) write(ctx context.Context, c *chunk[O]) error {
	txn, err := s.txManager.Begin(ctx, s.txOptions)
	if err != nil {
		return exception.NewBatchError(s.name, "failed to begin chunk transaction", err, false, false)
	}

	closed := false
	defer func() {
		if closed {
			return
		}
		if rbErr := s.txManager.Rollback(txn); rbErr != nil {
			logger.Errorf("ChunkStep '%s': rollback of chunk %d failed: %v", s.name, c.number, rbErr)
		}
	}()

	if err := s.writer.Write(ctx, txn, c.items); err != nil {
		if !exception.IsWriteError(err) {
			err = exception.NewWriteError(exception.NoFailedIndex, err)
		}
		logger.Errorf("ChunkStep '%s': chunk %d write failed, rolling back: %v", s.name, c.number, err)
		return err
	}

	closed = true
	if err := s.txManager.Commit(txn); err != nil {
		return exception.NewWriteError(exception.NoFailedIndex, fmt.Errorf("commit of chunk %d failed: %w", c.number, err))
	}
	return nil
}

// failChunk records the lost items and notifies the chunk listeners.
func (s *ChunkStep[I, O]) failChunk(ctx context.Context, state *model.ExecutionState, c *chunk[O], err error) error {
	state.FailedCount += c.lost()
	if exception.IsMappingError(err) {
		state.FailedCount++
	}
	for _, l := range s.opts.Listeners.Chunk {
		l.AfterChunkError(ctx, state, err)
	}
	return err
}

func (s *ChunkStep[I, O]) fold(state *model.ExecutionState, c *chunk[O]) {
	state.ReadCount += c.read
	state.FilterCount += c.filtered
	state.SkipCount += c.filtered + c.skipped
	state.Offset += c.consumed
}

func (s *ChunkStep[I, O]) saveState(ctx context.Context, state *model.ExecutionState) {
	if s.opts.Repository == nil {
		return
	}
	if err := s.opts.Repository.UpdateStepExecution(ctx, state.Snapshot()); err != nil {
		logger.Warnf("ChunkStep '%s': failed to save step state: %v", s.name, err)
	}
}
