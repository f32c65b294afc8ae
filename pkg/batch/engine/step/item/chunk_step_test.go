package item

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	port "github.com/tigerroll/customer-batch/pkg/batch/core/application/port"
	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	"github.com/tigerroll/customer-batch/pkg/batch/infrastructure/repository/inmemory"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/exception"
	testutil "github.com/tigerroll/customer-batch/pkg/batch/test"
)

// intMapper parses field 0 as an int.
var intMapper = testutil.MapperFunc[int](func(r model.RawRecord) (int, error) {
	n, err := strconv.Atoi(r.Field(0))
	if err != nil {
		return 0, exception.NewMappingError(r.Line, r.Fields, err)
	}
	return n, nil
})

var identity = testutil.ProcessorFunc[int, int](func(_ context.Context, n int) (int, error) { return n, nil })

func rows(values ...string) []testutil.SourceEntry {
	rs := make([][]string, len(values))
	for i, v := range values {
		rs[i] = []string{v}
	}
	return testutil.RecordsOf(rs...)
}

type fixture struct {
	source    *testutil.SliceRecordSource
	writer    *testutil.RecordingWriter[int]
	txManager *testutil.MockTxManager
	txn       *testutil.MockTx
}

func newFixture(values ...string) *fixture {
	f := &fixture{
		source:    &testutil.SliceRecordSource{Entries: rows(values...)},
		writer:    &testutil.RecordingWriter[int]{},
		txManager: &testutil.MockTxManager{},
		txn:       &testutil.MockTx{},
	}
	f.txManager.On("Begin", mock.Anything, mock.Anything).Return(f.txn, nil)
	f.txManager.On("Commit", f.txn).Return(nil)
	f.txManager.On("Rollback", f.txn).Return(nil)
	return f
}

func (f *fixture) step(processor port.ItemProcessor[int, int], opts Options) *ChunkStep[int, int] {
	return NewChunkStep[int, int]("customerStep", f.source, intMapper, processor, f.writer, f.txManager, opts)
}

func assertBalanced(t *testing.T, state *model.ExecutionState) {
	t.Helper()
	assert.Equal(t, state.ReadCount, state.WriteCount+state.FilterCount, "written + filtered must equal read")
}

func TestChunkStep_WritesInChunks(t *testing.T) {
	f := newFixture("1", "2", "3", "4", "5")

	state, err := f.step(identity, Options{ChunkSize: 2}).Execute(context.Background())

	require.NoError(t, err)
	assert.Equal(t, model.PhaseCompleted, state.Phase)
	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, f.writer.Chunks)
	assert.Equal(t, 5, state.ReadCount)
	assert.Equal(t, 5, state.WriteCount)
	assert.Equal(t, 3, state.CommitCount)
	assert.Equal(t, 0, state.RollbackCount)
	assert.Equal(t, 5, state.Offset)
	assert.True(t, f.source.Closed)
	assert.True(t, f.writer.Closed)
	f.txManager.AssertNumberOfCalls(t, "Begin", 3)
	f.txManager.AssertNumberOfCalls(t, "Commit", 3)
	f.txManager.AssertNotCalled(t, "Rollback", mock.Anything)
	assertBalanced(t, state)
}

func TestChunkStep_ExactMultipleOfChunkSize(t *testing.T) {
	f := newFixture("1", "2", "3", "4")

	state, err := f.step(identity, Options{ChunkSize: 2}).Execute(context.Background())

	require.NoError(t, err)
	assert.Equal(t, [][]int{{1, 2}, {3, 4}}, f.writer.Chunks)
	// the trailing empty chunk opens no transaction
	f.txManager.AssertNumberOfCalls(t, "Begin", 2)
	assert.Equal(t, 2, state.CommitCount)
}

func TestChunkStep_EmptySource(t *testing.T) {
	f := newFixture()

	state, err := f.step(identity, Options{ChunkSize: 10}).Execute(context.Background())

	require.NoError(t, err)
	assert.Equal(t, model.PhaseCompleted, state.Phase)
	assert.Equal(t, 0, state.ReadCount)
	assert.Equal(t, 0, state.WriteCount)
	assert.Empty(t, f.writer.Chunks)
	f.txManager.AssertNotCalled(t, "Begin", mock.Anything, mock.Anything)
	assert.Equal(t, model.ExitCodeCompleted, state.ExitCode())
}

func TestChunkStep_SkipAndContinueSkipsMalformedRecord(t *testing.T) {
	f := newFixture("1", "2", "x", "4", "5")
	skips := &recordingSkipListener{}

	state, err := f.step(identity, Options{
		ChunkSize:  2,
		SkipPolicy: "SKIP_AND_CONTINUE",
		Listeners:  port.StepListeners{Skip: []port.SkipListener{skips}},
	}).Execute(context.Background())

	require.NoError(t, err)
	assert.Equal(t, model.PhaseCompleted, state.Phase)
	assert.Equal(t, [][]int{{1, 2}, {4, 5}}, f.writer.Chunks)
	assert.Equal(t, 4, state.ReadCount)
	assert.Equal(t, 4, state.WriteCount)
	assert.Equal(t, 1, state.SkipCount)
	assert.Equal(t, 5, state.Offset)
	require.Len(t, skips.readErrs, 1)
	var me *exception.MappingError
	require.ErrorAs(t, skips.readErrs[0], &me)
	assert.Equal(t, 4, me.Line)
	assert.Equal(t, []string{"x"}, me.RawRecord)
	assertBalanced(t, state)
}

func TestChunkStep_FailOnErrorStopsAtMalformedRecord(t *testing.T) {
	f := newFixture("1", "2", "x", "4", "5")

	state, err := f.step(identity, Options{ChunkSize: 2, SkipPolicy: "FAIL_ON_ERROR"}).Execute(context.Background())

	require.Error(t, err)
	assert.True(t, exception.IsMappingError(err))
	assert.Equal(t, model.PhaseFailed, state.Phase)
	assert.Equal(t, [][]int{{1, 2}}, f.writer.Chunks)
	assert.Equal(t, 2, state.WriteCount)
	assert.Equal(t, 1, state.FailedCount)
	assert.Equal(t, 2, state.Offset)
	assert.NotEqual(t, 0, state.ExitCode())
	assert.ErrorIs(t, state.Err(), err)
	f.txManager.AssertNumberOfCalls(t, "Commit", 1)
	f.txManager.AssertNotCalled(t, "Rollback", mock.Anything)
	assert.True(t, f.source.Closed)
}

func TestChunkStep_SkipLimitReached(t *testing.T) {
	f := newFixture("1", "x", "3", "y", "5")

	state, err := f.step(identity, Options{ChunkSize: 10, SkipPolicy: "SKIP_AND_CONTINUE", SkipLimit: 1}).Execute(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "skip limit of 1 reached")
	assert.True(t, exception.IsMappingError(err))
	assert.Equal(t, model.PhaseFailed, state.Phase)
	assert.Empty(t, f.writer.Chunks)
	// 1 and 3 were in the chunk, y is the fatal record
	assert.Equal(t, 3, state.FailedCount)
}

func TestChunkStep_ProcessorFilter(t *testing.T) {
	f := newFixture("1", "2", "3", "4", "5")
	dropEven := testutil.ProcessorFunc[int, int](func(_ context.Context, n int) (int, error) {
		if n%2 == 0 {
			return 0, port.ErrSkipItem
		}
		return n * 10, nil
	})
	skips := &recordingSkipListener{}

	state, err := f.step(dropEven, Options{
		ChunkSize: 2,
		Listeners: port.StepListeners{Skip: []port.SkipListener{skips}},
	}).Execute(context.Background())

	require.NoError(t, err)
	// the accumulator counts items that survived the processor
	assert.Equal(t, [][]int{{10, 30}, {50}}, f.writer.Chunks)
	assert.Equal(t, 5, state.ReadCount)
	assert.Equal(t, 3, state.WriteCount)
	assert.Equal(t, 2, state.FilterCount)
	assert.Equal(t, 2, state.SkipCount)
	assert.Equal(t, []interface{}{2, 4}, skips.filtered)
	assertBalanced(t, state)
}

func TestChunkStep_ProcessorErrorFailsStep(t *testing.T) {
	f := newFixture("1", "2", "3")
	boom := errors.New("boom")
	failing := testutil.ProcessorFunc[int, int](func(_ context.Context, n int) (int, error) {
		if n == 3 {
			return 0, boom
		}
		return n, nil
	})

	state, err := f.step(failing, Options{ChunkSize: 2}).Execute(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, model.PhaseFailed, state.Phase)
	assert.Equal(t, 2, state.WriteCount)
	assert.Equal(t, 1, state.FailedCount)
}

func TestChunkStep_WriteFailureRollsBack(t *testing.T) {
	f := newFixture("1", "2", "3", "4", "5")
	dbErr := errors.New("unique constraint violated")
	f.writer.WriteErr = func(chunk int) error {
		if chunk == 2 {
			return dbErr
		}
		return nil
	}
	chunks := &recordingChunkListener{}

	state, err := f.step(identity, Options{
		ChunkSize: 2,
		Listeners: port.StepListeners{Chunk: []port.ChunkListener{chunks}},
	}).Execute(context.Background())

	require.Error(t, err)
	assert.True(t, exception.IsWriteError(err))
	assert.ErrorIs(t, err, dbErr)
	assert.Equal(t, model.PhaseFailed, state.Phase)
	assert.Equal(t, [][]int{{1, 2}}, f.writer.Chunks)
	assert.Equal(t, 2, state.WriteCount)
	assert.Equal(t, 2, state.FailedCount)
	assert.Equal(t, 1, state.CommitCount)
	assert.Equal(t, 1, state.RollbackCount)
	assert.Equal(t, 2, state.Offset)
	f.txManager.AssertNumberOfCalls(t, "Commit", 1)
	f.txManager.AssertNumberOfCalls(t, "Rollback", 1)
	assert.Equal(t, 1, chunks.after)
	require.Len(t, chunks.errs, 1)
	assert.True(t, f.source.Closed)
	assert.True(t, f.writer.Closed)
}

func TestChunkStep_CommitFailureIsWriteError(t *testing.T) {
	f := &fixture{
		source:    &testutil.SliceRecordSource{Entries: rows("1")},
		writer:    &testutil.RecordingWriter[int]{},
		txManager: &testutil.MockTxManager{},
		txn:       &testutil.MockTx{},
	}
	f.txManager.On("Begin", mock.Anything, mock.Anything).Return(f.txn, nil)
	f.txManager.On("Commit", f.txn).Return(errors.New("connection reset"))

	state, err := f.step(identity, Options{ChunkSize: 10}).Execute(context.Background())

	require.Error(t, err)
	assert.True(t, exception.IsWriteError(err))
	assert.Equal(t, model.PhaseFailed, state.Phase)
	assert.Equal(t, 0, state.WriteCount)
	f.txManager.AssertNotCalled(t, "Rollback", mock.Anything)
}

func TestChunkStep_BeginFailure(t *testing.T) {
	f := &fixture{
		source:    &testutil.SliceRecordSource{Entries: rows("1")},
		writer:    &testutil.RecordingWriter[int]{},
		txManager: &testutil.MockTxManager{},
	}
	f.txManager.On("Begin", mock.Anything, mock.Anything).Return(nil, errors.New("pool exhausted"))

	state, err := f.step(identity, Options{ChunkSize: 10}).Execute(context.Background())

	require.Error(t, err)
	assert.Equal(t, model.PhaseFailed, state.Phase)
	assert.Empty(t, f.writer.Chunks)
}

func TestChunkStep_InvalidChunkSize(t *testing.T) {
	for _, size := range []int{0, -3} {
		f := newFixture("1")
		state, err := f.step(identity, Options{ChunkSize: size}).Execute(context.Background())

		require.Error(t, err)
		assert.True(t, exception.IsConfigError(err))
		assert.Equal(t, model.PhaseFailed, state.Phase)
		assert.False(t, f.source.Opened, "source must not be opened")
		assert.Equal(t, 0, f.source.Consumed)
	}
}

func TestChunkStep_UnknownSkipPolicy(t *testing.T) {
	f := newFixture("1")

	state, err := f.step(identity, Options{ChunkSize: 1, SkipPolicy: "RETRY_FOREVER"}).Execute(context.Background())

	require.Error(t, err)
	assert.True(t, exception.IsConfigError(err))
	assert.Equal(t, model.PhaseFailed, state.Phase)
}

func TestChunkStep_SourceOpenFailure(t *testing.T) {
	f := newFixture()
	f.source.OpenErr = exception.NewSourceError(0, errors.New("no such file"))

	state, err := f.step(identity, Options{ChunkSize: 2}).Execute(context.Background())

	require.Error(t, err)
	assert.True(t, exception.IsSourceError(err))
	assert.Equal(t, model.PhaseFailed, state.Phase)
	assert.False(t, f.writer.Opened)
}

func TestChunkStep_SourceErrorIsNeverSkipped(t *testing.T) {
	f := newFixture("1", "2")
	f.source.Entries[1].Err = exception.NewSourceError(3, errors.New("read: connection reset"))

	state, err := f.step(identity, Options{ChunkSize: 10, SkipPolicy: "SKIP_AND_CONTINUE"}).Execute(context.Background())

	require.Error(t, err)
	assert.True(t, exception.IsSourceError(err))
	assert.Equal(t, model.PhaseFailed, state.Phase)
	assert.Equal(t, 0, state.SkipCount)
}

func TestChunkStep_CancelBetweenChunks(t *testing.T) {
	f := newFixture("1", "2", "3", "4", "5")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	chunks := &recordingChunkListener{onAfter: cancel}

	state, err := f.step(identity, Options{
		ChunkSize: 2,
		Listeners: port.StepListeners{Chunk: []port.ChunkListener{chunks}},
	}).Execute(ctx)

	require.NoError(t, err)
	assert.Equal(t, model.PhaseStopped, state.Phase)
	assert.Equal(t, model.ExitCodeStopped, state.ExitCode())
	assert.Equal(t, [][]int{{1, 2}}, f.writer.Chunks)
	assert.Equal(t, 2, state.Offset)
	assert.True(t, f.source.Closed)
}

func TestChunkStep_CancelMidChunkFinishesChunk(t *testing.T) {
	f := newFixture("1", "2", "3", "4", "5")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.source.OnNext = func(served int) {
		if served == 1 {
			cancel()
		}
	}

	state, err := f.step(identity, Options{ChunkSize: 3}).Execute(ctx)

	require.NoError(t, err)
	assert.Equal(t, model.PhaseStopped, state.Phase)
	assert.Equal(t, [][]int{{1, 2, 3}}, f.writer.Chunks)
	assert.Equal(t, 1, state.CommitCount)
}

func TestChunkStep_ParallelProcessingKeepsOrder(t *testing.T) {
	values := make([]string, 50)
	for i := range values {
		values[i] = strconv.Itoa(i + 1)
	}
	f := newFixture(values...)
	slow := testutil.ProcessorFunc[int, int](func(_ context.Context, n int) (int, error) {
		time.Sleep(time.Duration(rand.Intn(3)) * time.Millisecond)
		if n%7 == 0 {
			return 0, port.ErrSkipItem
		}
		return n, nil
	})

	state, err := f.step(slow, Options{ChunkSize: 8, ProcessingWorkers: 4}).Execute(context.Background())

	require.NoError(t, err)
	var expected []int
	for i := 1; i <= 50; i++ {
		if i%7 != 0 {
			expected = append(expected, i)
		}
	}
	assert.Equal(t, expected, f.writer.Written())
	for _, c := range f.writer.Chunks[:len(f.writer.Chunks)-1] {
		assert.Len(t, c, 8)
	}
	assert.Equal(t, 7, state.FilterCount)
	assertBalanced(t, state)
}

func TestChunkStep_ResumeOffset(t *testing.T) {
	f := newFixture("1", "2", "3", "4", "5")
	repo := inmemory.NewInMemoryExecutionRepository()

	state, err := f.step(identity, Options{ChunkSize: 2, ResumeOffset: 3, Repository: repo}).Execute(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, f.source.OpenOffset)
	assert.Equal(t, [][]int{{4, 5}}, f.writer.Chunks)
	assert.Equal(t, 5, state.Offset)

	saved, err := repo.LatestStepExecution(context.Background(), "customerStep")
	require.NoError(t, err)
	assert.Equal(t, model.PhaseCompleted, saved.Phase)
	assert.Equal(t, 5, saved.Offset)
}

func TestChunkStep_StepListeners(t *testing.T) {
	f := newFixture("1", "2", "3")
	steps := &recordingStepListener{}

	state, err := f.step(identity, Options{
		ChunkSize: 2,
		Listeners: port.StepListeners{Step: []port.StepExecutionListener{steps}},
	}).Execute(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []model.Phase{model.PhaseRunning}, steps.before)
	assert.Equal(t, []model.Phase{model.PhaseCompleted}, steps.after)
	assert.Equal(t, "customerStep", state.Name)
}

type recordingSkipListener struct {
	readErrs []error
	filtered []interface{}
}

func (l *recordingSkipListener) OnSkipInRead(_ context.Context, err error) {
	l.readErrs = append(l.readErrs, err)
}

func (l *recordingSkipListener) OnFilter(_ context.Context, item interface{}) {
	l.filtered = append(l.filtered, item)
}

type recordingChunkListener struct {
	before, after int
	errs          []error
	onAfter       func()
}

func (l *recordingChunkListener) BeforeChunk(context.Context, *model.ExecutionState) { l.before++ }

func (l *recordingChunkListener) AfterChunk(context.Context, *model.ExecutionState) {
	l.after++
	if l.onAfter != nil {
		l.onAfter()
	}
}

func (l *recordingChunkListener) AfterChunkError(_ context.Context, _ *model.ExecutionState, err error) {
	l.errs = append(l.errs, err)
}

type recordingStepListener struct {
	before, after []model.Phase
}

func (l *recordingStepListener) BeforeStep(_ context.Context, s *model.ExecutionState) {
	l.before = append(l.before, s.Phase)
}

func (l *recordingStepListener) AfterStep(_ context.Context, s *model.ExecutionState) {
	l.after = append(l.after, s.Phase)
}
