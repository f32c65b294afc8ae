package test

import (
	"context"
	"sync"

	port "github.com/tigerroll/customer-batch/pkg/batch/core/application/port"
	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	tx "github.com/tigerroll/customer-batch/pkg/batch/core/tx"
)

// SliceRecordSource serves prepared records. An entry with a non-nil Err is returned as an error
// in place of a record.
type SliceRecordSource struct {
	Entries  []SourceEntry
	OpenErr  error
	CloseErr error

	pos        int
	Opened     bool
	Closed     bool
	OpenOffset int
	// Consumed counts the calls to Next that returned a record or an error.
	Consumed int
	// OnNext, when set, runs before every call to Next with the number of entries served so far.
	OnNext func(served int)
}

// SourceEntry is one element served by SliceRecordSource.
type SourceEntry struct {
	Record model.RawRecord
	Err    error
}

// RecordsOf builds entries from rows; line numbers start at 2 as if a header preceded them.
func RecordsOf(rows ...[]string) []SourceEntry {
	entries := make([]SourceEntry, len(rows))
	for i, row := range rows {
		entries[i] = SourceEntry{Record: model.RawRecord{Line: i + 2, Fields: row}}
	}
	return entries
}

func (s *SliceRecordSource) Open(ctx context.Context, resumeOffset int) error {
	if s.OpenErr != nil {
		return s.OpenErr
	}
	s.Opened = true
	s.OpenOffset = resumeOffset
	s.pos = resumeOffset
	return nil
}

func (s *SliceRecordSource) Next(ctx context.Context) (model.RawRecord, error) {
	if s.OnNext != nil {
		s.OnNext(s.Consumed)
	}
	if s.pos >= len(s.Entries) {
		return model.RawRecord{}, port.ErrEndOfStream
	}
	e := s.Entries[s.pos]
	s.pos++
	s.Consumed++
	return e.Record, e.Err
}

func (s *SliceRecordSource) Close() error {
	s.Closed = true
	return s.CloseErr
}

// MapperFunc adapts a function to port.RecordMapper.
type MapperFunc[T any] func(model.RawRecord) (T, error)

func (f MapperFunc[T]) Map(r model.RawRecord) (T, error) { return f(r) }

// ProcessorFunc adapts a function to port.ItemProcessor.
type ProcessorFunc[I, O any] func(context.Context, I) (O, error)

func (f ProcessorFunc[I, O]) Process(ctx context.Context, item I) (O, error) { return f(ctx, item) }

// RecordingWriter keeps every chunk it is asked to write. WriteErr, when it returns non-nil
// for a chunk number (1-based), fails that write.
type RecordingWriter[T any] struct {
	mu       sync.Mutex
	Chunks   [][]T
	WriteErr func(chunk int) error
	Opened   bool
	Closed   bool
	calls    int
}

func (w *RecordingWriter[T]) Open(ctx context.Context) error {
	w.Opened = true
	return nil
}

func (w *RecordingWriter[T]) Write(ctx context.Context, t tx.Tx, items []T) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.WriteErr != nil {
		if err := w.WriteErr(w.calls); err != nil {
			return err
		}
	}
	w.Chunks = append(w.Chunks, append([]T(nil), items...))
	return nil
}

func (w *RecordingWriter[T]) Close(ctx context.Context) error {
	w.Closed = true
	return nil
}

// Written flattens the committed chunks.
func (w *RecordingWriter[T]) Written() []T {
	w.mu.Lock()
	defer w.mu.Unlock()
	var all []T
	for _, c := range w.Chunks {
		all = append(all, c...)
	}
	return all
}

var (
	_ port.RecordSource            = (*SliceRecordSource)(nil)
	_ port.ItemWriter[int]         = (*RecordingWriter[int])(nil)
	_ port.RecordMapper[int]       = MapperFunc[int](nil)
	_ port.ItemProcessor[int, int] = ProcessorFunc[int, int](nil)
)
