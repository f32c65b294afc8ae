// Package reader provides the delimited-text record source of the chunk step.
package reader

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	storageAdapter "github.com/tigerroll/customer-batch/pkg/batch/adapter/storage"
	"github.com/tigerroll/customer-batch/pkg/batch/core/application/port"
	"github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/exception"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

// Opener opens the byte stream the source tokenizes.
type Opener func(ctx context.Context) (io.ReadCloser, error)

// StorageOpener opens object in bucket through the storage connection named storageRef.
func StorageOpener(resolver storageAdapter.StorageConnectionResolver, storageRef, bucket, object string) Opener {
	return func(ctx context.Context) (io.ReadCloser, error) {
		conn, err := resolver.ResolveStorageConnection(ctx, storageRef)
		if err != nil {
			return nil, err
		}
		return conn.Download(ctx, bucket, object)
	}
}

// CSVOptions configures a CSVRecordSource.
type CSVOptions struct {
	// Name identifies the source in logs, e.g. the object name.
	Name            string
	Delimiter       rune
	SkipHeaderLines int
}

// CSVRecordSource reads delimited records. Records may have any number of fields; the mapper
// decides what a short or long record means. A record with broken quoting is reported as a
// MappingError so the skip policy can absorb it. I/O failures are SourceErrors.
type CSVRecordSource struct {
	open   Opener
	opts   CSVOptions
	rc     io.ReadCloser
	reader *csv.Reader
	// lineBase is the number of physical lines consumed before the csv reader took over.
	lineBase int
	lastLine int
	records  int
}

var _ port.RecordSource = (*CSVRecordSource)(nil)

// NewCSVRecordSource returns a source over the stream returned by open.
func NewCSVRecordSource(open Opener, opts CSVOptions) (*CSVRecordSource, error) {
	if opts.Delimiter == 0 {
		opts.Delimiter = ','
	}
	if opts.Delimiter == '"' || opts.Delimiter == '\r' || opts.Delimiter == '\n' || opts.Delimiter == utf8.RuneError {
		return nil, exception.NewConfigError("batch.source.delimiter", "%q cannot be used as a delimiter", opts.Delimiter)
	}
	if opts.SkipHeaderLines < 0 {
		return nil, exception.NewConfigError("batch.source.skip_header_lines", "must not be negative, got %d", opts.SkipHeaderLines)
	}
	return &CSVRecordSource{open: open, opts: opts}, nil
}

// Open opens the stream, skips the header lines and then the first resumeOffset records.
// A source may be opened again after Close; every Open starts from the top of the stream.
func (s *CSVRecordSource) Open(ctx context.Context, resumeOffset int) error {
	if s.rc != nil {
		if err := s.Close(); err != nil {
			logger.Warnf("Source '%s': closing previous stream: %v", s.opts.Name, err)
		}
	}
	s.lineBase, s.lastLine, s.records = 0, 0, 0

	rc, err := s.open(ctx)
	if err != nil {
		return exception.NewSourceError(0, fmt.Errorf("failed to open '%s': %w", s.opts.Name, err))
	}
	s.rc = rc

	br := bufio.NewReader(rc)
	for s.lineBase < s.opts.SkipHeaderLines {
		_, err := br.ReadString('\n')
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return exception.NewSourceError(s.lineBase+1, err)
		}
		s.lineBase++
	}

	s.reader = csv.NewReader(br)
	s.reader.Comma = s.opts.Delimiter
	s.reader.FieldsPerRecord = -1

	for skipped := 0; skipped < resumeOffset; skipped++ {
		_, err := s.reader.Read()
		if errors.Is(err, io.EOF) {
			logger.Warnf("Source '%s' ended after %d of %d resumed records.", s.opts.Name, skipped, resumeOffset)
			break
		}
		var pe *csv.ParseError
		if err != nil && !errors.As(err, &pe) {
			return exception.NewSourceError(s.lastLine+1, err)
		}
		s.records++
		s.track(err)
	}
	logger.Debugf("Source '%s' opened (header lines %d, resume offset %d).", s.opts.Name, s.lineBase, resumeOffset)
	return nil
}

// Next returns the next record, port.ErrEndOfStream at the end of input, a *MappingError for a
// record that cannot be tokenized or a *SourceError for an I/O failure.
func (s *CSVRecordSource) Next(ctx context.Context) (model.RawRecord, error) {
	if s.reader == nil {
		return model.RawRecord{}, exception.NewSourceError(0, errors.New("source is not open"))
	}
	fields, err := s.reader.Read()
	if errors.Is(err, io.EOF) {
		return model.RawRecord{}, port.ErrEndOfStream
	}
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		s.records++
		s.lastLine = s.lineBase + pe.Line
		return model.RawRecord{}, exception.NewMappingError(s.lineBase+pe.StartLine, fields, pe.Err)
	}
	if err != nil {
		return model.RawRecord{}, exception.NewSourceError(s.lastLine+1, err)
	}
	s.records++
	line, _ := s.reader.FieldPos(0)
	s.lastLine = s.lineBase + line
	return model.RawRecord{Line: s.lastLine, Fields: fields}, nil
}

// track advances lastLine past a record skipped on resume.
func (s *CSVRecordSource) track(err error) {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		s.lastLine = s.lineBase + pe.Line
		return
	}
	line, _ := s.reader.FieldPos(0)
	s.lastLine = s.lineBase + line
}

// Close closes the underlying stream.
func (s *CSVRecordSource) Close() error {
	if s.rc == nil {
		return nil
	}
	err := s.rc.Close()
	s.rc = nil
	s.reader = nil
	logger.Debugf("Source '%s' closed after %d record(s).", s.opts.Name, s.records)
	return err
}
