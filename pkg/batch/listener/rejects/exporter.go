// Package rejects collects the records a step rejected while mapping and exports them as a
// Parquet file to a storage connection when the step ends.
package rejects

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/tigerroll/customer-batch/pkg/batch/adapter/storage"
	port "github.com/tigerroll/customer-batch/pkg/batch/core/application/port"
	config "github.com/tigerroll/customer-batch/pkg/batch/core/config"
	model "github.com/tigerroll/customer-batch/pkg/batch/core/domain/model"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/exception"
	"github.com/tigerroll/customer-batch/pkg/batch/support/util/logger"
)

// RejectRow is one rejected record in the exported file.
type RejectRow struct {
	StepName   string `parquet:"name=step_name, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Line       int64  `parquet:"name=line, type=INT64"`
	RawRecord  string `parquet:"name=raw_record, type=BYTE_ARRAY, convertedtype=UTF8"`
	Reason     string `parquet:"name=reason, type=BYTE_ARRAY, convertedtype=UTF8"`
	RejectedAt int64  `parquet:"name=rejected_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
}

// Exporter buffers rejected records during a step and uploads them in AfterStep.
// Rejects are held per chunk and kept only when the chunk ends without a rollback, so a chunk
// that is rolled back and later resumed does not export its rejects twice.
// Failures to export are logged; they never change the outcome of the step.
type Exporter struct {
	cfg      config.RejectsConfig
	resolver storage.StorageConnectionResolver
	codec    parquet.CompressionCodec
	now      func() time.Time

	mu       sync.Mutex
	stepName string
	pending  []RejectRow // rejects of the chunk in flight
	rows     []RejectRow
	// LastObject is the name of the most recent upload, empty if nothing was exported.
	LastObject string
}

var (
	_ port.SkipListener          = (*Exporter)(nil)
	_ port.StepExecutionListener = (*Exporter)(nil)
	_ port.ChunkListener         = (*Exporter)(nil)
)

// NewExporter validates cfg.Compression and returns an Exporter.
func NewExporter(cfg config.RejectsConfig, resolver storage.StorageConnectionResolver) (*Exporter, error) {
	codec, err := compressionCodec(cfg.Compression)
	if err != nil {
		return nil, exception.NewConfigError("batch.rejects.compression", "%v", err)
	}
	return &Exporter{cfg: cfg, resolver: resolver, codec: codec, now: time.Now}, nil
}

func compressionCodec(name string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(name) {
	case "SNAPPY":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "NONE", "":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, fmt.Errorf("unsupported compression type: %s", name)
	}
}

// BeforeStep implements port.StepExecutionListener. It forgets the rejects of any earlier step.
func (e *Exporter) BeforeStep(ctx context.Context, state *model.ExecutionState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stepName = state.Name
	e.pending = nil
	e.rows = nil
}

// BeforeChunk implements port.ChunkListener.
func (e *Exporter) BeforeChunk(ctx context.Context, state *model.ExecutionState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = nil
}

// AfterChunk implements port.ChunkListener. The rejects read by the committed chunk become
// part of the export.
func (e *Exporter) AfterChunk(ctx context.Context, state *model.ExecutionState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rows = append(e.rows, e.pending...)
	e.pending = nil
}

// AfterChunkError drops the rejects of the failed chunk. A resumed run reads them again.
func (e *Exporter) AfterChunkError(ctx context.Context, state *model.ExecutionState, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.pending) > 0 {
		logger.Debugf("Rejects exporter: dropping %d reject(s) of a rolled back chunk of step '%s'.", len(e.pending), state.Name)
	}
	e.pending = nil
}

// OnSkipInRead implements port.SkipListener. The reject is held until its chunk commits.
func (e *Exporter) OnSkipInRead(ctx context.Context, err error) {
	row := RejectRow{Reason: err.Error(), RejectedAt: e.now().UnixMilli()}
	var me *exception.MappingError
	if errors.As(err, &me) {
		row.Line = int64(me.Line)
		row.RawRecord = joinFields(me.RawRecord)
		if me.Cause != nil {
			row.Reason = me.Cause.Error()
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	row.StepName = e.stepName
	e.pending = append(e.pending, row)
}

// OnFilter ignores filtered items: they were mapped successfully.
func (e *Exporter) OnFilter(ctx context.Context, item interface{}) {}

// AfterStep implements port.StepExecutionListener. It uploads the committed rejects as one
// Parquet object; a step without rejects uploads nothing. Upload failures are logged, never
// propagated to the step.
func (e *Exporter) AfterStep(ctx context.Context, state *model.ExecutionState) {
	e.mu.Lock()
	rows := e.rows
	e.rows, e.pending = nil, nil
	e.mu.Unlock()

	if len(rows) == 0 {
		return
	}
	object, err := e.export(ctx, state, rows)
	if err != nil {
		logger.Errorf("Rejects exporter: failed to export %d rejected record(s) of step '%s': %v", len(rows), state.Name, err)
		return
	}
	e.mu.Lock()
	e.LastObject = object
	e.mu.Unlock()
	logger.Infof("Rejects exporter: %d rejected record(s) of step '%s' written to %s/%s.", len(rows), state.Name, e.cfg.StorageRef, object)
}

func (e *Exporter) export(ctx context.Context, state *model.ExecutionState, rows []RejectRow) (string, error) {
	buf := new(bytes.Buffer)
	if err := e.encode(buf, rows); err != nil {
		return "", err
	}

	conn, err := e.resolver.ResolveStorageConnection(ctx, e.cfg.StorageRef)
	if err != nil {
		return "", err
	}
	object := path.Join(e.cfg.Prefix, fmt.Sprintf("%s_%s_%s.parquet", state.Name, e.now().UTC().Format("20060102150405"), shortID(state.ID)))
	if err := conn.Upload(ctx, e.cfg.Bucket, object, buf, "application/octet-stream"); err != nil {
		return "", err
	}
	return object, nil
}

func (e *Exporter) encode(buf *bytes.Buffer, rows []RejectRow) (err error) {
	pw, err := writer.NewParquetWriterFromWriter(buf, new(RejectRow), 1)
	if err != nil {
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = e.codec
	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			return fmt.Errorf("failed to write reject at line %d: %w", row.Line, err)
		}
	}

	// WriteStop panics on some malformed schemas.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parquet writer panicked during WriteStop: %v", r)
		}
	}()
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return nil
}

// joinFields renders fields as one CSV line so quoting survives the round trip.
func joinFields(fields []string) string {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	_ = w.Write(fields)
	w.Flush()
	return strings.TrimSuffix(sb.String(), "\n")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
