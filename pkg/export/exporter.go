// Package export streams records into one durable artifact. A single
// writer backend is selected by the output file extension and owns the
// artifact for the whole run; records are buffered in memory and
// flushed in bounded groups.
//
// The exporter is single-writer: callers must not invoke SaveChunk
// concurrently. Backends rely on that invariant and hold no locks.
package export

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/habr-tools/habr-ingest/pkg/logging"
	"github.com/habr-tools/habr-ingest/pkg/record"
)

// Prometheus metrics for export operations.
var (
	recordsExportedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "habr_records_exported_total",
		Help: "Total records handed to the exporter by status",
	}, []string{"status"})

	exportFlushesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "habr_export_flushes_total",
		Help: "Total buffer flushes by format",
	}, []string{"format"})
)

// Writer is one serialization backend behind the exporter facade.
type Writer interface {
	// SaveChunk buffers one record, flushing if the buffer is full.
	SaveChunk(rec record.Record) error

	// Finalize flushes remaining records and leaves a well-formed
	// artifact, even when no records were ever saved.
	Finalize() error
}

// Exporter selects and owns one writer backend.
type Exporter struct {
	path       string
	bufferSize int
	backend    Writer
	finalized  bool
	logger     zerolog.Logger
}

// New creates an exporter for the given artifact path. The backend is
// chosen by the path extension but not constructed until the first
// record arrives, so an unsupported extension surfaces on first use.
func New(path string, bufferSize int) *Exporter {
	return &Exporter{
		path:       path,
		bufferSize: bufferSize,
		logger:     logging.NewLogger("exporter"),
	}
}

// writer lazily constructs the backend.
func (e *Exporter) writer() (Writer, error) {
	if e.backend != nil {
		return e.backend, nil
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(e.path), "."))
	switch ext {
	case "json":
		e.backend = newJSONWriter(e.path, e.bufferSize)
	case "csv":
		e.backend = newCSVWriter(e.path, e.bufferSize)
	case "parquet":
		e.backend = newParquetWriter(e.path, e.bufferSize)
	default:
		return nil, fmt.Errorf("unsupported format: %q", ext)
	}

	e.logger.Debug().Str("path", e.path).Str("format", ext).Msg("Selected export backend")
	return e.backend, nil
}

// SaveChunk hands one record to the backend.
func (e *Exporter) SaveChunk(rec record.Record) error {
	w, err := e.writer()
	if err != nil {
		return err
	}

	if err := w.SaveChunk(rec); err != nil {
		return fmt.Errorf("save record %d: %w", rec.ID(), err)
	}

	recordsExportedTotal.WithLabelValues(rec.Status()).Inc()
	return nil
}

// Finalize flushes and closes the backend. It is idempotent, and on a
// never-used exporter it still constructs the backend so that a
// well-formed empty artifact is produced.
func (e *Exporter) Finalize() error {
	if e.finalized {
		return nil
	}
	e.finalized = true

	w, err := e.writer()
	if err != nil {
		return err
	}

	if err := w.Finalize(); err != nil {
		return fmt.Errorf("finalize %s: %w", e.path, err)
	}

	e.logger.Info().Str("path", e.path).Msg("Export finalized")
	return nil
}
