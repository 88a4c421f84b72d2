package export

import (
	"fmt"
	"os"
	"sort"

	"github.com/parquet-go/parquet-go"

	"github.com/habr-tools/habr-ingest/pkg/record"
)

// parquetWriter accumulates whole records and writes each full buffer
// as one snappy-compressed row group. Columnar files fix their schema
// up front, so the schema is snapshotted from the first buffered batch
// and later records are projected onto it: missing fields become
// nulls, fields first seen after the snapshot are dropped. If no
// records ever arrive, no file is produced; an empty parquet file has
// no defined schema.
type parquetWriter struct {
	path       string
	bufferSize int
	buf        []record.Record
	columns    []string
	listColumn map[string]bool
	file       *os.File
	writer     *parquet.GenericWriter[map[string]any]
}

func newParquetWriter(path string, bufferSize int) *parquetWriter {
	return &parquetWriter{
		path:       path,
		bufferSize: bufferSize,
		listColumn: make(map[string]bool),
	}
}

func (w *parquetWriter) SaveChunk(rec record.Record) error {
	w.buf = append(w.buf, rec)

	if len(w.buf) >= w.bufferSize {
		return w.flush()
	}
	return nil
}

// initWriter builds the schema from the first buffered batch and opens
// the destination.
func (w *parquetWriter) initWriter() error {
	if w.writer != nil {
		return nil
	}

	fieldSet := make(map[string]bool)
	for _, rec := range w.buf {
		for field, value := range rec {
			fieldSet[field] = true
			if _, ok := value.([]string); ok {
				w.listColumn[field] = true
			}
		}
	}

	group := parquet.Group{}
	columns := []string{}
	for field := range fieldSet {
		columns = append(columns, field)
		switch {
		case field == "id":
			group[field] = parquet.Int(64)
		case w.listColumn[field]:
			group[field] = parquet.Repeated(parquet.String())
		default:
			group[field] = parquet.Optional(parquet.String())
		}
	}
	sort.Strings(columns)
	w.columns = columns

	file, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("create %s: %w", w.path, err)
	}

	w.file = file
	w.writer = parquet.NewGenericWriter[map[string]any](
		file,
		parquet.NewSchema("record", group),
		parquet.Compression(&parquet.Snappy),
	)
	return nil
}

func (w *parquetWriter) flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	if err := w.initWriter(); err != nil {
		return err
	}

	rows := make([]map[string]any, 0, len(w.buf))
	for _, rec := range w.buf {
		rows = append(rows, w.project(rec))
	}

	if _, err := w.writer.Write(rows); err != nil {
		return fmt.Errorf("write row group: %w", err)
	}
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("flush row group: %w", err)
	}
	w.buf = w.buf[:0]

	exportFlushesTotal.WithLabelValues("parquet").Inc()
	return nil
}

// project maps a record onto the snapshotted schema columns.
func (w *parquetWriter) project(rec record.Record) map[string]any {
	row := make(map[string]any, len(w.columns))
	for _, column := range w.columns {
		value, ok := rec[column]
		if !ok || value == nil {
			continue
		}
		switch {
		case column == "id":
			row[column] = int64(rec.ID())
		case w.listColumn[column]:
			if list, ok := value.([]string); ok {
				row[column] = list
			}
		default:
			row[column] = renderValue(value)
		}
	}
	return row
}

func (w *parquetWriter) Finalize() error {
	if err := w.flush(); err != nil {
		return err
	}
	if w.writer == nil {
		return nil
	}
	if err := w.writer.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return w.file.Close()
}
