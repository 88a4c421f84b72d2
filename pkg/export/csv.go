package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/habr-tools/habr-ingest/pkg/record"
)

// csvWriter streams records as CSV lines. The column set is frozen at
// the first flush from the fields observed up to that point: records
// saved later that introduce brand-new fields have those fields
// dropped from the output. This is a known limitation of streaming CSV
// with an open field set; retrofitting the header would require
// rewriting the file.
type csvWriter struct {
	path          string
	bufferSize    int
	fieldSet      map[string]bool
	columns       []string
	headerWritten bool
	buf           []record.Record
	file          *os.File
	csv           *csv.Writer
}

func newCSVWriter(path string, bufferSize int) *csvWriter {
	return &csvWriter{
		path:       path,
		bufferSize: bufferSize,
		fieldSet:   make(map[string]bool),
	}
}

func (w *csvWriter) initFile() error {
	if w.file != nil {
		return nil
	}

	file, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("create %s: %w", w.path, err)
	}
	w.file = file
	w.csv = csv.NewWriter(file)
	return nil
}

func (w *csvWriter) SaveChunk(rec record.Record) error {
	for field := range rec {
		w.fieldSet[field] = true
	}
	w.buf = append(w.buf, rec)

	if len(w.buf) >= w.bufferSize {
		return w.flush()
	}
	return nil
}

// orderedColumns returns the observed fields with id and status first
// and the rest sorted, so the header is deterministic.
func (w *csvWriter) orderedColumns() []string {
	columns := []string{}
	for field := range w.fieldSet {
		if field == "id" || field == "status" {
			continue
		}
		columns = append(columns, field)
	}
	sort.Strings(columns)

	head := []string{}
	if w.fieldSet["id"] {
		head = append(head, "id")
	}
	if w.fieldSet["status"] {
		head = append(head, "status")
	}
	return append(head, columns...)
}

func (w *csvWriter) flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	if err := w.initFile(); err != nil {
		return err
	}

	if !w.headerWritten {
		w.columns = w.orderedColumns()
		if err := w.csv.Write(w.columns); err != nil {
			return err
		}
		w.headerWritten = true
	}

	for _, rec := range w.buf {
		row := make([]string, len(w.columns))
		for i, column := range w.columns {
			row[i] = renderValue(rec[column])
		}
		if err := w.csv.Write(row); err != nil {
			return err
		}
	}
	w.buf = w.buf[:0]

	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return err
	}

	exportFlushesTotal.WithLabelValues("csv").Inc()
	return nil
}

func (w *csvWriter) Finalize() error {
	if err := w.flush(); err != nil {
		return err
	}
	// Zero records: still leave an (empty) artifact behind.
	if err := w.initFile(); err != nil {
		return err
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return err
	}
	return w.file.Close()
}

// renderValue converts a record value to its CSV cell text.
func renderValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []string:
		return strings.Join(val, ",")
	case int:
		return strconv.Itoa(val)
	default:
		return fmt.Sprint(val)
	}
}
