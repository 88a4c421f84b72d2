package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/habr-tools/habr-ingest/pkg/record"
)

// jsonWriter streams records as one JSON array. Serialized fragments
// accumulate in memory and are appended to the open file in
// buffer-sized groups, so the artifact grows incrementally without the
// full record set ever being resident.
type jsonWriter struct {
	path       string
	bufferSize int
	buf        []string
	firstItem  bool
	file       *os.File
}

func newJSONWriter(path string, bufferSize int) *jsonWriter {
	return &jsonWriter{
		path:       path,
		bufferSize: bufferSize,
		firstItem:  true,
	}
}

// initFile opens the artifact and writes the array opener.
func (w *jsonWriter) initFile() error {
	if w.file != nil {
		return nil
	}

	file, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("create %s: %w", w.path, err)
	}
	if _, err := file.WriteString("[\n"); err != nil {
		file.Close()
		return err
	}

	w.file = file
	return nil
}

func (w *jsonWriter) SaveChunk(rec record.Record) error {
	if err := w.initFile(); err != nil {
		return err
	}

	fragment, err := marshalRecord(rec)
	if err != nil {
		return err
	}

	// The separator precedes every element after the first, so the
	// array never ends with a dangling comma.
	if w.firstItem {
		w.firstItem = false
	} else {
		fragment = ",\n" + fragment
	}
	w.buf = append(w.buf, fragment)

	if len(w.buf) >= w.bufferSize {
		return w.flush()
	}
	return nil
}

func (w *jsonWriter) flush() error {
	if len(w.buf) == 0 || w.file == nil {
		return nil
	}

	for _, fragment := range w.buf {
		if _, err := w.file.WriteString(fragment); err != nil {
			return err
		}
	}
	w.buf = w.buf[:0]

	exportFlushesTotal.WithLabelValues("json").Inc()
	return nil
}

func (w *jsonWriter) Finalize() error {
	if err := w.initFile(); err != nil {
		return err
	}
	if err := w.flush(); err != nil {
		return err
	}
	if _, err := w.file.WriteString("\n]"); err != nil {
		return err
	}
	return w.file.Close()
}

// marshalRecord serializes a record without HTML escaping, matching the
// document text as fetched.
func marshalRecord(rec record.Record) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rec); err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}
