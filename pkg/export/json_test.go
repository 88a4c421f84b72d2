package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habr-tools/habr-ingest/pkg/record"
)

func testRecord(id int) record.Record {
	return record.Record{
		"id":     id,
		"status": record.StatusOK,
		"title":  "Post",
		"hubs":   []string{"Go"},
	}
}

func parseArray(t *testing.T, path string) []map[string]any {
	t.Helper()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var out []map[string]any
	require.NoError(t, json.Unmarshal(data, &out), "artifact is not a valid JSON array: %s", data)
	return out
}

func TestJSONWriterArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	w := newJSONWriter(path, 2)

	for id := 1; id <= 5; id++ {
		require.NoError(t, w.SaveChunk(testRecord(id)))
	}
	require.NoError(t, w.Finalize())

	out := parseArray(t, path)
	require.Len(t, out, 5)
	assert.Equal(t, float64(1), out[0]["id"])
	assert.Equal(t, float64(5), out[4]["id"])
}

func TestJSONWriterSingleRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	w := newJSONWriter(path, 100)

	require.NoError(t, w.SaveChunk(testRecord(1)))
	require.NoError(t, w.Finalize())

	out := parseArray(t, path)
	require.Len(t, out, 1)
}

func TestJSONWriterEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	w := newJSONWriter(path, 100)

	require.NoError(t, w.Finalize())

	out := parseArray(t, path)
	assert.Empty(t, out)
}

func TestJSONWriterFlushesAtBufferSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	w := newJSONWriter(path, 2)

	require.NoError(t, w.SaveChunk(testRecord(1)))
	require.NoError(t, w.SaveChunk(testRecord(2)))

	// Two buffered fragments hit the buffer bound, so the data is on
	// disk before finalize.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"id":1`)
	assert.Contains(t, string(data), `"id":2`)

	require.NoError(t, w.Finalize())
	require.Len(t, parseArray(t, path), 2)
}

func TestJSONWriterDoesNotEscapeHTML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	w := newJSONWriter(path, 100)

	rec := record.Record{"id": 1, "status": record.StatusOK, "text": "<b>bold & loud</b>"}
	require.NoError(t, w.SaveChunk(rec))
	require.NoError(t, w.Finalize())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<b>bold & loud</b>")
}
