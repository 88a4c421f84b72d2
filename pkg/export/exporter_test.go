package export

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExporterUnsupportedExtension(t *testing.T) {
	e := New(filepath.Join(t.TempDir(), "out.xml"), 10)

	err := e.SaveChunk(testRecord(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")
}

func TestExporterBackendSelection(t *testing.T) {
	tests := []struct {
		name string
		file string
	}{
		{"json", "out.json"},
		{"csv", "out.csv"},
		{"parquet", "out.parquet"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			e := New(path, 10)

			require.NoError(t, e.SaveChunk(testRecord(1)))
			require.NoError(t, e.Finalize())

			_, err := os.Stat(path)
			assert.NoError(t, err, "artifact must exist after finalize")
		})
	}
}

// Finalize on a never-used exporter must still produce a well-formed
// (possibly empty) artifact and not fail.
func TestExporterFinalizeWithoutData(t *testing.T) {
	for _, ext := range []string{"json", "csv", "parquet"} {
		t.Run(ext, func(t *testing.T) {
			e := New(filepath.Join(t.TempDir(), "out."+ext), 10)
			assert.NoError(t, e.Finalize())
		})
	}
}

func TestExporterFinalizeIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	e := New(path, 10)

	require.NoError(t, e.SaveChunk(testRecord(1)))
	require.NoError(t, e.Finalize())
	require.NoError(t, e.Finalize())

	require.Len(t, parseArray(t, path), 1)
}

func TestExporterCaseInsensitiveExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.JSON")
	e := New(path, 10)

	require.NoError(t, e.SaveChunk(testRecord(1)))
	require.NoError(t, e.Finalize())
}
