package diagnosis

// Test Plan:
// - two-column rows load, whitespace trimmed, line numbers kept across
//   multi-line quoted fields
// - an empty line anywhere, trailing ones included, fails the input
// - a three-column row fails its file with ErrMissingRequiredField and none of
//   that file's rows survive, other files still load
// - duplicate patients warn and the later row wins, within and across files
// - unbalanced quotes are a malformed document
// - a missing directory is the only fatal error

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/nodule-extract/internal/discovery"
	"github.com/mvp-joe/nodule-extract/internal/errors"
	"github.com/mvp-joe/nodule-extract/internal/logging"
	"github.com/mvp-joe/nodule-extract/internal/metrics"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func newLoader(t *testing.T, buf *bytes.Buffer) *Loader {
	t.Helper()
	d, err := discovery.New(discovery.DefaultDiagnosisPatterns, nil)
	require.NoError(t, err)
	return &Loader{
		Discovery: d,
		Logger:    logging.NewWriter(buf, zerolog.DebugLevel),
		Metrics:   metrics.New(),
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	rows, err := Parse(strings.NewReader("LIDC-IDRI-0068, 3\n\"LIDC\nIDRI\",2\nLIDC-IDRI-0071,1"))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Row{PatientID: "LIDC-IDRI-0068", Code: "3", Line: 1}, rows[0])
	assert.Equal(t, "LIDC\nIDRI", rows[1].PatientID)
	assert.Equal(t, "LIDC-IDRI-0071", rows[2].PatientID)
	assert.Equal(t, 4, rows[2].Line)

	rows, err = Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestParseEmptyLines(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		line  string
	}{
		{"between rows", "PT1,2\n\nPT2,1\n", "line 2"},
		{"leading", "\nPT1,2\n", "line 1"},
		{"trailing", "PT1,2\nPT2,1\n\n", "line 3"},
		{"crlf", "PT1,2\r\n\r\nPT2,1\r\n", "line 2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.True(t, errors.IsMissingRequiredField(err))
			assert.Contains(t, err.Error(), tt.line)
		})
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     string
		malformed bool
	}{
		{"three columns", "PT1,2\nPT2,1,extra\n", false},
		{"one column", "PT1\n", false},
		{"empty code", "PT1,\n", false},
		{"bare quote", "PT1,\"2\n", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Equal(t, tt.malformed, errors.IsMalformedDocument(err))
			assert.Equal(t, !tt.malformed, errors.IsMissingRequiredField(err))
		})
	}
}

func TestFileLevelAtomicity(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "a.csv", "PT1,2\nPT2,1\n")
	bad := writeFile(t, dir, "b.csv", "PT3,1\nPT4,2\nPT5,1,extra\nPT6,3\n")

	var buf bytes.Buffer
	result, err := newLoader(t, &buf).Load(dir)
	require.NoError(t, err)

	assert.Equal(t, Table{"PT1": "2", "PT2": "1"}, result.Table)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, bad, result.Failed[0].Path)
	assert.True(t, errors.IsMissingRequiredField(result.Failed[0]))
	assert.Contains(t, result.Failed[0].Error(), "line 3")
}

func TestDuplicatesLastWriteWins(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "1.csv", "PT1,1\nPT1,2\n")
	writeFile(t, dir, "2.csv", "PT1,3\n")

	var buf bytes.Buffer
	loader := newLoader(t, &buf)
	result, err := loader.Load(dir)
	require.NoError(t, err)

	code, ok := result.Table.Lookup("PT1")
	require.True(t, ok)
	assert.Equal(t, "3", code)
	assert.Equal(t, []string{"PT1"}, result.Table.Patients())

	assert.Equal(t, 2, strings.Count(buf.String(), "Duplicate diagnosis"))
	assert.Equal(t, 2.0, loader.Metrics.Value("nodules_duplicate_keys_total", map[string]string{"source": "diagnosis"}))
}

func TestLoadMissingDirectory(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	_, err := newLoader(t, &buf).Load(filepath.Join(t.TempDir(), "nope"))
	assert.True(t, errors.IsInputDirectory(err))
}
