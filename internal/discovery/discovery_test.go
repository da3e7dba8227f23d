package discovery

// Test Plan:
// - root-level and nested files both match "**/*.ext" patterns
// - matching ignores case of extensions
// - ignore patterns skip whole directories and single files
// - the .nodules state directory is always skipped
// - a missing root is an error, invalid patterns fail at construction
// - Matches applies the same rules to a single, possibly removed, path

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, name := range names {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	}
}

func rel(t *testing.T, root string, paths []string) []string {
	t.Helper()
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		r, err := filepath.Rel(root, p)
		require.NoError(t, err)
		out = append(out, filepath.ToSlash(r))
	}
	return out
}

func TestDiscover(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFiles(t, root,
		"069.xml",
		"tcia-lidc-xml/157/158.XML",
		"tcia-lidc-xml/157/notes.txt",
		"skip/ignored.xml",
		".nodules/cache.xml",
	)

	d, err := New(DefaultAnnotationPatterns, []string{"skip/**"})
	require.NoError(t, err)

	files, err := d.Discover(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"069.xml", "tcia-lidc-xml/157/158.XML"}, rel(t, root, files))
}

func TestDiscoverIgnoreFile(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFiles(t, root, "a/1.dcm", "a/2.dcm", "b/.DS_Store")

	d, err := New([]string{"**/*.dcm", "**/.DS_Store"}, []string{"**/2.dcm", "**/.DS_Store"})
	require.NoError(t, err)

	files, err := d.Discover(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"a/1.dcm"}, rel(t, root, files))
}

func TestDiscoverMissingRoot(t *testing.T) {
	t.Parallel()

	d, err := New(DefaultDiagnosisPatterns, nil)
	require.NoError(t, err)

	_, err = d.Discover(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestNewInvalidPattern(t *testing.T) {
	t.Parallel()

	_, err := New([]string{"[unterminated"}, nil)
	assert.Error(t, err)
}

func TestMatches(t *testing.T) {
	t.Parallel()

	d, err := New(DefaultImagePatterns, []string{"scratch/**"})
	require.NoError(t, err)

	root := "/data/images"
	assert.True(t, d.Matches(root, "/data/images/1.dcm"))
	assert.True(t, d.Matches(root, "/data/images/LIDC-IDRI-0001/IMG.DCM"))
	assert.False(t, d.Matches(root, "/data/images/notes.txt"))
	assert.False(t, d.Matches(root, "/data/images/scratch/a/1.dcm"))
	assert.False(t, d.Matches(root, "/data/images/.nodules/1.dcm"))
	assert.False(t, d.Matches(root, "/data/other/1.dcm"))
	assert.False(t, d.Matches(root, root))
}
