package runlock

// Test Plan:
// - Acquire creates the output directory and the lock file
// - a second lock on the same directory fails with ErrLocked until the first is released
// - Release without Acquire is a no-op

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireCreatesDirectory(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "output")
	l := New(dir)
	require.NoError(t, l.Acquire())
	t.Cleanup(func() { l.Release() })

	assert.DirExists(t, dir)
	assert.FileExists(t, filepath.Join(dir, FileName))
	assert.Equal(t, filepath.Join(dir, FileName), l.Path())
}

func TestSecondLockFails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first := New(dir)
	require.NoError(t, first.Acquire())

	// flock locks are per file descriptor, so a second handle in the same
	// process contends like another process would.
	second := New(dir)
	err := second.Acquire()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, first.Release())
	require.NoError(t, second.Acquire())
	assert.NoError(t, second.Release())
}

func TestReleaseWithoutAcquire(t *testing.T) {
	t.Parallel()
	assert.NoError(t, New(t.TempDir()).Release())
}
