package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// NewTestDB creates an in-memory stage database for testing.
// Cleanup is registered with t.Cleanup().
//
// Example:
//
//	func TestSomething(t *testing.T) {
//	    db := cache.NewTestDB(t)
//	    // ... test code ...
//	}
func NewTestDB(t testing.TB) *DB {
	t.Helper()

	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// SetClock replaces the time source. Tests use it to age entries.
func (d *DB) SetClock(now func() time.Time) {
	d.now = now
}
