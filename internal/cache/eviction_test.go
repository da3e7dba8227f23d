package cache

// Test Plan:
// 1. DefaultEvictionPolicy returns expected values
// 2. entries older than MaxAgeDays are evicted, recent ones stay
// 3. least recently used entries go first when the size limit is exceeded
// 4. zero limits disable eviction
// 5. Stats counts entries per stage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultEvictionPolicy(t *testing.T) {
	t.Parallel()

	policy := DefaultEvictionPolicy()
	assert.Equal(t, 30, policy.MaxAgeDays)
	assert.Equal(t, 500.0, policy.MaxSizeMB)
}

func seed(t *testing.T, db *DB, at time.Time, stage, source string, size int) {
	t.Helper()
	db.SetClock(func() time.Time { return at })
	require.NoError(t, db.Put(stage, source, make([]byte, size)))
}

func TestEvictByAge(t *testing.T) {
	t.Parallel()

	db := NewTestDB(t)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seed(t, db, now.Add(-60*24*time.Hour), "images", "/old", 10)
	seed(t, db, now.Add(-time.Hour), "images", "/new", 10)

	db.SetClock(func() time.Time { return now })
	result, err := db.Evict(EvictionPolicy{MaxAgeDays: 30})
	require.NoError(t, err)

	assert.Equal(t, []string{GetCacheKey("images", "/old")}, result.EvictedEntries)
	_, ok, _ := db.Get("images", "/new")
	assert.True(t, ok)
}

func TestEvictBySize(t *testing.T) {
	t.Parallel()

	db := NewTestDB(t)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	mb := 1024 * 1024
	seed(t, db, now.Add(-3*time.Hour), "annotations", "/a", mb)
	seed(t, db, now.Add(-2*time.Hour), "diagnosis", "/b", mb)
	seed(t, db, now.Add(-1*time.Hour), "images", "/c", mb)

	db.SetClock(func() time.Time { return now })
	result, err := db.Evict(EvictionPolicy{MaxSizeMB: 1.5})
	require.NoError(t, err)

	assert.Equal(t, []string{GetCacheKey("annotations", "/a"), GetCacheKey("diagnosis", "/b")}, result.EvictedEntries)
	assert.InDelta(t, 2.0, result.FreedMB, 0.01)
	assert.InDelta(t, 1.0, result.RemainingMB, 0.01)
}

func TestEvictDisabled(t *testing.T) {
	t.Parallel()

	db := NewTestDB(t)
	seed(t, db, time.Unix(0, 0), "images", "/ancient", 10)

	db.SetClock(time.Now)
	result, err := db.Evict(EvictionPolicy{})
	require.NoError(t, err)
	assert.Empty(t, result.EvictedEntries)
}

func TestStats(t *testing.T) {
	t.Parallel()

	db := NewTestDB(t)
	require.NoError(t, db.Put("images", "/a", []byte("x")))
	require.NoError(t, db.Put("images", "/b", []byte("y")))
	require.NoError(t, db.Put("diagnosis", "/c", []byte("z")))

	stats, err := db.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Entries)
	assert.Equal(t, map[string]int{"images": 2, "diagnosis": 1}, stats.ByStage)
}
