package cache

// Test Plan:
// 1. GetCacheKey is stable for relative and absolute spellings of a path
// 2. Put/Get round trip, Invalidate and Clear
// 3. Entries persist across reopening a file database
// 4. Load computes on a miss, serves from the cache on a hit
// 5. Load recomputes when an entry cannot be decoded, and does not cache compute errors
// 6. Nop never hits
// 7. schema version is recorded

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCacheKey(t *testing.T) {
	t.Parallel()

	abs, err := filepath.Abs("testdata/annotations")
	require.NoError(t, err)

	assert.Equal(t, GetCacheKey("annotations", abs), GetCacheKey("annotations", "testdata/annotations"))
	assert.Equal(t, GetCacheKey("annotations", abs), GetCacheKey("annotations", abs+"/"))
	assert.NotEqual(t, GetCacheKey("annotations", abs), GetCacheKey("diagnosis", abs))
	assert.Len(t, GetCacheKey("images", "/data"), len("images-")+16)
}

func TestPutGet(t *testing.T) {
	t.Parallel()

	db := NewTestDB(t)

	_, ok, err := db.Get("images", "/data/dicom")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.Put("images", "/data/dicom", []byte("v1")))
	require.NoError(t, db.Put("images", "/data/dicom", []byte("v2")))

	data, ok, err := db.Get("images", "/data/dicom")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), data)

	require.NoError(t, db.Invalidate("images", "/data/dicom"))
	_, ok, _ = db.Get("images", "/data/dicom")
	assert.False(t, ok)

	require.NoError(t, db.Put("a", "/x", []byte("1")))
	require.NoError(t, db.Put("b", "/x", []byte("2")))
	n, err := db.Clear()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestOpenDatabasePersists(t *testing.T) {
	t.Parallel()

	c := NewCache(filepath.Join(t.TempDir(), "cache"))
	db, err := c.OpenDatabase()
	require.NoError(t, err)
	require.NoError(t, db.Put("diagnosis", "/csv", []byte("table")))
	require.NoError(t, db.Close())

	_, err = os.Stat(c.DatabasePath())
	require.NoError(t, err)

	db, err = c.OpenDatabase()
	require.NoError(t, err)
	defer db.Close()

	data, ok, err := db.Get("diagnosis", "/csv")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("table"), data)

	version, err := db.GetSchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, version)
}

type payload struct {
	Names []string `json:"names"`
}

func TestLoad(t *testing.T) {
	t.Parallel()

	db := NewTestDB(t)
	calls := 0
	compute := func() (payload, error) {
		calls++
		return payload{Names: []string{"a", "b"}}, nil
	}

	v, hit, err := Load(db, zerolog.Nop(), "annotations", "/xml", compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []string{"a", "b"}, v.Names)

	v, hit, err = Load(db, zerolog.Nop(), "annotations", "/xml", compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, []string{"a", "b"}, v.Names)
	assert.Equal(t, 1, calls)
}

func TestLoadUndecodableEntry(t *testing.T) {
	t.Parallel()

	db := NewTestDB(t)
	require.NoError(t, db.Put("images", "/dcm", []byte("{not json")))

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	v, hit, err := Load(db, logger, "images", "/dcm", func() (payload, error) {
		return payload{Names: []string{"fresh"}}, nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, []string{"fresh"}, v.Names)
	assert.Contains(t, buf.String(), "undecodable")

	data, ok, err := db.Get("images", "/dcm")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"names":["fresh"]}`, string(data))
}

func TestLoadComputeError(t *testing.T) {
	t.Parallel()

	db := NewTestDB(t)
	_, _, err := Load(db, zerolog.Nop(), "images", "/dcm", func() (payload, error) {
		return payload{}, fmt.Errorf("boom")
	})
	require.Error(t, err)

	_, ok, err := db.Get("images", "/dcm")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNop(t *testing.T) {
	t.Parallel()

	var s Store = Nop{}
	require.NoError(t, s.Put("a", "/b", []byte("c")))
	_, ok, err := s.Get("a", "/b")
	require.NoError(t, err)
	assert.False(t, ok)

	calls := 0
	for i := 0; i < 2; i++ {
		_, hit, err := Load(s, zerolog.Nop(), "a", "/b", func() (int, error) {
			calls++
			return 1, nil
		})
		require.NoError(t, err)
		assert.False(t, hit)
	}
	assert.Equal(t, 2, calls)
}
