// Package cache memoizes pipeline stages. Each stage result is an opaque
// blob keyed by the stage name and the directory it was computed from, so
// a re-run skips stages whose inputs were already loaded.
package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// SchemaVersion is the version of the cache database layout.
const SchemaVersion = "1"

// Store is the get/put contract stages are memoized through.
type Store interface {
	// Get returns the blob stored for (stage, source).
	Get(stage, source string) ([]byte, bool, error)

	// Put stores a blob for (stage, source), replacing any previous one.
	Put(stage, source string, data []byte) error

	// Invalidate drops the blob stored for (stage, source).
	Invalidate(stage, source string) error
}

// Cache manages the cache directory location.
// Encapsulates the cache root directory to avoid environment variable pollution in tests.
type Cache struct {
	// cacheRoot is the root directory for all cache data.
	// If empty, defaults to ~/.nodules/cache
	cacheRoot string
}

// NewCache creates a new Cache instance.
// If cacheRoot is empty, defaults to ~/.nodules/cache
func NewCache(cacheRoot string) *Cache {
	return &Cache{cacheRoot: cacheRoot}
}

// GetCachePath returns the cache directory.
func (c *Cache) GetCachePath() string {
	root := c.cacheRoot
	if root == "" {
		home, _ := os.UserHomeDir()
		root = filepath.Join(home, ".nodules", "cache")
	}
	return root
}

// DatabasePath returns the location of the stage database.
func (c *Cache) DatabasePath() string {
	return filepath.Join(c.GetCachePath(), "stages.db")
}

// OpenDatabase opens the stage database, creating the directory and schema
// when needed.
//
// Database location: {cacheRoot}/stages.db
func (c *Cache) OpenDatabase() (*DB, error) {
	if err := os.MkdirAll(c.GetCachePath(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return Open(c.DatabasePath())
}

// DB is a Store backed by SQLite.
type DB struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) a stage database at path. Use ":memory:" for a
// throwaway database.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and
	// serializes writers.
	db.SetMaxOpenConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db: db, now: time.Now}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

const createEntriesTable = `
CREATE TABLE IF NOT EXISTS entries (
	key         TEXT PRIMARY KEY,
	stage       TEXT NOT NULL,
	source      TEXT NOT NULL,
	data        BLOB NOT NULL,
	size_bytes  INTEGER NOT NULL,
	created_at  INTEGER NOT NULL,
	accessed_at INTEGER NOT NULL
)`

const createCacheMetadataTable = `
CREATE TABLE IF NOT EXISTS cache_metadata (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

// createSchema creates the tables and records the schema version.
// Uses a transaction so schema creation succeeds or fails as a whole.
func createSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	defer tx.Rollback() // Safe to call even after commit

	tables := []struct {
		name string
		ddl  string
	}{
		{"entries", createEntriesTable},
		{"cache_metadata", createCacheMetadataTable},
	}
	for _, table := range tables {
		if _, err := tx.Exec(table.ddl); err != nil {
			return fmt.Errorf("failed to create %s table: %w", table.name, err)
		}
	}

	if _, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_entries_accessed ON entries(accessed_at)`); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	if _, err := tx.Exec(`INSERT OR IGNORE INTO cache_metadata (key, value) VALUES ('schema_version', ?)`, SchemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	return tx.Commit()
}

// GetSchemaVersion returns the stored schema version.
func (d *DB) GetSchemaVersion() (string, error) {
	var version string
	err := sq.Select("value").
		From("cache_metadata").
		Where(sq.Eq{"key": "schema_version"}).
		RunWith(d.db).
		QueryRow().
		Scan(&version)
	if err == sql.ErrNoRows {
		return "0", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

// Get implements Store.
func (d *DB) Get(stage, source string) ([]byte, bool, error) {
	key := GetCacheKey(stage, source)

	var data []byte
	err := sq.Select("data").
		From("entries").
		Where(sq.Eq{"key": key}).
		RunWith(d.db).
		QueryRow().
		Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry %s: %w", key, err)
	}

	_, err = sq.Update("entries").
		Set("accessed_at", d.now().UnixNano()).
		Where(sq.Eq{"key": key}).
		RunWith(d.db).
		Exec()
	if err != nil {
		return nil, false, fmt.Errorf("failed to touch cache entry %s: %w", key, err)
	}
	return data, true, nil
}

// Put implements Store.
// Uses INSERT OR REPLACE so a recomputed stage overwrites the old blob.
func (d *DB) Put(stage, source string, data []byte) error {
	key := GetCacheKey(stage, source)
	now := d.now().UnixNano()

	_, err := sq.Insert("entries").
		Columns("key", "stage", "source", "data", "size_bytes", "created_at", "accessed_at").
		Values(key, stage, normalizeSourcePath(source), data, len(data), now, now).
		Options("OR REPLACE").
		RunWith(d.db).
		Exec()
	if err != nil {
		return fmt.Errorf("failed to write cache entry %s: %w", key, err)
	}
	return nil
}

// Invalidate implements Store.
func (d *DB) Invalidate(stage, source string) error {
	return d.delete(GetCacheKey(stage, source))
}

func (d *DB) delete(key string) error {
	_, err := sq.Delete("entries").
		Where(sq.Eq{"key": key}).
		RunWith(d.db).
		Exec()
	if err != nil {
		return fmt.Errorf("failed to delete cache entry %s: %w", key, err)
	}
	return nil
}

// Clear removes every entry.
func (d *DB) Clear() (int, error) {
	res, err := sq.Delete("entries").RunWith(d.db).Exec()
	if err != nil {
		return 0, fmt.Errorf("failed to clear cache: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// EntryInfo describes one cached stage result.
type EntryInfo struct {
	Key        string
	Stage      string
	Source     string
	SizeBytes  int64
	CreatedAt  time.Time
	AccessedAt time.Time
}

// Entries lists the cached stage results, most recently used first.
func (d *DB) Entries() ([]EntryInfo, error) {
	rows, err := sq.Select("key", "stage", "source", "size_bytes", "created_at", "accessed_at").
		From("entries").
		OrderBy("accessed_at DESC", "key").
		RunWith(d.db).
		Query()
	if err != nil {
		return nil, fmt.Errorf("failed to list cache entries: %w", err)
	}
	defer rows.Close()

	entries := []EntryInfo{}
	for rows.Next() {
		var e EntryInfo
		var created, accessed int64
		if err := rows.Scan(&e.Key, &e.Stage, &e.Source, &e.SizeBytes, &created, &accessed); err != nil {
			return nil, fmt.Errorf("failed to scan cache entry: %w", err)
		}
		e.CreatedAt = time.Unix(0, created)
		e.AccessedAt = time.Unix(0, accessed)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Nop is a Store that never holds anything. Used with --no-cache.
type Nop struct{}

func (Nop) Get(stage, source string) ([]byte, bool, error) { return nil, false, nil }
func (Nop) Put(stage, source string, data []byte) error    { return nil }
func (Nop) Invalidate(stage, source string) error          { return nil }

// Load returns the value cached for (stage, source), or computes, stores
// and returns it. Cache failures and undecodable entries are logged and
// fall back to computing; only compute errors are returned. hit reports
// whether the value came from the cache.
func Load[T any](s Store, logger zerolog.Logger, stage, source string, compute func() (T, error)) (value T, hit bool, err error) {
	data, ok, err := s.Get(stage, source)
	if err != nil {
		logger.Warn().Err(err).Str("stage", stage).Msg("Cache read failed, recomputing")
	}
	if ok {
		if err := json.Unmarshal(data, &value); err == nil {
			return value, true, nil
		}
		logger.Warn().Str("stage", stage).Str("source", source).Msg("Discarding undecodable cache entry")
		var zero T
		value = zero
	}

	value, err = compute()
	if err != nil {
		return value, false, err
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		logger.Warn().Err(err).Str("stage", stage).Msg("Failed to encode stage result for the cache")
		return value, false, nil
	}
	if err := s.Put(stage, source, encoded); err != nil {
		logger.Warn().Err(err).Str("stage", stage).Msg("Cache write failed")
	}
	return value, false, nil
}
