// Package localcache persists string-keyed JSON documents on this machine.
//
// Two scopes are kept, mirroring a browser's storage: a durable cache that survives
// restarts (an on-disk database fronted by an in-memory copy) and a session cache
// that lives only as long as the process.
package localcache

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	_ "github.com/marcboeker/go-duckdb"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/serr"
)

// Supported database drivers.
const (
	DriverDuckDB = "duckdb"
	DriverSQLite = "sqlite"
)

// Cache is a flat key-value store of serialized documents. It holds no merge logic.
type Cache interface {
	// Get returns the value and whether the key exists.
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Remove(key string) error
	// Keys lists keys matching a doublestar glob pattern, sorted.
	Keys(pattern string) ([]string, error)
}

const createKVTableSQL = `
CREATE TABLE IF NOT EXISTS kv_store (
    key        VARCHAR PRIMARY KEY,
    value      VARCHAR NOT NULL,
    updated_at BIGINT NOT NULL
)`

// Store is a Cache over a single SQL database.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens (or creates) a kv database. An empty path opens an in-memory database.
func Open(driver, path string) (*Store, error) {
	sqlDriver, dsn, err := dsnFor(driver, path)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, serr.Wrap(err, "failed to create cache directory")
		}
	}

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, serr.Wrap(err, "failed to open cache database")
	}
	// A single connection keeps in-memory databases from splitting per connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createKVTableSQL); err != nil {
		_ = db.Close()
		return nil, serr.Wrap(err, "failed to create kv table")
	}
	return &Store{db: db}, nil
}

func dsnFor(driver, path string) (sqlDriver, dsn string, err error) {
	switch driver {
	case DriverDuckDB, "":
		return "duckdb", path, nil
	case DriverSQLite:
		if path == "" {
			return "sqlite3", ":memory:", nil
		}
		return "sqlite3", "file:" + path, nil
	}
	return "", "", serr.New("unsupported cache driver: " + driver)
}

func (s *Store) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRow(`SELECT value FROM kv_store WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, serr.Wrap(err, "failed to read cache key")
	}
	return value, true, nil
}

func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT OR REPLACE INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)`,
		key, value, time.Now().UnixMilli())
	if err != nil {
		return serr.Wrap(err, "failed to write cache key")
	}
	return nil
}

func (s *Store) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM kv_store WHERE key = ?`, key); err != nil {
		return serr.Wrap(err, "failed to remove cache key")
	}
	return nil
}

func (s *Store) Keys(pattern string) ([]string, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, serr.New("invalid key pattern: " + pattern)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT key FROM kv_store ORDER BY key`)
	if err != nil {
		return nil, serr.Wrap(err, "failed to list cache keys")
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, serr.Wrap(err, "failed to scan cache key")
		}
		if ok, _ := doublestar.Match(pattern, key); ok {
			keys = append(keys, key)
		}
	}
	return keys, rows.Err()
}

// all returns every row; used to warm the in-memory copy of a durable store.
func (s *Store) all() (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT key, value FROM kv_store`)
	if err != nil {
		return nil, serr.Wrap(err, "failed to read cache rows")
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, serr.Wrap(err, "failed to scan cache row")
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

// WriteThrough serves reads from an in-memory database and writes to disk first,
// then memory. The disk copy is authoritative across restarts.
type WriteThrough struct {
	disk *Store
	mem  *Store
}

// OpenDurable opens the on-disk cache at path and warms an in-memory copy from it.
func OpenDurable(driver, path string) (*WriteThrough, error) {
	if path == "" {
		return nil, serr.New("durable cache needs a path")
	}
	disk, err := Open(driver, path)
	if err != nil {
		return nil, serr.Wrap(err, "failed to open disk cache")
	}
	mem, err := Open(driver, "")
	if err != nil {
		_ = disk.Close()
		return nil, serr.Wrap(err, "failed to open memory cache")
	}

	rows, err := disk.all()
	if err != nil {
		_ = disk.Close()
		_ = mem.Close()
		return nil, err
	}
	for k, v := range rows {
		if err := mem.Set(k, v); err != nil {
			_ = disk.Close()
			_ = mem.Close()
			return nil, serr.Wrap(err, "failed to warm memory cache")
		}
	}
	logger.Info("Local cache loaded", "driver", driver, "path", path, "keys", len(rows))

	return &WriteThrough{disk: disk, mem: mem}, nil
}

func (w *WriteThrough) Get(key string) (string, bool, error) {
	return w.mem.Get(key)
}

func (w *WriteThrough) Set(key, value string) error {
	if err := w.disk.Set(key, value); err != nil {
		return err
	}
	if err := w.mem.Set(key, value); err != nil {
		// The disk copy is written; the next open reloads it
		logger.LogErr(err, "memory cache write failed", "key", key)
	}
	return nil
}

func (w *WriteThrough) Remove(key string) error {
	if err := w.disk.Remove(key); err != nil {
		return err
	}
	if err := w.mem.Remove(key); err != nil {
		logger.LogErr(err, "memory cache remove failed", "key", key)
	}
	return nil
}

func (w *WriteThrough) Keys(pattern string) ([]string, error) {
	return w.mem.Keys(pattern)
}

func (w *WriteThrough) Close() error {
	errMem := w.mem.Close()
	if err := w.disk.Close(); err != nil {
		return serr.Wrap(err, "failed to close disk cache")
	}
	return errMem
}
