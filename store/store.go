// Package store caches compiled program images in SQLite.
//
// Images are keyed by their content hash. A second table maps a source key
// (the hash of a unit file plus the compiler settings) to the image it
// compiled to, so unchanged units are not recompiled.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chazu/classvm/pkg/bytecode"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"
)

var log = commonlog.GetLogger("classvm.store")

// ErrNotFound indicates the requested image or source key is not stored.
var ErrNotFound = errors.New("store: not found")

var schema = []string{
	"PRAGMA busy_timeout = 5000",
	`CREATE TABLE IF NOT EXISTS images (
		hash       TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		data       BLOB NOT NULL,
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sources (
		source_key TEXT PRIMARY KEY,
		image_hash TEXT NOT NULL
	)`,
}

// Entry describes a stored image.
type Entry struct {
	Hash      string
	Name      string
	Size      int
	CreatedAt time.Time
}

// Store is a SQLite-backed image cache. It is safe for concurrent use.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens or creates the store at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("store: creating %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: opening database: %w", err)
	}

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: initializing %s: %w", path, err)
		}
	}
	log.Debugf("opened image store %s", path)
	return &Store{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// HashString formats a content hash as stored in the database.
func HashString(h [32]byte) string {
	return hex.EncodeToString(h[:])
}

func short(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

// SourceKey derives the cache key of a unit's source text compiled with
// the given debug setting under the current bytecode version.
func SourceKey(source []byte, debugInfo bool) string {
	h := sha256.New()
	fmt.Fprintf(h, "classvm/%d/debug=%t\n", bytecode.BytecodeVersion, debugInfo)
	h.Write(source)
	return hex.EncodeToString(h.Sum(nil))
}

// Put stores p and returns its content hash.
func (s *Store) Put(ctx context.Context, p *bytecode.Program) (string, error) {
	data, err := bytecode.MarshalProgram(p)
	if err != nil {
		return "", fmt.Errorf("store: %w", err)
	}
	hash := HashString(sha256.Sum256(data))

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO images (hash, name, data, created_at) VALUES (?, ?, ?, ?)",
		hash, p.Name, data, time.Now().Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("store: saving image %s: %w", p.Name, err)
	}
	return hash, nil
}

// Get loads the image with the given hash.
func (s *Store) Get(ctx context.Context, hash string) (*bytecode.Program, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM images WHERE hash = ?", hash).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: querying image: %w", err)
	}
	p, err := bytecode.UnmarshalProgram(data)
	if err != nil {
		return nil, fmt.Errorf("store: image %s: %w", hash, err)
	}
	return p, nil
}

// Bind records that the source identified by key compiled to the image
// with the given hash.
func (s *Store) Bind(ctx context.Context, key, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO sources (source_key, image_hash) VALUES (?, ?)",
		key, hash,
	)
	if err != nil {
		return fmt.Errorf("store: binding source: %w", err)
	}
	return nil
}

// Lookup returns the image previously bound to key.
func (s *Store) Lookup(ctx context.Context, key string) (*bytecode.Program, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, "SELECT image_hash FROM sources WHERE source_key = ?", key).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Infof("image cache miss for %s", short(key))
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: querying source: %w", err)
	}
	log.Infof("image cache hit for %s -> %s", short(key), short(hash))
	return s.Get(ctx, hash)
}

// List returns every stored image, newest first.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT hash, name, length(data), created_at FROM images ORDER BY created_at DESC, hash")
	if err != nil {
		return nil, fmt.Errorf("store: listing images: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created int64
		if err := rows.Scan(&e.Hash, &e.Name, &e.Size, &created); err != nil {
			return nil, fmt.Errorf("store: scanning image row: %w", err)
		}
		e.CreatedAt = time.Unix(created, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Delete removes an image and every source bound to it.
func (s *Store) Delete(ctx context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM images WHERE hash = ?", hash)
	if err != nil {
		return fmt.Errorf("store: deleting image: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM sources WHERE image_hash = ?", hash); err != nil {
		return fmt.Errorf("store: deleting sources: %w", err)
	}
	return tx.Commit()
}
