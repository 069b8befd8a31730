package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/topkapi/blobstore"
)

const schema = `CREATE TABLE IF NOT EXISTS topkapi_snapshots (
	name       TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	size       INTEGER NOT NULL,
	updated_at TEXT NOT NULL
)`

// Store implements blobstore.BlobStore on a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}

	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		schema,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: init %s: %w", path, err)
		}
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Open returns a blob that reads row ranges on demand.
func (s *Store) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	var size int64
	err := s.db.QueryRowContext(ctx,
		`SELECT size FROM topkapi_snapshots WHERE name = ?`, name).Scan(&size)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", blobstore.ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return &blob{db: s.db, name: name, size: size}, nil
}

// Put inserts or replaces a row in one statement.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO topkapi_snapshots (name, data, size, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET data = excluded.data, size = excluded.size, updated_at = excluded.updated_at`,
		name, data, len(data), time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

// Delete removes a row. Missing rows are not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM topkapi_snapshots WHERE name = ?`, name)
	return err
}

// List returns names starting with prefix in lexical order.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM topkapi_snapshots WHERE substr(name, 1, ?) = ? ORDER BY name`,
		len(prefix), prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

type blob struct {
	db   *sql.DB
	name string
	size int64
}

func (b *blob) Size() int64 { return b.size }

func (b *blob) Close() error { return nil }

// ReadAt uses substr, which is byte-indexed (1-based) for BLOB values.
func (b *blob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("sqlite: negative offset %d", off)
	}
	if len(p) == 0 {
		return 0, nil
	}
	if off >= b.size {
		return 0, io.EOF
	}

	var chunk []byte
	err := b.db.QueryRowContext(ctx,
		`SELECT substr(data, ?, ?) FROM topkapi_snapshots WHERE name = ?`,
		off+1, len(p), b.name).Scan(&chunk)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", blobstore.ErrNotFound, b.name)
	}
	if err != nil {
		return 0, err
	}

	n := copy(p, chunk)
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
