// Package sqlitekv implements the kv contract on a single SQLite file.
package sqlitekv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rcliao/memhive/internal/kv"
)

// Store implements kv.Store using SQLite.
type Store struct {
	db *sql.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// A single connection serializes writers; SQLite allows only one anyway.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS buckets (
		name       TEXT PRIMARY KEY,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS entries (
		bucket     TEXT NOT NULL REFERENCES buckets(name),
		key        TEXT NOT NULL,
		value      BLOB NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (bucket, key)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Bucket(ctx context.Context, name string) (kv.Bucket, error) {
	var found string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM buckets WHERE name = ?`, name).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kv.ErrBucketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", name, err)
	}
	return &bucket{db: s.db, name: name}, nil
}

func (s *Store) CreateBucket(ctx context.Context, name string) (kv.Bucket, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO buckets (name, created_at) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		name, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("create bucket %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("create bucket %s: %w", name, err)
	}
	if n == 0 {
		return nil, kv.ErrBucketExists
	}
	return &bucket{db: s.db, name: name}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type bucket struct {
	db   *sql.DB
	name string
}

func (b *bucket) Name() string { return b.name }

func (b *bucket) Get(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := b.db.QueryRowContext(ctx,
		`SELECT value FROM entries WHERE bucket = ? AND key = ?`, b.name, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kv.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", b.name, key, err)
	}
	return v, nil
}

func (b *bucket) Put(ctx context.Context, key string, value []byte) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO entries (bucket, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(bucket, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		b.name, key, value, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", b.name, key, err)
	}
	return nil
}

func (b *bucket) Delete(ctx context.Context, key string) (bool, error) {
	res, err := b.db.ExecContext(ctx, `DELETE FROM entries WHERE bucket = ? AND key = ?`, b.name, key)
	if err != nil {
		return false, fmt.Errorf("delete %s/%s: %w", b.name, key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete %s/%s: %w", b.name, key, err)
	}
	return n > 0, nil
}

func (b *bucket) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT key FROM entries
		 WHERE bucket = ? AND substr(CAST(key AS BLOB), 1, ?) = CAST(? AS BLOB)
		 ORDER BY key`,
		b.name, len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s/%s*: %w", b.name, prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
