package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteMirror stores owner blobs in the mirrors table of a SQLite database.
type SQLiteMirror struct {
	db            *sql.DB
	schemaVersion uint
}

func NewSQLiteMirror(dbPath string) (*SQLiteMirror, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// modernc sqlite serializes writers anyway; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteMirror{db: db, schemaVersion: version}, nil
}

// SchemaVersion is the migration version applied when the mirror was opened.
func (r *SQLiteMirror) SchemaVersion() uint { return r.schemaVersion }

func (r *SQLiteMirror) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteMirror) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteMirror) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var blob []byte
	err := r.db.QueryRowContext(ctx, `SELECT payload FROM mirrors WHERE key = ?`, key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get mirror %q: %w", key, err)
	}
	return blob, true, nil
}

func (r *SQLiteMirror) Set(ctx context.Context, key string, blob []byte) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO mirrors (key, payload, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		key, blob, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set mirror %q: %w", key, err)
	}

	slog.DebugContext(ctx, "Mirror written", "key", key, "bytes", len(blob))
	return nil
}

// Keys lists every owner key with a stored blob.
func (r *SQLiteMirror) Keys(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key FROM mirrors ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list mirrors: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan mirror key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
