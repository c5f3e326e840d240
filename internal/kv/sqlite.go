package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const (
	kvSchema = `
	CREATE TABLE IF NOT EXISTS kv_store (
		namespace TEXT NOT NULL,
		key TEXT NOT NULL,
		value BLOB NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (namespace, key)
	)`

	queryKVGet = `
		SELECT value FROM kv_store WHERE namespace = ? AND key = ?`

	queryKVSet = `
		INSERT INTO kv_store (namespace, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`

	queryKVDelete = `
		DELETE FROM kv_store WHERE namespace = ? AND key = ?`

	queryKVClear = `
		DELETE FROM kv_store WHERE namespace = ?`
)

// SQLiteBackend keeps mirror entries in a single kv_store table.
type SQLiteBackend struct {
	db        *sql.DB
	namespace string
}

// OpenSQLite opens (or creates) the database file at path.
func OpenSQLite(ctx context.Context, path, namespace string) (*SQLiteBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("kv path cannot be empty")
	}

	zap.L().Info("Opening kv mirror", zap.String("backend", "sqlite"), zap.String("file", path))
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("unable to open kv database: %w", err)
	}
	db.SetMaxOpenConns(1)

	backend, err := NewSQLiteBackend(ctx, db, namespace)
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			zap.L().Warn("Failed to close kv database", zap.Error(closeErr))
		}
		return nil, err
	}
	return backend, nil
}

// NewSQLiteBackend uses an already opened handle and ensures the table exists.
func NewSQLiteBackend(ctx context.Context, db *sql.DB, namespace string) (*SQLiteBackend, error) {
	if _, err := db.ExecContext(ctx, kvSchema); err != nil {
		return nil, fmt.Errorf("unable to initialize kv schema: %w", err)
	}
	return &SQLiteBackend{db: db, namespace: namespace}, nil
}

func (b *SQLiteBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := b.db.QueryRowContext(ctx, queryKVGet, b.namespace, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", key, ErrKeyNotFound)
		}
		return nil, fmt.Errorf("unable to read key %s: %w", key, err)
	}
	return value, nil
}

func (b *SQLiteBackend) Set(ctx context.Context, key string, value []byte) error {
	if _, err := b.db.ExecContext(ctx, queryKVSet, b.namespace, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("unable to write key %s: %w", key, err)
	}
	return nil
}

func (b *SQLiteBackend) Delete(ctx context.Context, key string) error {
	if _, err := b.db.ExecContext(ctx, queryKVDelete, b.namespace, key); err != nil {
		return fmt.Errorf("unable to delete key %s: %w", key, err)
	}
	return nil
}

func (b *SQLiteBackend) Clear(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, queryKVClear, b.namespace); err != nil {
		return fmt.Errorf("unable to clear namespace %s: %w", b.namespace, err)
	}
	return nil
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
