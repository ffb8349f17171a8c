// Package sqlite provides a SQLite-backed kv.Store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/papercomputeco/remem/pkg/kv"
)

// Store implements kv.Store using SQLite via github.com/mattn/go-sqlite3.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStore opens or creates the database at dbPath. Use ":memory:" for an
// in-memory database.
func NewStore(dbPath string, logger *zap.Logger) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS kv_records (
			path TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating kv table: %w", err)
	}

	logger.Info("sqlite kv store initialized",
		zap.String("db_path", dbPath),
	)

	return &Store{db: db, logger: logger}, nil
}

// Get retrieves a record, or (nil, nil) when absent.
func (s *Store) Get(ctx context.Context, namespace []string, key string) (*kv.Record, error) {
	var value []byte
	var createdMs, updatedMs int64

	err := s.db.QueryRowContext(ctx,
		`SELECT value, created_at, updated_at FROM kv_records WHERE path = ?`,
		kv.Path(namespace, key),
	).Scan(&value, &createdMs, &updatedMs)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kv.ErrStore, err)
	}

	return &kv.Record{
		Value:     json.RawMessage(value),
		CreatedAt: time.UnixMilli(createdMs),
		UpdatedAt: time.UnixMilli(updatedMs),
	}, nil
}

// Put stores a value, preserving created_at across overwrites.
func (s *Store) Put(ctx context.Context, namespace []string, key string, value json.RawMessage) error {
	now := time.Now().UnixMilli()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_records (path, value, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, kv.Path(namespace, key), []byte(value), now, now)
	if err != nil {
		return fmt.Errorf("%w: %v", kv.ErrStore, err)
	}

	return nil
}

// Delete removes a record if present.
func (s *Store) Delete(ctx context.Context, namespace []string, key string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM kv_records WHERE path = ?`, kv.Path(namespace, key),
	); err != nil {
		return fmt.Errorf("%w: %v", kv.ErrStore, err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ kv.Store = (*Store)(nil)
