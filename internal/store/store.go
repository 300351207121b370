// Package store provides the local SQLite replica of feed items and user
// state. Schema upgrades are version-gated so reopening an already-migrated
// database is a no-op.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/0x0BSoD/feedSync/internal/model"
)

// schemaVersion is the current schema version, tracked via PRAGMA user_version.
const schemaVersion = 3

type Store struct {
	db *sqlx.DB
}

// Open opens or creates the SQLite database at path and runs pending
// migrations. An open or migration failure is returned to the caller;
// there is no fallback to an empty in-memory cache.
func Open(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// WAL keeps readers from blocking the short batched write transactions.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies schema steps in order. Each step only runs when the stored
// version is below it, so repeated upgrades are safe.
func (s *Store) migrate() error {
	var version int
	if err := s.db.Get(&version, "PRAGMA user_version"); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}

	steps := []struct {
		version int
		stmts   string
	}{
		{1, `
			CREATE TABLE IF NOT EXISTS items (
				id TEXT PRIMARY KEY,
				title TEXT NOT NULL DEFAULT '',
				link TEXT NOT NULL DEFAULT '',
				published_at TEXT NOT NULL DEFAULT '',
				description TEXT NOT NULL DEFAULT '',
				source TEXT NOT NULL DEFAULT '',
				last_synced_at INTEGER NOT NULL DEFAULT 0
			);
			CREATE INDEX IF NOT EXISTS idx_items_last_synced ON items(last_synced_at);
		`},
		{2, `
			CREATE TABLE IF NOT EXISTS user_state (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL
			);
		`},
		{3, `
			CREATE TABLE IF NOT EXISTS pending_ops (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				op_type TEXT NOT NULL,
				payload TEXT NOT NULL,
				enqueued_at TIMESTAMP NOT NULL
			);
		`},
	}

	for _, step := range steps {
		if version >= step.version {
			continue
		}
		tx, err := s.db.Beginx()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", step.version, err)
		}
		if _, err := tx.Exec(step.stmts); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", step.version, err)
		}
		// PRAGMA does not take bind parameters.
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", step.version)); err != nil {
			tx.Rollback()
			return fmt.Errorf("bump user_version to %d: %w", step.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", step.version, err)
		}
		version = step.version
	}

	return nil
}

// --- Item methods ---

// GetItem returns the item with the given id, or nil if it is not stored.
func (s *Store) GetItem(ctx context.Context, id string) (*model.Item, error) {
	var it model.Item
	err := s.db.GetContext(ctx, &it,
		`SELECT id, title, link, published_at, description, source, last_synced_at
		 FROM items WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (s *Store) GetAllItems(ctx context.Context) ([]model.Item, error) {
	var items []model.Item
	err := s.db.SelectContext(ctx, &items,
		`SELECT id, title, link, published_at, description, source, last_synced_at
		 FROM items`)
	return items, err
}

func (s *Store) CountItems(ctx context.Context) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM items")
	return n, err
}

// UpsertItems writes a batch of items in a single transaction. An existing
// row with the same id is replaced, including its last_synced_at.
func (s *Store) UpsertItems(ctx context.Context, items []model.Item) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	for _, it := range items {
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO items (id, title, link, published_at, description, source, last_synced_at)
			VALUES (:id, :title, :link, :published_at, :description, :source, :last_synced_at)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				link = excluded.link,
				published_at = excluded.published_at,
				description = excluded.description,
				source = excluded.source,
				last_synced_at = excluded.last_synced_at`, it); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// DeleteItems removes the given ids in a single transaction.
func (s *Store) DeleteItems(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In("DELETE FROM items WHERE id IN (?)", ids)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	return err
}

// TouchItems refreshes last_synced_at for the given ids without re-fetching
// content, keeping their staleness clock current.
func (s *Store) TouchItems(ctx context.Context, ids []string, serverTime int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In("UPDATE items SET last_synced_at = ? WHERE id IN (?)", serverTime, ids)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	return err
}

// --- Pending operation methods ---

// AppendOp persists a queued operation at the tail of the pending queue.
func (s *Store) AppendOp(ctx context.Context, op model.PendingOp) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO pending_ops (op_type, payload, enqueued_at) VALUES (?, ?, ?)",
		op.Type, string(op.Payload), op.EnqueuedAt)
	return err
}

// TakeOps atomically claims and removes all currently queued operations,
// returning them in enqueue order. A concurrent TakeOps sees an empty queue.
func (s *Store) TakeOps(ctx context.Context) ([]model.PendingOp, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	var ops []model.PendingOp
	if err := tx.SelectContext(ctx, &ops,
		"SELECT id, op_type, payload, enqueued_at FROM pending_ops ORDER BY id"); err != nil {
		tx.Rollback()
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM pending_ops"); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ops, nil
}

func (s *Store) CountOps(ctx context.Context) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM pending_ops")
	return n, err
}
