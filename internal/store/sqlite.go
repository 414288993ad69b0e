package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/stockmaster/stocksync/internal/schema"
)

// SQLite is a slot store backed by an embedded SQLite database in WAL mode,
// so the UI process can read while the sync daemon commits.
type SQLite struct {
	conn *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the database at path.
//
// The caller MUST call Close() when done so the WAL is checkpointed.
// Call InitSchemaContext before first use.
func OpenSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping store: %w", err)
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &SQLite{conn: conn, path: path}

	pragmas := []struct{ stmt, what string }{
		{"PRAGMA journal_mode=WAL", "enable WAL mode"},
		{"PRAGMA busy_timeout=5000", "set busy timeout"},
		{"PRAGMA synchronous=NORMAL", "set synchronous mode"},
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p.stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to %s: %w", p.what, err)
		}
	}

	return db, nil
}

// Path returns the database file path.
func (db *SQLite) Path() string {
	return db.path
}

// InitSchemaContext creates the slots table. Safe to call repeatedly.
func (db *SQLite) InitSchemaContext(ctx context.Context) error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS slots (
		name TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`
	if _, err := db.conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Get implements Store.
func (db *SQLite) Get(ctx context.Context, slot schema.Slot) ([]byte, bool, error) {
	var value string
	err := db.conn.QueryRowContext(ctx, `SELECT value FROM slots WHERE name = ?`, slot.String()).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read slot %s: %w", slot, err)
	}
	return []byte(value), true, nil
}

// Put implements Store.
func (db *SQLite) Put(ctx context.Context, slot schema.Slot, value []byte) error {
	return db.PutAll(ctx, map[schema.Slot][]byte{slot: value})
}

// PutAll implements Store. All slots are written in one transaction.
func (db *SQLite) PutAll(ctx context.Context, values map[schema.Slot][]byte) error {
	for slot, v := range values {
		if err := checkJSON(slot, v); err != nil {
			return err
		}
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	const upsert = `
	INSERT INTO slots (name, value, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(name) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at
	`
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, slot := range sortedSlots(values) {
		if _, err := tx.ExecContext(ctx, upsert, slot.String(), string(values[slot]), now); err != nil {
			return fmt.Errorf("failed to write slot %s: %w", slot, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Delete implements Store.
func (db *SQLite) Delete(ctx context.Context, slots ...schema.Slot) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, slot := range slots {
		if _, err := tx.ExecContext(ctx, `DELETE FROM slots WHERE name = ?`, slot.String()); err != nil {
			return fmt.Errorf("failed to delete slot %s: %w", slot, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UpdatedAt returns when slot was last written.
func (db *SQLite) UpdatedAt(ctx context.Context, slot schema.Slot) (time.Time, bool, error) {
	var ts string
	err := db.conn.QueryRowContext(ctx, `SELECT updated_at FROM slots WHERE name = ?`, slot.String()).Scan(&ts)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read slot %s: %w", slot, err)
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to parse updated_at for slot %s: %w", slot, err)
	}
	return t, true, nil
}

// Close checkpoints the WAL and closes the database.
func (db *SQLite) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	db.conn = nil
	return nil
}

func sortedSlots(values map[schema.Slot][]byte) []schema.Slot {
	slots := make([]schema.Slot, 0, len(values))
	for s := range values {
		slots = append(slots, s)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })
	return slots
}
