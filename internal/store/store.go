// Package store provides the local key-value store the UI layer edits and
// the sync core reads and overwrites.
//
// The store holds one JSON document per named slot (see schema.Slot). It is
// pure persistence: no validation beyond "is this JSON", no business rules.
//
// Backends:
//   - SQLite: a single slots table in WAL mode (default, .stocksync/store.db)
//   - Files: one <slot>.json file per slot in a directory, editable by hand
//     and watched for external changes
//   - Memory: process-local, used by tests and one-shot commands
//
// PutAll is all-or-nothing on every backend: a sync response is either
// committed in full or not at all. SQLite and Memory commit in one step;
// Files renames slot by slot and puts back the slots already renamed when
// a later rename fails. A crash in the middle of a Files commit can still
// leave a mix.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stockmaster/stocksync/internal/schema"
)

// Store is the local slot store.
type Store interface {
	// Get returns the JSON document held in slot. ok is false when the slot
	// has never been written or was deleted.
	Get(ctx context.Context, slot schema.Slot) (value []byte, ok bool, err error)

	// Put replaces the document held in slot.
	Put(ctx context.Context, slot schema.Slot, value []byte) error

	// PutAll replaces every slot in values atomically.
	PutAll(ctx context.Context, values map[schema.Slot][]byte) error

	// Delete removes slots. Deleting an absent slot is not an error.
	Delete(ctx context.Context, slots ...schema.Slot) error

	// Close releases the backend.
	Close() error
}

// Backend names a store implementation.
type Backend string

const (
	BackendSQLite Backend = "sqlite"
	BackendFiles  Backend = "files"
	BackendMemory Backend = "memory"
)

// ErrInvalidJSON is returned when a value written to a slot is not a JSON
// document.
var ErrInvalidJSON = errors.New("slot value is not valid JSON")

// ParseBackend maps a configuration string to a Backend.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case BackendSQLite, BackendFiles, BackendMemory:
		return b, nil
	case "":
		return BackendSQLite, nil
	}
	return "", fmt.Errorf("unknown store backend %q (want sqlite, files or memory)", s)
}

// Open opens the backend at path. For BackendFiles path is a directory;
// for BackendSQLite it is the database file. BackendMemory ignores path.
func Open(ctx context.Context, backend Backend, path string) (Store, error) {
	switch backend {
	case BackendSQLite, "":
		db, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		if err := db.InitSchemaContext(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	case BackendFiles:
		return OpenFiles(path)
	case BackendMemory:
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", backend)
}

func checkJSON(slot schema.Slot, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("failed to write slot %s: %w", slot, ErrInvalidJSON)
	}
	return nil
}
