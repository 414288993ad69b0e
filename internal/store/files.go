package store

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/stockmaster/stocksync/internal/schema"
)

const slotExt = ".json"

// rename is swapped in tests to fail a commit part way.
var rename = os.Rename

// Files is a Store keeping each slot in <dir>/<slot>.json.
//
// Writes go to a temporary file in the same directory and are renamed into
// place. PutAll stages every file before renaming any of them, so a failure
// while staging leaves the directory untouched.
type Files struct {
	dir string

	mu sync.Mutex
	// own holds the digest of the last content this process wrote per slot,
	// or a zero digest for slots it deleted. The watcher uses it to tell
	// external edits from our own writes.
	own map[schema.Slot][sha256.Size]byte
}

// OpenFiles opens (creating if needed) a slot directory.
func OpenFiles(dir string) (*Files, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &Files{
		dir: dir,
		own: make(map[schema.Slot][sha256.Size]byte),
	}, nil
}

// Dir returns the slot directory.
func (f *Files) Dir() string {
	return f.dir
}

func (f *Files) path(slot schema.Slot) string {
	return filepath.Join(f.dir, slot.String()+slotExt)
}

// Get implements Store.
func (f *Files) Get(_ context.Context, slot schema.Slot) ([]byte, bool, error) {
	data, err := os.ReadFile(f.path(slot))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read slot %s: %w", slot, err)
	}
	return data, true, nil
}

// Put implements Store.
func (f *Files) Put(ctx context.Context, slot schema.Slot, value []byte) error {
	return f.PutAll(ctx, map[schema.Slot][]byte{slot: value})
}

// PutAll implements Store.
func (f *Files) PutAll(ctx context.Context, values map[schema.Slot][]byte) error {
	for slot, v := range values {
		if err := checkJSON(slot, v); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	order := sortedSlots(values)
	staged := make(map[schema.Slot]string, len(values))
	cleanup := func() {
		for _, tmp := range staged {
			_ = os.Remove(tmp)
		}
	}

	for _, slot := range order {
		if err := ctx.Err(); err != nil {
			cleanup()
			return err
		}
		tmp, err := f.stage(slot, values[slot])
		if err != nil {
			cleanup()
			return err
		}
		staged[slot] = tmp
	}

	// Current contents, so renames already done can be undone. A slot
	// missing from prev did not exist.
	prev := make(map[schema.Slot][]byte, len(values))
	for _, slot := range order {
		data, err := os.ReadFile(f.path(slot))
		switch {
		case err == nil:
			prev[slot] = data
		case errors.Is(err, fs.ErrNotExist):
		default:
			cleanup()
			return fmt.Errorf("failed to read slot %s: %w", slot, err)
		}
	}

	committed := make([]schema.Slot, 0, len(order))
	for _, slot := range order {
		if err := rename(staged[slot], f.path(slot)); err != nil {
			cleanup()
			if rerr := f.restore(committed, prev); rerr != nil {
				return fmt.Errorf("failed to commit slot %s: %w (rollback failed: %v)", slot, err, rerr)
			}
			return fmt.Errorf("failed to commit slot %s: %w", slot, err)
		}
		delete(staged, slot)
		committed = append(committed, slot)
	}

	for _, slot := range order {
		f.own[slot] = sha256.Sum256(values[slot])
	}
	return nil
}

// restore puts back the previous contents of slots. Called with f.mu held.
func (f *Files) restore(slots []schema.Slot, prev map[schema.Slot][]byte) error {
	var errs []error
	for _, slot := range slots {
		data, existed := prev[slot]
		if !existed {
			if err := os.Remove(f.path(slot)); err != nil && !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
			f.own[slot] = [sha256.Size]byte{}
			continue
		}
		tmp, err := f.stage(slot, data)
		if err == nil {
			err = rename(tmp, f.path(slot))
		}
		if err != nil {
			_ = os.Remove(tmp)
			errs = append(errs, err)
			continue
		}
		f.own[slot] = sha256.Sum256(data)
	}
	return errors.Join(errs...)
}

func (f *Files) stage(slot schema.Slot, value []byte) (string, error) {
	tmp, err := os.CreateTemp(f.dir, "."+slot.String()+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to stage slot %s: %w", slot, err)
	}
	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to stage slot %s: %w", slot, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to sync slot %s: %w", slot, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to close slot %s: %w", slot, err)
	}
	return tmp.Name(), nil
}

// Delete implements Store.
func (f *Files) Delete(_ context.Context, slots ...schema.Slot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, slot := range slots {
		err := os.Remove(f.path(slot))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to delete slot %s: %w", slot, err)
		}
		f.own[slot] = [sha256.Size]byte{}
	}
	return nil
}

// Close implements Store.
func (f *Files) Close() error {
	return nil
}

// ownWrite reports whether the current on-disk state of slot is the one
// this process last produced. data is nil when the file is absent.
func (f *Files) ownWrite(slot schema.Slot, data []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	sum, ok := f.own[slot]
	if !ok {
		return false
	}
	if data == nil {
		return sum == [sha256.Size]byte{}
	}
	return sum == sha256.Sum256(data)
}

// slotFromPath maps <dir>/<slot>.json back to a slot name.
func (f *Files) slotFromPath(path string) (schema.Slot, bool) {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || !strings.HasSuffix(base, slotExt) {
		return "", false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	absDir, err := filepath.Abs(f.dir)
	if err != nil || filepath.Dir(absPath) != absDir {
		return "", false
	}
	return schema.Slot(strings.TrimSuffix(base, slotExt)), true
}
