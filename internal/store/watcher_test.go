package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stockmaster/stocksync/internal/schema"
)

func startWatcher(t *testing.T) (*Files, *Watcher) {
	t.Helper()
	f, err := OpenFiles(t.TempDir())
	if err != nil {
		t.Fatalf("OpenFiles() failed: %v", err)
	}
	w, err := NewWatcher(f)
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	t.Cleanup(func() { w.Stop() })
	return f, w
}

func TestWatcher_StartStop(t *testing.T) {
	f, err := OpenFiles(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	w, err := NewWatcher(f)
	if err != nil {
		t.Fatalf("NewWatcher() failed: %v", err)
	}
	if w.IsRunning() {
		t.Error("new watcher should not be running")
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if err := w.Start(); err == nil {
		t.Error("second Start() should fail")
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if w.IsRunning() {
		t.Error("watcher running after Stop()")
	}
}

func TestWatcher_ExternalWrite(t *testing.T) {
	f, w := startWatcher(t)

	path := filepath.Join(f.Dir(), "products.json")
	if err := os.WriteFile(path, []byte(`[{"id":-1}]`), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	select {
	case ev := <-w.Events():
		if ev.Slot != schema.SlotProducts {
			t.Errorf("Slot = %s, want products", ev.Slot)
		}
		if ev.Op != OpWrite {
			t.Errorf("Op = %v, want write", ev.Op)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for write event")
	}
}

func TestWatcher_IgnoresOwnWrites(t *testing.T) {
	f, w := startWatcher(t)
	ctx := context.Background()

	if err := f.Put(ctx, schema.SlotProducts, []byte(`[]`)); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	// Non-data slots are never reported, even when written externally.
	if err := os.WriteFile(filepath.Join(f.Dir(), "token.json"), []byte(`"abc"`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(f.Dir(), "notes.txt"), []byte(`x`), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-w.Events():
		t.Errorf("unexpected event %+v", ev)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_ExternalDelete(t *testing.T) {
	f, w := startWatcher(t)
	ctx := context.Background()

	if err := f.Put(ctx, schema.SlotCategories, []byte(`[]`)); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(f.Dir(), "categories.json")); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-w.Events():
			if ev.Slot == schema.SlotCategories && ev.Op == OpDelete {
				return
			}
		case <-deadline:
			t.Fatal("timeout waiting for delete event")
		}
	}
}
