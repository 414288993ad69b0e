package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stockmaster/stocksync/internal/schema"
)

// backends returns one fresh store per backend.
func backends(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	sqlite, err := Open(ctx, BackendSQLite, filepath.Join(dir, "store.db"))
	if err != nil {
		t.Fatalf("Open(sqlite) failed: %v", err)
	}
	files, err := Open(ctx, BackendFiles, filepath.Join(dir, "slots"))
	if err != nil {
		t.Fatalf("Open(files) failed: %v", err)
	}
	t.Cleanup(func() {
		sqlite.Close()
		files.Close()
	})

	return map[string]Store{
		"sqlite": sqlite,
		"files":  files,
		"memory": NewMemory(),
	}
}

func TestStore_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := s.Get(ctx, schema.SlotProducts); err != nil || ok {
				t.Fatalf("Get on empty store = ok %v, err %v", ok, err)
			}

			want := `[{"id":1,"name":"Widget"}]`
			if err := s.Put(ctx, schema.SlotProducts, []byte(want)); err != nil {
				t.Fatalf("Put() failed: %v", err)
			}
			got, ok, err := s.Get(ctx, schema.SlotProducts)
			if err != nil || !ok {
				t.Fatalf("Get() = ok %v, err %v", ok, err)
			}
			if string(got) != want {
				t.Errorf("Get() = %s, want %s", got, want)
			}

			if err := s.Put(ctx, schema.SlotProducts, []byte(`[]`)); err != nil {
				t.Fatalf("overwrite failed: %v", err)
			}
			got, _, _ = s.Get(ctx, schema.SlotProducts)
			if string(got) != `[]` {
				t.Errorf("after overwrite Get() = %s, want []", got)
			}

			if err := s.Delete(ctx, schema.SlotProducts, schema.SlotCategories); err != nil {
				t.Fatalf("Delete() failed: %v", err)
			}
			if _, ok, _ := s.Get(ctx, schema.SlotProducts); ok {
				t.Error("slot still present after Delete()")
			}
		})
	}
}

func TestStore_RejectsInvalidJSON(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Put(ctx, schema.SlotCategories, []byte(`[{"id":1}]`)); err != nil {
				t.Fatalf("Put() failed: %v", err)
			}

			err := s.PutAll(ctx, map[schema.Slot][]byte{
				schema.SlotProducts:   []byte(`[]`),
				schema.SlotCategories: []byte(`{not json`),
			})
			if !errors.Is(err, ErrInvalidJSON) {
				t.Fatalf("PutAll() error = %v, want ErrInvalidJSON", err)
			}

			// Nothing from the rejected batch may land.
			if _, ok, _ := s.Get(ctx, schema.SlotProducts); ok {
				t.Error("products written by a rejected PutAll")
			}
			got, _, _ := s.Get(ctx, schema.SlotCategories)
			if string(got) != `[{"id":1}]` {
				t.Errorf("categories = %s, want original value", got)
			}
		})
	}
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.db")

	s, err := Open(ctx, BackendSQLite, path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := s.Put(ctx, schema.SlotSettings, []byte(`{"currency":"UGX"}`)); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	s, err = Open(ctx, BackendSQLite, path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	got, ok, err := s.Get(ctx, schema.SlotSettings)
	if err != nil || !ok {
		t.Fatalf("Get() = ok %v, err %v", ok, err)
	}
	if string(got) != `{"currency":"UGX"}` {
		t.Errorf("Get() = %s", got)
	}

	updated, ok, err := s.(*SQLite).UpdatedAt(ctx, schema.SlotSettings)
	if err != nil || !ok {
		t.Fatalf("UpdatedAt() = ok %v, err %v", ok, err)
	}
	if time.Since(updated) > time.Minute {
		t.Errorf("UpdatedAt() = %v, want recent", updated)
	}
}

func TestSQLite_CloseIdempotent(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("first Close() failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("second Close() failed: %v", err)
	}
}

func TestFiles_LeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	f, err := OpenFiles(dir)
	if err != nil {
		t.Fatalf("OpenFiles() failed: %v", err)
	}

	err = f.PutAll(ctx, map[schema.Slot][]byte{
		schema.SlotProducts: []byte(`[]`),
		schema.SlotSales:    []byte(`[]`),
	})
	if err != nil {
		t.Fatalf("PutAll() failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() failed: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	if len(names) != 2 || names[0] != "products.json" || names[1] != "sales.json" {
		t.Errorf("directory contents = %v, want [products.json sales.json]", names)
	}
}

func TestFiles_FailedPutAllKeepsPreviousState(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, dir string)
	}{
		{
			name: "unreadable target",
			setup: func(t *testing.T, dir string) {
				// A directory where settings.json should be cannot be replaced.
				blocker := filepath.Join(dir, "settings.json")
				if err := os.MkdirAll(filepath.Join(blocker, "keep"), 0755); err != nil {
					t.Fatal(err)
				}
			},
		},
		{
			name: "rename fails part way",
			setup: func(t *testing.T, dir string) {
				orig := rename
				t.Cleanup(func() { rename = orig })
				rename = func(from, to string) error {
					if strings.HasSuffix(to, "settings.json") {
						return errors.New("disk full")
					}
					return orig(from, to)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()
			f, err := OpenFiles(dir)
			if err != nil {
				t.Fatalf("OpenFiles() failed: %v", err)
			}
			if err := f.Put(ctx, schema.SlotProducts, []byte(`[{"id":-1}]`)); err != nil {
				t.Fatal(err)
			}
			tt.setup(t, dir)

			err = f.PutAll(ctx, map[schema.Slot][]byte{
				schema.SlotCategories: []byte(`[{"id":2}]`),
				schema.SlotProducts:   []byte(`[{"id":1}]`),
				schema.SlotSettings:   []byte(`{}`),
			})
			if err == nil {
				t.Fatal("PutAll() succeeded, want error")
			}

			got, ok, err := f.Get(ctx, schema.SlotProducts)
			if err != nil || !ok || string(got) != `[{"id":-1}]` {
				t.Errorf("products after failed PutAll = %s (ok=%v, err=%v), want [{\"id\":-1}]", got, ok, err)
			}
			if _, ok, _ := f.Get(ctx, schema.SlotCategories); ok {
				t.Error("categories created by a failed PutAll")
			}

			entries, _ := os.ReadDir(dir)
			for _, e := range entries {
				if strings.HasSuffix(e.Name(), ".tmp") {
					t.Errorf("temp file left behind: %s", e.Name())
				}
			}
		})
	}
}

func TestParseBackend(t *testing.T) {
	tests := []struct {
		in      string
		want    Backend
		wantErr bool
	}{
		{"", BackendSQLite, false},
		{"sqlite", BackendSQLite, false},
		{" Files ", BackendFiles, false},
		{"memory", BackendMemory, false},
		{"redis", "", true},
	}
	for _, tt := range tests {
		got, err := ParseBackend(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseBackend(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseBackend(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
