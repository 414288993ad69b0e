package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stockmaster/stocksync/internal/schema"
)

func TestReadSnapshot(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	put := func(slot schema.Slot, v string) {
		t.Helper()
		if err := s.Put(ctx, slot, []byte(v)); err != nil {
			t.Fatalf("Put(%s) failed: %v", slot, err)
		}
	}
	put(schema.SlotProducts, `[{"id":-1,"name":"Widget","stock":"5"},"junk"]`)
	put(schema.SlotCategories, `{"not":"an array"}`)
	put(schema.SlotSettings, `{"currency":"KES"}`)
	put(schema.SlotLastSyncTime, `"2024-03-01T10:00:00Z"`)

	snap, err := ReadSnapshot(ctx, s)
	if err != nil {
		t.Fatalf("ReadSnapshot() failed: %v", err)
	}

	if len(snap.Products) != 1 {
		t.Fatalf("got %d products, want 1", len(snap.Products))
	}
	if id, ok := snap.Products[0]["id"].(json.Number); !ok || id.String() != "-1" {
		t.Errorf("product id = %#v, want json.Number(-1)", snap.Products[0]["id"])
	}
	if snap.Categories == nil || len(snap.Categories) != 0 {
		t.Errorf("categories = %#v, want empty", snap.Categories)
	}
	if snap.Sales == nil {
		t.Error("absent sales slot should read as empty, not nil")
	}
	if snap.Settings["currency"] != "KES" {
		t.Errorf("settings = %v", snap.Settings)
	}
	want := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	if snap.LastSyncTime == nil || !snap.LastSyncTime.Equal(want) {
		t.Errorf("LastSyncTime = %v, want %v", snap.LastSyncTime, want)
	}
}

func TestReadSnapshot_Empty(t *testing.T) {
	snap, err := ReadSnapshot(context.Background(), NewMemory())
	if err != nil {
		t.Fatalf("ReadSnapshot() failed: %v", err)
	}
	if snap.Settings != nil {
		t.Errorf("Settings = %v, want nil", snap.Settings)
	}
	if snap.LastSyncTime != nil {
		t.Errorf("LastSyncTime = %v, want nil", snap.LastSyncTime)
	}
}

func TestLastSyncTime_Malformed(t *testing.T) {
	ctx := context.Background()
	for _, v := range []string{`12345`, `"yesterday"`, `null`} {
		s := NewMemory()
		if err := s.Put(ctx, schema.SlotLastSyncTime, []byte(v)); err != nil {
			t.Fatal(err)
		}
		ts, err := LastSyncTime(ctx, s)
		if err != nil {
			t.Errorf("LastSyncTime(%s) error = %v", v, err)
		}
		if ts != nil {
			t.Errorf("LastSyncTime(%s) = %v, want nil", v, ts)
		}
	}
}

func TestHasLocalData(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	if ok, _ := HasLocalData(ctx, s); ok {
		t.Error("empty store reports local data")
	}
	if err := s.Put(ctx, schema.SlotCategories, []byte(`[]`)); err != nil {
		t.Fatal(err)
	}
	if ok, _ := HasLocalData(ctx, s); ok {
		t.Error("categories alone should not count as local data")
	}
	if err := s.Put(ctx, schema.SlotProducts, []byte(`[]`)); err != nil {
		t.Fatal(err)
	}
	if ok, _ := HasLocalData(ctx, s); !ok {
		t.Error("products slot present but HasLocalData is false")
	}
}

func TestDump(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	if err := PutJSON(ctx, s, schema.SlotSales, []map[string]int{{"id": 1}}); err != nil {
		t.Fatal(err)
	}

	got, err := Dump(ctx, s, schema.SlotSales, schema.SlotPurchases)
	if err != nil {
		t.Fatalf("Dump() failed: %v", err)
	}
	if len(got) != 1 || string(got[schema.SlotSales]) != `[{"id":1}]` {
		t.Errorf("Dump() = %v", got)
	}
}
