package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stockmaster/stocksync/internal/schema"
)

// GetJSON decodes the document in slot into v. It returns false, leaving v
// untouched, when the slot is absent.
func GetJSON(ctx context.Context, s Store, slot schema.Slot, v any) (bool, error) {
	data, ok, err := s.Get(ctx, slot)
	if err != nil || !ok {
		return false, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return false, fmt.Errorf("failed to decode slot %s: %w", slot, err)
	}
	return true, nil
}

// PutJSON encodes v and writes it to slot.
func PutJSON(ctx context.Context, s Store, slot schema.Slot, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode slot %s: %w", slot, err)
	}
	return s.Put(ctx, slot, data)
}

// ReadSnapshot reads every business slot into a RawSnapshot. Absent or
// non-array collection slots read as empty, an absent settings slot as nil
// and an unparsable timestamp as no timestamp.
func ReadSnapshot(ctx context.Context, s Store) (*schema.RawSnapshot, error) {
	snap := &schema.RawSnapshot{}

	for _, slot := range schema.CollectionSlots {
		var raw any
		if _, err := GetJSON(ctx, s, slot, &raw); err != nil {
			return nil, err
		}
		snap.SetCollection(slot, records(raw))
	}

	var settings any
	if _, err := GetJSON(ctx, s, schema.SlotSettings, &settings); err != nil {
		return nil, err
	}
	if m, ok := settings.(map[string]any); ok {
		snap.Settings = m
	}

	ts, err := LastSyncTime(ctx, s)
	if err != nil {
		return nil, err
	}
	snap.LastSyncTime = ts

	return snap, nil
}

// LastSyncTime returns the timestamp of the last successful sync, or nil.
func LastSyncTime(ctx context.Context, s Store) (*time.Time, error) {
	var raw string
	ok, err := GetJSON(ctx, s, schema.SlotLastSyncTime, &raw)
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		// A non-string timestamp is treated as never synced.
		return nil, nil
	}
	if err != nil || !ok {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, nil
	}
	return &t, nil
}

// HasLocalData reports whether the products slot has ever been written.
// An unpopulated store must not be synced over a possibly populated server.
func HasLocalData(ctx context.Context, s Store) (bool, error) {
	_, ok, err := s.Get(ctx, schema.SlotProducts)
	return ok, err
}

// Dump returns the raw documents of the given slots. Absent slots are
// omitted.
func Dump(ctx context.Context, s Store, slots ...schema.Slot) (map[schema.Slot][]byte, error) {
	out := make(map[schema.Slot][]byte, len(slots))
	for _, slot := range slots {
		data, ok, err := s.Get(ctx, slot)
		if err != nil {
			return nil, err
		}
		if ok {
			out[slot] = data
		}
	}
	return out, nil
}

func records(raw any) []schema.Record {
	list, ok := raw.([]any)
	if !ok {
		return []schema.Record{}
	}
	out := make([]schema.Record, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
