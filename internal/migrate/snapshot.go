// Package migrate exports and imports local store snapshots.
//
// A snapshot holds the business slots and lastSyncTime, never the auth
// session. Two formats are supported:
//
//	JSONL  one {"slot": "...", "value": ...} object per line
//	YAML   one mapping from slot name to value
//
// Imports are validated in full before anything is written, then committed
// with a single atomic PutAll.
package migrate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/stockmaster/stocksync/internal/schema"
	"github.com/stockmaster/stocksync/internal/store"
	"gopkg.in/yaml.v3"
)

// Format is a snapshot encoding.
type Format string

const (
	FormatJSONL Format = "jsonl"
	FormatYAML  Format = "yaml"
)

// ParseFormat returns the format for a format name ("jsonl", "yaml") or a
// file path. Paths with an unrecognised extension default to JSONL.
func ParseFormat(s string) (Format, error) {
	name, ext := s, filepath.Ext(s)
	if ext != "" {
		name = ext[1:]
	}
	switch strings.ToLower(name) {
	case "", "jsonl", "json", "ndjson":
		return FormatJSONL, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	if ext != "" {
		return FormatJSONL, nil
	}
	return "", fmt.Errorf("unknown snapshot format %q (want jsonl or yaml)", s)
}

// SnapshotSlots lists the slots a snapshot carries, in export order.
var SnapshotSlots = schema.LocalDataSlots

// Entry is one slot in a snapshot.
type Entry struct {
	Slot  schema.Slot     `json:"slot"`
	Value json.RawMessage `json:"value"`
}

// Result contains statistics about an export or import.
type Result struct {
	Slots         []schema.Slot
	Records       int
	BackupCreated string
}

// ImportOptions contains configuration for an import.
type ImportOptions struct {
	DryRun bool   // Validate without writing
	Backup string // Export the current store here before importing
}

// Export writes the present snapshot slots of st to w.
func Export(ctx context.Context, st store.Store, w io.Writer, format Format) (*Result, error) {
	values, err := store.Dump(ctx, st, SnapshotSlots...)
	if err != nil {
		return nil, fmt.Errorf("failed to read store: %w", err)
	}

	result := &Result{}
	entries := make([]Entry, 0, len(values))
	for _, slot := range SnapshotSlots {
		v, ok := values[slot]
		if !ok {
			continue
		}
		entries = append(entries, Entry{Slot: slot, Value: v})
		result.Slots = append(result.Slots, slot)
		result.Records += countRecords(slot, v)
	}

	switch format {
	case FormatYAML:
		err = writeYAML(w, entries)
	default:
		err = writeJSONL(w, entries)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ExportFile writes a snapshot to path atomically.
func ExportFile(ctx context.Context, st store.Store, path string, format Format) (*Result, error) {
	var buf bytes.Buffer
	result, err := Export(ctx, st, &buf, format)
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create export directory: %w", err)
		}
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0600); err != nil {
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to rename temp file: %w", err)
	}
	return result, nil
}

// Import reads a snapshot from r and commits it to st. Slots absent from
// the snapshot are left untouched.
func Import(ctx context.Context, st store.Store, r io.Reader, format Format, opts ImportOptions) (*Result, error) {
	var (
		entries []Entry
		err     error
	)
	switch format {
	case FormatYAML:
		entries, err = readYAML(r)
	default:
		entries, err = readJSONL(r)
	}
	if err != nil {
		return nil, err
	}

	result := &Result{}
	values := make(map[schema.Slot][]byte, len(entries))
	for _, e := range entries {
		if err := checkEntry(e); err != nil {
			return nil, err
		}
		if _, dup := values[e.Slot]; dup {
			return nil, fmt.Errorf("slot %s appears twice in snapshot", e.Slot)
		}
		values[e.Slot] = e.Value
		result.Slots = append(result.Slots, e.Slot)
		result.Records += countRecords(e.Slot, e.Value)
	}

	if opts.DryRun || len(values) == 0 {
		return result, nil
	}

	if opts.Backup != "" {
		backupFormat, _ := ParseFormat(opts.Backup)
		if _, err := ExportFile(ctx, st, opts.Backup, backupFormat); err != nil {
			return nil, fmt.Errorf("failed to create backup: %w", err)
		}
		result.BackupCreated = opts.Backup
	}

	if err := st.PutAll(ctx, values); err != nil {
		return nil, fmt.Errorf("failed to write snapshot: %w", err)
	}
	return result, nil
}

// ImportFile imports the snapshot at path, choosing the format from its
// extension.
func ImportFile(ctx context.Context, st store.Store, path string, opts ImportOptions) (*Result, error) {
	// #nosec G304 - controlled path from CLI
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	format, err := ParseFormat(path)
	if err != nil {
		return nil, err
	}
	return Import(ctx, st, f, format, opts)
}

// BackupPath returns a timestamped sibling of path for pre-import backups.
func BackupPath(path string, now time.Time) string {
	return path + ".backup." + now.Format("20060102-150405") + ".jsonl"
}

func checkEntry(e Entry) error {
	known := false
	for _, s := range SnapshotSlots {
		if s == e.Slot {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("slot %q cannot be imported", e.Slot)
	}

	v := bytes.TrimSpace(e.Value)
	if !json.Valid(v) {
		return fmt.Errorf("slot %s: invalid JSON", e.Slot)
	}
	var want byte
	switch {
	case e.Slot.IsCollection():
		want = '['
	case e.Slot == schema.SlotSettings:
		want = '{'
	case e.Slot == schema.SlotLastSyncTime:
		want = '"'
	}
	if len(v) == 0 || v[0] != want {
		return fmt.Errorf("slot %s has the wrong type", e.Slot)
	}
	return nil
}

func countRecords(slot schema.Slot, v []byte) int {
	if !slot.IsCollection() {
		return 0
	}
	var items []json.RawMessage
	if err := json.Unmarshal(v, &items); err != nil {
		return 0
	}
	return len(items)
}

func writeJSONL(w io.Writer, entries []Entry) error {
	enc := json.NewEncoder(w)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("failed to write %s: %w", e.Slot, err)
		}
	}
	return nil
}

func readJSONL(r io.Reader) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("invalid JSON at line %d: %w", lineNum, err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return entries, nil
}

func writeYAML(w io.Writer, entries []Entry) error {
	doc := &yaml.Node{Kind: yaml.MappingNode}
	for _, e := range entries {
		var v any
		if err := json.Unmarshal(e.Value, &v); err != nil {
			return fmt.Errorf("failed to decode %s: %w", e.Slot, err)
		}
		var node yaml.Node
		if err := node.Encode(v); err != nil {
			return fmt.Errorf("failed to encode %s: %w", e.Slot, err)
		}
		doc.Content = append(doc.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: e.Slot.String()},
			&node,
		)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to write YAML: %w", err)
	}
	return enc.Close()
}

func readYAML(r io.Reader) ([]Entry, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) == 1 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("invalid YAML: snapshot must be a mapping")
	}

	entries := make([]Entry, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		slot := schema.Slot(root.Content[i].Value)
		var v any
		if err := root.Content[i+1].Decode(&v); err != nil {
			return nil, fmt.Errorf("slot %s: %w", slot, err)
		}
		raw, err := json.Marshal(jsonCompatible(v))
		if err != nil {
			return nil, fmt.Errorf("slot %s: %w", slot, err)
		}
		entries = append(entries, Entry{Slot: slot, Value: raw})
	}
	return entries, nil
}

// jsonCompatible converts YAML-decoded values to types encoding/json
// accepts. Timestamps become RFC 3339 strings.
func jsonCompatible(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, val := range x {
			x[k] = jsonCompatible(val)
		}
		return x
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, val := range x {
			m[fmt.Sprint(k)] = jsonCompatible(val)
		}
		return m
	case []any:
		for i, val := range x {
			x[i] = jsonCompatible(val)
		}
		return x
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	}
	return v
}
