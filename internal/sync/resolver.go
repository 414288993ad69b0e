package sync

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/stockmaster/stocksync/internal/schema"
)

// MergeSlots lists the collections the resolver unions. Activities are an
// append-only server log and are taken from the server side as is.
var MergeSlots = []schema.Slot{
	schema.SlotProducts,
	schema.SlotCategories,
	schema.SlotSuppliers,
	schema.SlotSales,
	schema.SlotPurchases,
	schema.SlotAdjustments,
}

// Resolver merges a server snapshot with local collections.
//
// Policy: the server collection is the baseline, and every local record
// whose id does not appear in it is appended, as not yet acknowledged.
// There is no field-level merge and no timestamp comparison. Local records
// without an id are always kept.
//
// The resolver is not part of the normal sync cycle, which trusts the
// server response as a full replacement. It backs the explicit merge
// action (Manager.Merge).
type Resolver struct{}

// Merge returns server followed by the local records it does not know.
// Neither input is modified.
func (Resolver) Merge(local, server []schema.Record) []schema.Record {
	merged := make([]schema.Record, 0, len(server)+len(local))
	seen := make(map[string]struct{}, len(server))
	for _, r := range server {
		merged = append(merged, r)
		if key, ok := idKey(r); ok {
			seen[key] = struct{}{}
		}
	}
	for _, r := range local {
		key, ok := idKey(r)
		if ok {
			if _, dup := seen[key]; dup {
				continue
			}
		}
		merged = append(merged, r)
	}
	return merged
}

// MergeAll merges every collection in MergeSlots. A collection absent from
// server keeps its local value; Activities come from server when present.
func (res Resolver) MergeAll(local, server *schema.RawSnapshot, serverHas func(schema.Slot) bool) *schema.RawSnapshot {
	out := &schema.RawSnapshot{
		LastSyncTime: local.LastSyncTime,
		Settings:     local.Settings,
	}
	for _, slot := range schema.CollectionSlots {
		out.SetCollection(slot, local.Collection(slot))
	}
	for _, slot := range MergeSlots {
		if serverHas(slot) {
			out.SetCollection(slot, res.Merge(local.Collection(slot), server.Collection(slot)))
		}
	}
	if serverHas(schema.SlotActivities) {
		out.Activities = server.Activities
	}
	if serverHas(schema.SlotSettings) {
		out.Settings = server.Settings
	}
	return out
}

// idKey renders a record id so that 7, 7.0, "7" and json.Number("7")
// compare equal.
func idKey(r schema.Record) (string, bool) {
	v, ok := r["id"]
	if !ok || v == nil {
		return "", false
	}
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return strconv.FormatInt(n, 10), true
		}
		if f, err := x.Float64(); err == nil && f == float64(int64(f)) {
			return strconv.FormatInt(int64(f), 10), true
		}
		return x.String(), true
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10), true
		}
	case string:
		if n, err := strconv.ParseInt(x, 10, 64); err == nil {
			return strconv.FormatInt(n, 10), true
		}
		return x, x != ""
	}
	return fmt.Sprint(v), true
}
