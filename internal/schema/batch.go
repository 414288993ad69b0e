package schema

import (
	"time"
)

// Record is a loosely typed entity as written by the UI layer. Field names
// may be snake_case or camelCase and values may be numbers or strings.
type Record = map[string]any

// RawSnapshot is the full contents of the local store before normalization.
type RawSnapshot struct {
	LastSyncTime *time.Time

	Products    []Record
	Categories  []Record
	Suppliers   []Record
	Sales       []Record
	Purchases   []Record
	Adjustments []Record
	Activities  []Record

	// Settings is nil when the settings slot has never been written.
	Settings Record
}

// Collection returns the raw records held for a collection slot.
func (r *RawSnapshot) Collection(slot Slot) []Record {
	switch slot {
	case SlotProducts:
		return r.Products
	case SlotCategories:
		return r.Categories
	case SlotSuppliers:
		return r.Suppliers
	case SlotSales:
		return r.Sales
	case SlotPurchases:
		return r.Purchases
	case SlotAdjustments:
		return r.Adjustments
	case SlotActivities:
		return r.Activities
	}
	return nil
}

// SetCollection replaces the raw records held for a collection slot.
func (r *RawSnapshot) SetCollection(slot Slot, records []Record) {
	switch slot {
	case SlotProducts:
		r.Products = records
	case SlotCategories:
		r.Categories = records
	case SlotSuppliers:
		r.Suppliers = records
	case SlotSales:
		r.Sales = records
	case SlotPurchases:
		r.Purchases = records
	case SlotAdjustments:
		r.Adjustments = records
	case SlotActivities:
		r.Activities = records
	}
}

// Batch is the request body of a sync call. Collections are never nil so
// they encode as [] rather than null.
type Batch struct {
	LastSyncTime *time.Time   `json:"last_sync_time"`
	Products     []Product    `json:"products"`
	Categories   []Category   `json:"categories"`
	Suppliers    []Supplier   `json:"suppliers"`
	Sales        []Sale       `json:"sales"`
	Purchases    []Purchase   `json:"purchases"`
	Adjustments  []Adjustment `json:"adjustments"`
	Activities   []Activity   `json:"activities"`
	Settings     *Settings    `json:"settings"`
}
