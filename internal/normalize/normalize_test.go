package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stockmaster/stocksync/internal/schema"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

// decodeRecords decodes a JSON array the way the store does.
func decodeRecords(t *testing.T, text string) []schema.Record {
	t.Helper()

	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var out []schema.Record
	if err := dec.Decode(&out); err != nil {
		t.Fatalf("failed to decode records: %v", err)
	}
	return out
}

func TestProducts_MissingPurchasePrice(t *testing.T) {
	raw := decodeRecords(t, `[{"id": -1, "name": "Widget", "stock": "5"}]`)

	products := New(fixedClock).Products(raw)
	if len(products) != 1 {
		t.Fatalf("expected 1 product, got %d", len(products))
	}

	p := products[0]
	if p.ID != -1 {
		t.Errorf("ID = %d, want -1", p.ID)
	}
	if p.Name != "Widget" {
		t.Errorf("Name = %q, want Widget", p.Name)
	}
	if !p.PurchasePrice.IsZero() {
		t.Errorf("PurchasePrice = %s, want 0", p.PurchasePrice)
	}
	if p.Stock != 5 {
		t.Errorf("Stock = %d, want 5", p.Stock)
	}
	if p.Unit != DefaultUnit {
		t.Errorf("Unit = %q, want %q", p.Unit, DefaultUnit)
	}
	if !p.CreatedAt.Equal(fixedNow) {
		t.Errorf("CreatedAt = %v, want %v", p.CreatedAt, fixedNow)
	}

	want := []string{"purchase_price", "selling_price"}
	if strings.Join(p.Missing, ",") != strings.Join(want, ",") {
		t.Errorf("Missing = %v, want %v", p.Missing, want)
	}

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("failed to marshal product: %v", err)
	}
	if !bytes.Contains(data, []byte(`"purchase_price":0`)) {
		t.Errorf("purchase_price must encode as a number, got %s", data)
	}
	if bytes.Contains(data, []byte("Missing")) || bytes.Contains(data, []byte("purchasePrice")) {
		t.Errorf("unexpected field in wire form: %s", data)
	}
}

func TestProducts_NamingConventions(t *testing.T) {
	raw := decodeRecords(t, `[
		{"id": 1, "name": "Laptop", "purchasePrice": 500000, "sellingPrice": "700,000", "stock": 3, "reorderLevel": 5, "categoryId": 2},
		{"id": 2, "name": "Cement", "purchase_price": "20000", "selling_price": 25000.5, "stock": 10, "reorder_level": 4, "unit": "bag", "category_id": "1"}
	]`)

	products := New(fixedClock).Products(raw)

	tests := []struct {
		idx      int
		purchase string
		selling  string
		reorder  int64
		category int64
		unit     string
	}{
		{0, "500000", "700000", 5, 2, "pcs"},
		{1, "20000", "25000.5", 4, 1, "bag"},
	}

	for _, tt := range tests {
		p := products[tt.idx]
		if p.PurchasePrice.String() != tt.purchase {
			t.Errorf("[%d] PurchasePrice = %s, want %s", tt.idx, p.PurchasePrice, tt.purchase)
		}
		if p.SellingPrice.String() != tt.selling {
			t.Errorf("[%d] SellingPrice = %s, want %s", tt.idx, p.SellingPrice, tt.selling)
		}
		if p.ReorderLevel != tt.reorder {
			t.Errorf("[%d] ReorderLevel = %d, want %d", tt.idx, p.ReorderLevel, tt.reorder)
		}
		if p.CategoryID == nil || *p.CategoryID != tt.category {
			t.Errorf("[%d] CategoryID = %v, want %d", tt.idx, p.CategoryID, tt.category)
		}
		if p.Unit != tt.unit {
			t.Errorf("[%d] Unit = %q, want %q", tt.idx, p.Unit, tt.unit)
		}
		if len(p.Missing) != 0 {
			t.Errorf("[%d] Missing = %v, want none", tt.idx, p.Missing)
		}
	}
}

func TestProducts_UnparsableStock(t *testing.T) {
	raw := decodeRecords(t, `[{"id": 4, "name": "Bolt", "purchase_price": 0, "selling_price": 0, "stock": "lots"}]`)

	p := New(fixedClock).Products(raw)[0]
	if p.Stock != 0 {
		t.Errorf("Stock = %d, want 0", p.Stock)
	}
	if len(p.Missing) != 1 || p.Missing[0] != "stock" {
		t.Errorf("Missing = %v, want [stock]", p.Missing)
	}
}

func TestAssignIDs(t *testing.T) {
	raw := decodeRecords(t, `[{"id": 3}, {}, {"id": -4}, {"id": null}, {"id": "7"}]`)

	ids := assignIDs(raw)
	want := []int64{3, -5, -4, -6, 7}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %d, want %d", i, ids[i], want[i])
		}
	}

	again := assignIDs(raw)
	for i := range ids {
		if ids[i] != again[i] {
			t.Errorf("assignIDs not deterministic at %d: %d vs %d", i, ids[i], again[i])
		}
	}
}

func TestBatch_Idempotent(t *testing.T) {
	raw := &schema.RawSnapshot{
		Products:   decodeRecords(t, `[{"name": "Widget", "purchasePrice": "10", "selling_price": 12, "stock": 1}]`),
		Categories: decodeRecords(t, `[{"id": 1, "name": "Tools"}, {"name": "Paint"}]`),
		Sales:      decodeRecords(t, `[{"items": [{"productId": 1, "quantity": 2, "price": 12}], "paymentMethod": "mobile"}]`),
		Activities: decodeRecords(t, `[{"activity": "Product added", "details": "Widget"}]`),
		Settings:   schema.Record{"businessName": "Shop"},
	}

	n := New(fixedClock)
	first, err := json.Marshal(n.Batch(raw))
	if err != nil {
		t.Fatalf("failed to marshal first batch: %v", err)
	}
	second, err := json.Marshal(n.Batch(raw))
	if err != nil {
		t.Fatalf("failed to marshal second batch: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("batches differ:\n%s\n%s", first, second)
	}
}

func TestBatch_EmptyCollectionsEncodeAsArrays(t *testing.T) {
	batch := New(fixedClock).Batch(&schema.RawSnapshot{})

	data, err := json.Marshal(batch)
	if err != nil {
		t.Fatalf("failed to marshal batch: %v", err)
	}
	for _, slot := range schema.CollectionSlots {
		if !bytes.Contains(data, []byte(`"`+slot.String()+`":[]`)) {
			t.Errorf("%s should encode as [], got %s", slot, data)
		}
	}
	if !bytes.Contains(data, []byte(`"settings":null`)) {
		t.Errorf("unset settings should encode as null, got %s", data)
	}
}

func TestSales_Totals(t *testing.T) {
	raw := decodeRecords(t, `[{
		"id": 9,
		"date": "2024-04-30",
		"items": [
			{"productId": 1, "quantity": 2, "price": 1500},
			{"product_id": 2, "quantity": "1", "unit_price": "250.50", "total": 250.5}
		],
		"tax": 100,
		"discount": "50"
	}]`)

	s := New(fixedClock).Sales(raw, "INV")[0]

	if s.InvoiceNumber != "INV-0009" {
		t.Errorf("InvoiceNumber = %q, want INV-0009", s.InvoiceNumber)
	}
	if s.Customer != DefaultCustomer {
		t.Errorf("Customer = %q, want %q", s.Customer, DefaultCustomer)
	}
	if !s.Date.Equal(time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Date = %v", s.Date)
	}
	if len(s.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(s.Items))
	}
	if !s.Items[0].Total.Equal(decimal.NewFromInt(3000)) {
		t.Errorf("Items[0].Total = %s, want 3000", s.Items[0].Total)
	}
	if !s.Subtotal.Equal(decimal.RequireFromString("3250.5")) {
		t.Errorf("Subtotal = %s, want 3250.5", s.Subtotal)
	}
	if !s.Total.Equal(decimal.RequireFromString("3300.5")) {
		t.Errorf("Total = %s, want 3300.5", s.Total)
	}
}

func TestPurchases_ReferenceNumber(t *testing.T) {
	raw := decodeRecords(t, `[{"referenceNumber": "PUR-1234", "supplierId": 3}, {"id": 12}]`)

	purchases := New(fixedClock).Purchases(raw, "PUR")
	if purchases[0].ReferenceNumber != "PUR-1234" {
		t.Errorf("ReferenceNumber = %q, want PUR-1234", purchases[0].ReferenceNumber)
	}
	if purchases[0].SupplierID == nil || *purchases[0].SupplierID != 3 {
		t.Errorf("SupplierID = %v, want 3", purchases[0].SupplierID)
	}
	if purchases[1].ReferenceNumber != "PUR-0012" {
		t.Errorf("ReferenceNumber = %q, want PUR-0012", purchases[1].ReferenceNumber)
	}
	if purchases[0].ID >= 0 {
		t.Errorf("purchase without id should get a temporary id, got %d", purchases[0].ID)
	}
}

func TestAdjustments_Direction(t *testing.T) {
	raw := decodeRecords(t, `[
		{"id": 1, "productId": 4, "type": "remove", "quantity": "3"},
		{"id": 2, "productId": 4, "direction": "add", "quantity": 1},
		{"id": 3, "productId": 4}
	]`)

	adjustments := New(fixedClock).Adjustments(raw)
	want := []string{schema.AdjustmentRemove, schema.AdjustmentAdd, schema.AdjustmentAdd}
	for i, a := range adjustments {
		if a.Type != want[i] {
			t.Errorf("[%d] Type = %q, want %q", i, a.Type, want[i])
		}
		if a.User != DefaultUser {
			t.Errorf("[%d] User = %q, want %q", i, a.User, DefaultUser)
		}
	}
	if adjustments[0].Quantity != 3 {
		t.Errorf("Quantity = %d, want 3", adjustments[0].Quantity)
	}
}

func TestActivities_NewestFirst(t *testing.T) {
	raw := decodeRecords(t, `[
		{"id": 1, "date": "2024-04-01T10:00:00Z", "activity": "old"},
		{"id": 2, "date": "2024-04-03T10:00:00Z", "activity": "new"},
		{"id": 3, "date": "2024-04-02T10:00:00.000Z", "activity": "mid"}
	]`)

	activities := New(fixedClock).Activities(raw)
	got := []string{activities[0].Activity, activities[1].Activity, activities[2].Activity}
	if strings.Join(got, ",") != "new,mid,old" {
		t.Errorf("order = %v, want new,mid,old", got)
	}
}

func TestSettings(t *testing.T) {
	n := New(fixedClock)

	if s := n.Settings(nil); s != nil {
		t.Errorf("Settings(nil) = %+v, want nil", s)
	}

	s := n.Settings(schema.Record{"taxRate": "16", "invoicePrefix": "SL", "currency": ""})
	if !s.TaxRate.Equal(decimal.NewFromInt(16)) {
		t.Errorf("TaxRate = %s, want 16", s.TaxRate)
	}
	if s.InvoicePrefix != "SL" {
		t.Errorf("InvoicePrefix = %q, want SL", s.InvoicePrefix)
	}
	if s.Currency != "UGX" {
		t.Errorf("Currency = %q, want UGX", s.Currency)
	}
	if s.PurchasePrefix != "PUR" {
		t.Errorf("PurchasePrefix = %q, want PUR", s.PurchasePrefix)
	}
}

func TestDecimalValue(t *testing.T) {
	tests := []struct {
		name   string
		input  any
		want   string
		wantOK bool
	}{
		{"json number", json.Number("12.50"), "12.5", true},
		{"float", 3.25, "3.25", true},
		{"grouped string", "20,000", "20000", true},
		{"currency string", "UGX 1,500", "1500", true},
		{"negative string", "-7", "-7", true},
		{"empty string", "", "0", false},
		{"word", "free", "0", false},
		{"bool", true, "1", true},
		{"object", map[string]any{}, "0", false},
		{"negative after currency", "UGX -500", "-500", true},
		{"trailing currency", "1,250.75 KES", "1250.75", true},
		{"symbol", "$12.50", "12.5", true},
		{"exponent", "1e3", "1000", true},
		{"inner minus", "12-3", "0", false},
		{"letters glued to digits", "abc5", "0", false},
		{"two numbers", "5 6 7", "0", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := decimalValue(tt.input)
			if ok != tt.wantOK {
				t.Errorf("ok = %v, want %v", ok, tt.wantOK)
			}
			if got.String() != tt.want {
				t.Errorf("value = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestIntValue(t *testing.T) {
	tests := []struct {
		input  any
		want   int64
		wantOK bool
	}{
		{"5", 5, true},
		{"7.9", 7, true},
		{"-7.9", -7, true},
		{json.Number("9223372036854775807"), math.MaxInt64, true},
		{"99999999999999999999", 0, false},
		{json.Number("-99999999999999999999"), 0, false},
		{"1e30", 0, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.input), func(t *testing.T) {
			got, ok := intValue(tt.input)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("intValue(%v) = %d, %v; want %d, %v", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
