// Package normalize converts loosely typed records edited by the UI layer
// into the canonical, server-shaped records defined in package schema.
//
// Normalization is a pure transform. It never mutates its input and, for a
// fixed clock, always produces the same output for the same input.
package normalize

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stockmaster/stocksync/internal/schema"
)

// Fallbacks for required string fields.
const (
	DefaultUnit          = "pcs"
	DefaultCustomer      = "Walk-in Customer"
	DefaultPaymentMethod = "cash"
	DefaultStatus        = "completed"
	DefaultUser          = "system"
)

// Normalizer converts raw records to canonical records.
type Normalizer struct {
	now func() time.Time
}

// New creates a Normalizer. Missing dates are stamped with now() at the
// time of normalization. If now is nil, time.Now is used.
func New(now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{now: now}
}

func (n *Normalizer) stamp() time.Time {
	return n.now().UTC().Truncate(time.Millisecond)
}

// Batch normalizes a full store snapshot into a sync request body.
func (n *Normalizer) Batch(raw *schema.RawSnapshot) *schema.Batch {
	settings := n.Settings(raw.Settings)
	prefixes := schema.DefaultSettings()
	if settings != nil {
		prefixes = *settings
	}

	return &schema.Batch{
		LastSyncTime: raw.LastSyncTime,
		Products:     n.Products(raw.Products),
		Categories:   n.Categories(raw.Categories),
		Suppliers:    n.Suppliers(raw.Suppliers),
		Sales:        n.Sales(raw.Sales, prefixes.InvoicePrefix),
		Purchases:    n.Purchases(raw.Purchases, prefixes.PurchasePrefix),
		Adjustments:  n.Adjustments(raw.Adjustments),
		Activities:   n.Activities(raw.Activities),
		Settings:     settings,
	}
}

// Products normalizes product records. Name, prices and stock that are
// absent or unparsable are zero-filled and listed in Product.Missing.
func (n *Normalizer) Products(raw []schema.Record) []schema.Product {
	now := n.stamp()
	ids := assignIDs(raw)
	out := make([]schema.Product, 0, len(raw))

	for i, r := range raw {
		p := schema.Product{
			ID:          ids[i],
			Name:        getString(r, "name"),
			CategoryID:  getRef(r, "category_id", "categoryId", "category"),
			SupplierID:  getRef(r, "supplier_id", "supplierId", "supplier"),
			Description: getString(r, "description"),
			Unit:        getStringOr(r, DefaultUnit, "unit"),
			Barcode:     getString(r, "barcode"),
			Location:    getString(r, "location"),
			CreatedAt:   getTime(r, now, "created_at", "createdAt"),
		}
		if p.Name == "" {
			p.Missing = append(p.Missing, "name")
		}

		var ok bool
		if p.PurchasePrice, ok = getDecimal(r, "purchase_price", "purchasePrice"); !ok {
			p.Missing = append(p.Missing, "purchase_price")
		}
		if p.SellingPrice, ok = getDecimal(r, "selling_price", "sellingPrice"); !ok {
			p.Missing = append(p.Missing, "selling_price")
		}
		if p.Stock, ok = getInt(r, "stock", "quantity"); !ok {
			p.Missing = append(p.Missing, "stock")
		}
		p.ReorderLevel, _ = getInt(r, "reorder_level", "reorderLevel")

		out = append(out, p)
	}
	return out
}

// Categories normalizes category records.
func (n *Normalizer) Categories(raw []schema.Record) []schema.Category {
	ids := assignIDs(raw)
	out := make([]schema.Category, 0, len(raw))
	for i, r := range raw {
		c := schema.Category{
			ID:          ids[i],
			Name:        getString(r, "name"),
			Description: getString(r, "description"),
		}
		if c.Name == "" {
			c.Missing = append(c.Missing, "name")
		}
		out = append(out, c)
	}
	return out
}

// Suppliers normalizes supplier records.
func (n *Normalizer) Suppliers(raw []schema.Record) []schema.Supplier {
	ids := assignIDs(raw)
	out := make([]schema.Supplier, 0, len(raw))
	for i, r := range raw {
		out = append(out, schema.Supplier{
			ID:            ids[i],
			Name:          getString(r, "name"),
			ContactPerson: getString(r, "contact_person", "contactPerson", "contact"),
			Phone:         getString(r, "phone"),
			Email:         getString(r, "email"),
			Address:       getString(r, "address"),
			Products:      getIDs(r, "products", "product_ids", "productIds"),
		})
	}
	return out
}

// Sales normalizes sale records. Missing invoice numbers are derived from
// prefix and the sale id.
func (n *Normalizer) Sales(raw []schema.Record, prefix string) []schema.Sale {
	now := n.stamp()
	ids := assignIDs(raw)
	out := make([]schema.Sale, 0, len(raw))
	for i, r := range raw {
		s := schema.Sale{
			ID:            ids[i],
			InvoiceNumber: getString(r, "invoice_number", "invoiceNumber"),
			Date:          getTime(r, now, "date"),
			Customer:      getStringOr(r, DefaultCustomer, "customer", "customer_name", "customerName"),
			PaymentMethod: getStringOr(r, DefaultPaymentMethod, "payment_method", "paymentMethod"),
			Status:        getStringOr(r, DefaultStatus, "status"),
			Notes:         getString(r, "notes"),
		}
		if s.InvoiceNumber == "" {
			s.InvoiceNumber = sequenceNumber(prefix, s.ID)
		}
		s.Items, s.Subtotal, s.Tax, s.Discount, s.Total = totals(r)
		out = append(out, s)
	}
	return out
}

// Purchases normalizes purchase records.
func (n *Normalizer) Purchases(raw []schema.Record, prefix string) []schema.Purchase {
	now := n.stamp()
	ids := assignIDs(raw)
	out := make([]schema.Purchase, 0, len(raw))
	for i, r := range raw {
		p := schema.Purchase{
			ID:              ids[i],
			ReferenceNumber: getString(r, "reference_number", "referenceNumber", "invoice_number", "invoiceNumber"),
			Date:            getTime(r, now, "date"),
			SupplierID:      getRef(r, "supplier_id", "supplierId", "supplier"),
			PaymentMethod:   getStringOr(r, DefaultPaymentMethod, "payment_method", "paymentMethod"),
			Status:          getStringOr(r, DefaultStatus, "status"),
			Notes:           getString(r, "notes"),
		}
		if p.ReferenceNumber == "" {
			p.ReferenceNumber = sequenceNumber(prefix, p.ID)
		}
		p.Items, p.Subtotal, p.Tax, p.Discount, p.Total = totals(r)
		out = append(out, p)
	}
	return out
}

// Adjustments normalizes stock adjustment records.
func (n *Normalizer) Adjustments(raw []schema.Record) []schema.Adjustment {
	now := n.stamp()
	ids := assignIDs(raw)
	out := make([]schema.Adjustment, 0, len(raw))
	for i, r := range raw {
		a := schema.Adjustment{
			ID:     ids[i],
			Date:   getTime(r, now, "date"),
			Type:   direction(getString(r, "type", "direction", "adjustment_type", "adjustmentType")),
			Reason: getString(r, "reason"),
			User:   getStringOr(r, DefaultUser, "user"),
		}
		a.ProductID, _ = getInt(r, "product_id", "productId")
		a.Quantity, _ = getInt(r, "quantity")
		out = append(out, a)
	}
	return out
}

// Activities normalizes audit log entries and orders them newest first.
func (n *Normalizer) Activities(raw []schema.Record) []schema.Activity {
	now := n.stamp()
	ids := assignIDs(raw)
	out := make([]schema.Activity, 0, len(raw))
	for i, r := range raw {
		out = append(out, schema.Activity{
			ID:       ids[i],
			Date:     getTime(r, now, "date", "timestamp"),
			Activity: getString(r, "activity", "action"),
			User:     getStringOr(r, DefaultUser, "user"),
			Details:  getString(r, "details"),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date)
	})
	return out
}

// Settings fills every absent settings field with its default. A nil
// record yields nil so that an unset slot is sent as null.
func (n *Normalizer) Settings(raw schema.Record) *schema.Settings {
	if raw == nil {
		return nil
	}
	s := schema.DefaultSettings()
	s.BusinessName = getStringOr(raw, s.BusinessName, "business_name", "businessName")
	s.Currency = getStringOr(raw, s.Currency, "currency")
	s.InvoicePrefix = getStringOr(raw, s.InvoicePrefix, "invoice_prefix", "invoicePrefix")
	s.PurchasePrefix = getStringOr(raw, s.PurchasePrefix, "purchase_prefix", "purchasePrefix")
	if rate, ok := getDecimal(raw, "tax_rate", "taxRate"); ok {
		s.TaxRate = rate
	}
	if threshold, ok := getInt(raw, "low_stock_threshold", "lowStockThreshold"); ok {
		s.LowStockThreshold = threshold
	}
	return &s
}

// totals normalizes line items and derives any missing sums.
func totals(r schema.Record) (items []schema.LineItem, subtotal, tax, discount, total decimal.Decimal) {
	items = []schema.LineItem{}
	sum := decimal.Zero
	for _, raw := range getRecords(r, "items", "line_items", "lineItems") {
		item := schema.LineItem{}
		item.ProductID, _ = getInt(raw, "product_id", "productId")
		item.Quantity, _ = getInt(raw, "quantity")
		item.UnitPrice, _ = getDecimal(raw, "unit_price", "unitPrice", "price")
		var ok bool
		if item.Total, ok = getDecimal(raw, "total", "line_total", "lineTotal"); !ok {
			item.Total = item.UnitPrice.Mul(decimal.NewFromInt(item.Quantity))
		}
		sum = sum.Add(item.Total)
		items = append(items, item)
	}

	var ok bool
	if subtotal, ok = getDecimal(r, "subtotal", "sub_total", "subTotal"); !ok {
		subtotal = sum
	}
	tax, _ = getDecimal(r, "tax", "tax_amount", "taxAmount")
	discount, _ = getDecimal(r, "discount")
	if total, ok = getDecimal(r, "total", "total_amount", "totalAmount"); !ok {
		total = subtotal.Add(tax).Sub(discount)
	}
	return items, subtotal, tax, discount, total
}

func direction(s string) string {
	switch strings.ToLower(s) {
	case "remove", "subtract", "decrease", "out", "-":
		return schema.AdjustmentRemove
	default:
		return schema.AdjustmentAdd
	}
}

func sequenceNumber(prefix string, id int64) string {
	if id < 0 {
		id = -id
	}
	return fmt.Sprintf("%s-%04d", prefix, id)
}
