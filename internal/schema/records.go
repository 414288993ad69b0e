package schema

import (
	"time"

	"github.com/shopspring/decimal"
)

// init switches decimal JSON output to bare numbers process-wide; see the
// package documentation.
func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// Product is a stocked item.
type Product struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name" validate:"required"`
	CategoryID    *int64          `json:"category_id"`
	SupplierID    *int64          `json:"supplier_id"`
	Description   string          `json:"description"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	SellingPrice  decimal.Decimal `json:"selling_price"`
	Stock         int64           `json:"stock"`
	ReorderLevel  int64           `json:"reorder_level"`
	Unit          string          `json:"unit"`
	Barcode       string          `json:"barcode"`
	Location      string          `json:"location"`
	CreatedAt     time.Time       `json:"created_at"`

	// Missing lists required fields that were absent or unparsable in the
	// source record and were zero-filled during normalization.
	Missing []string `json:"-"`
}

// Category groups products.
type Category struct {
	ID          int64  `json:"id"`
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`

	Missing []string `json:"-"`
}

// Supplier provides products.
type Supplier struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	ContactPerson string  `json:"contact_person"`
	Phone         string  `json:"phone"`
	Email         string  `json:"email"`
	Address       string  `json:"address"`
	Products      []int64 `json:"products"`
}

// LineItem is one row of a sale or purchase.
type LineItem struct {
	ProductID int64           `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Total     decimal.Decimal `json:"total"`
}

// Sale is an invoice to a customer. Sales decrease stock.
type Sale struct {
	ID            int64           `json:"id"`
	InvoiceNumber string          `json:"invoice_number"`
	Date          time.Time       `json:"date"`
	Customer      string          `json:"customer"`
	Items         []LineItem      `json:"items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Tax           decimal.Decimal `json:"tax"`
	Discount      decimal.Decimal `json:"discount"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod string          `json:"payment_method"`
	Status        string          `json:"status"`
	Notes         string          `json:"notes"`
}

// Purchase is a supplier order. Purchases increase stock.
type Purchase struct {
	ID              int64           `json:"id"`
	ReferenceNumber string          `json:"reference_number"`
	Date            time.Time       `json:"date"`
	SupplierID      *int64          `json:"supplier_id"`
	Items           []LineItem      `json:"items"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Tax             decimal.Decimal `json:"tax"`
	Discount        decimal.Decimal `json:"discount"`
	Total           decimal.Decimal `json:"total"`
	PaymentMethod   string          `json:"payment_method"`
	Status          string          `json:"status"`
	Notes           string          `json:"notes"`
}

// Adjustment directions.
const (
	AdjustmentAdd    = "add"
	AdjustmentRemove = "remove"
)

// Adjustment is a manual stock correction.
type Adjustment struct {
	ID        int64     `json:"id"`
	Date      time.Time `json:"date"`
	ProductID int64     `json:"product_id"`
	Type      string    `json:"type"`
	Quantity  int64     `json:"quantity"`
	Reason    string    `json:"reason"`
	User      string    `json:"user"`
}

// Activity is an audit log entry. Activity lists are kept newest first.
type Activity struct {
	ID       int64     `json:"id"`
	Date     time.Time `json:"date"`
	Activity string    `json:"activity"`
	User     string    `json:"user"`
	Details  string    `json:"details"`
}

// Settings is the singleton business configuration.
type Settings struct {
	BusinessName      string          `json:"business_name"`
	Currency          string          `json:"currency"`
	TaxRate           decimal.Decimal `json:"tax_rate"`
	LowStockThreshold int64           `json:"low_stock_threshold"`
	InvoicePrefix     string          `json:"invoice_prefix"`
	PurchasePrefix    string          `json:"purchase_prefix"`
}

// DefaultSettings returns the settings used for any field the UI never set.
func DefaultSettings() Settings {
	return Settings{
		BusinessName:      "StockMaster UG",
		Currency:          "UGX",
		TaxRate:           decimal.NewFromInt(18),
		LowStockThreshold: 5,
		InvoicePrefix:     "INV",
		PurchasePrefix:    "PUR",
	}
}

// IsTemporaryID reports whether id is a locally assigned placeholder.
func IsTemporaryID(id int64) bool {
	return id < 0
}
