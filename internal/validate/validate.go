// Package validate runs pre-flight checks over a normalized sync batch.
//
// The sync server enforces NOT NULL constraints on the same fields, so a batch
// that fails here would be rejected remotely anyway. Checking locally saves
// the round trip and lets the user see which record to fix.
package validate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/stockmaster/stocksync/internal/schema"
)

// Violation is one failed rule on one record.
type Violation struct {
	Entity string
	ID     int64
	Name   string
	Field  string
}

// String renders the violation as a corrective message,
// e.g. `purchase price required for product "Widget" (id -1)`.
func (v Violation) String() string {
	field := strings.ReplaceAll(v.Field, "_", " ")
	if v.Name != "" {
		return fmt.Sprintf("%s required for %s %q (id %d)", field, v.Entity, v.Name, v.ID)
	}
	return fmt.Sprintf("%s required for %s %d", field, v.Entity, v.ID)
}

// ValidationError aggregates every violation found in a batch.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.String()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validator checks batches against the server's required-field rules.
type Validator struct {
	v *validator.Validate
}

// New creates a Validator.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(productRules, schema.Product{})
	return &Validator{v: v}
}

var defaultValidator = New()

// Validate checks b with a shared Validator.
func Validate(b *schema.Batch) error {
	return defaultValidator.Validate(b)
}

// Validate returns a *ValidationError listing every violation in b, or nil.
//
// Rules:
//   - every product has a name, purchase price, selling price and stock
//     that were present and numeric before normalization
//   - every category has a non-empty name
//
// An explicit zero price is valid.
func (val *Validator) Validate(b *schema.Batch) error {
	var violations []Violation

	for _, p := range b.Products {
		err := val.v.Struct(p)
		violations = append(violations, collect(err, "product", p.ID, p.Name)...)
	}
	for _, c := range b.Categories {
		err := val.v.Struct(c)
		violations = append(violations, collect(err, "category", c.ID, c.Name)...)
	}

	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

// productRules reports required numeric fields that normalization had to
// zero-fill because the source record lacked them.
func productRules(sl validator.StructLevel) {
	p := sl.Current().Interface().(schema.Product)
	for _, field := range p.Missing {
		switch field {
		case "purchase_price":
			sl.ReportError(p.PurchasePrice, "PurchasePrice", "purchase_price", "resolved", "")
		case "selling_price":
			sl.ReportError(p.SellingPrice, "SellingPrice", "selling_price", "resolved", "")
		case "stock":
			sl.ReportError(p.Stock, "Stock", "stock", "resolved", "")
		}
	}
}

// collect converts validator errors into violations in field order.
func collect(err error, entity string, id int64, name string) []Violation {
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []Violation{{Entity: entity, ID: id, Name: name, Field: err.Error()}}
	}

	out := make([]Violation, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, Violation{
			Entity: entity,
			ID:     id,
			Name:   name,
			Field:  fieldName(fe),
		})
	}
	return out
}

func fieldName(fe validator.FieldError) string {
	switch fe.StructField() {
	case "Name":
		return "name"
	case "PurchasePrice":
		return "purchase_price"
	case "SellingPrice":
		return "selling_price"
	case "Stock":
		return "stock"
	}
	return strings.ToLower(fe.Field())
}
