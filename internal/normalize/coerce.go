package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stockmaster/stocksync/internal/schema"
)

// lookup returns the first non-null value stored under any of keys.
// Callers pass the snake_case name first, then the camelCase alias.
func lookup(r schema.Record, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := r[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// decimalValue coerces a JSON scalar to a decimal. Strings may carry
// thousands separators, a currency code or surrounding spaces.
func decimalValue(v any) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(x), true
	case float32:
		return decimalValue(float64(x))
	case int:
		return decimal.NewFromInt(int64(x)), true
	case int64:
		return decimal.NewFromInt(x), true
	case bool:
		if x {
			return decimal.NewFromInt(1), true
		}
		return decimal.Zero, true
	case string:
		return parseDecimalString(x)
	}
	return decimal.Zero, false
}

// parseDecimalString accepts a plain or exponent number with optional
// thousands commas and one currency code or symbol ("UGX 1,500",
// "-500 KES", "$12.50"). Anything else left over makes the string
// unparsable rather than being dropped.
func parseDecimalString(s string) (decimal.Decimal, bool) {
	fields := strings.Fields(s)
	if len(fields) > 1 && isCurrencyCode(fields[0]) {
		fields = fields[1:]
	} else if len(fields) > 1 && isCurrencyCode(fields[len(fields)-1]) {
		fields = fields[:len(fields)-1]
	}
	if len(fields) != 1 {
		return decimal.Zero, false
	}
	clean := strings.ReplaceAll(fields[0], ",", "")
	for _, sym := range currencySymbols {
		if rest, ok := strings.CutPrefix(clean, sym); ok {
			clean = rest
			break
		}
		if rest, ok := strings.CutPrefix(clean, "-"+sym); ok {
			clean = "-" + rest
			break
		}
	}
	if clean == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

var currencySymbols = []string{"$", "€", "£"}

// isCurrencyCode matches tokens such as UGX, KES, Ks or USD.
func isCurrencyCode(s string) bool {
	if len(s) < 2 || len(s) > 4 {
		return false
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}

var (
	minInt64 = decimal.NewFromInt(math.MinInt64)
	maxInt64 = decimal.NewFromInt(math.MaxInt64)
)

// intValue coerces a JSON scalar to an integer, truncating fractions.
// Values outside the int64 range are unparsable.
func intValue(v any) (int64, bool) {
	d, ok := decimalValue(v)
	if !ok {
		return 0, false
	}
	d = d.Truncate(0)
	if d.LessThan(minInt64) || d.GreaterThan(maxInt64) {
		return 0, false
	}
	return d.IntPart(), true
}

// stringValue renders a JSON scalar as a string. Objects and arrays
// render as empty.
func stringValue(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	}
	return ""
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// timeValue parses ISO timestamps, HTML date inputs and epoch milliseconds.
func timeValue(v any) (time.Time, bool) {
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}
		return time.Time{}, false
	case json.Number, float64, int64, int:
		ms, ok := intValue(x)
		if !ok || ms <= 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(ms).UTC(), true
	}
	return time.Time{}, false
}

// Field accessors used by the per-entity normalizers.

func getString(r schema.Record, keys ...string) string {
	v, ok := lookup(r, keys...)
	if !ok {
		return ""
	}
	return stringValue(v)
}

func getStringOr(r schema.Record, fallback string, keys ...string) string {
	if s := getString(r, keys...); s != "" {
		return s
	}
	return fallback
}

func getInt(r schema.Record, keys ...string) (int64, bool) {
	v, ok := lookup(r, keys...)
	if !ok {
		return 0, false
	}
	return intValue(v)
}

func getDecimal(r schema.Record, keys ...string) (decimal.Decimal, bool) {
	v, ok := lookup(r, keys...)
	if !ok {
		return decimal.Zero, false
	}
	return decimalValue(v)
}

// getRef returns a foreign key, or nil when it is absent, unparsable or zero.
func getRef(r schema.Record, keys ...string) *int64 {
	id, ok := getInt(r, keys...)
	if !ok || id == 0 {
		return nil
	}
	return &id
}

func getTime(r schema.Record, now time.Time, keys ...string) time.Time {
	v, ok := lookup(r, keys...)
	if !ok {
		return now
	}
	if t, ok := timeValue(v); ok {
		return t
	}
	return now
}

func getRecords(r schema.Record, keys ...string) []schema.Record {
	v, ok := lookup(r, keys...)
	if !ok {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]schema.Record, 0, len(list))
	for _, item := range list {
		if rec, ok := item.(map[string]any); ok {
			out = append(out, rec)
		}
	}
	return out
}

func getIDs(r schema.Record, keys ...string) []int64 {
	out := []int64{}
	v, ok := lookup(r, keys...)
	if !ok {
		return out
	}
	list, ok := v.([]any)
	if !ok {
		return out
	}
	for _, item := range list {
		if id, ok := intValue(item); ok && id != 0 {
			out = append(out, id)
		}
	}
	return out
}
