// Package schema holds the per-channel structural rules an inbound order must satisfy.
package schema

import (
	"fmt"

	"github.com/shopspring/decimal"

	"orderhub/internal/model"
)

// CommonFields are required for every channel, in check order.
var CommonFields = []string{
	model.FieldOrderID,
	model.FieldCustomer,
	model.FieldItems,
	model.FieldTotal,
	model.FieldStatus,
}

// ChannelFields are required in addition to CommonFields, in check order.
var ChannelFields = map[model.Channel][]string{
	model.ChannelWeb:    {model.FieldPayment, model.FieldAddress},
	model.ChannelMobile: {model.FieldPayment, model.FieldDelivery},
	model.ChannelStore:  {model.FieldStoreID, model.FieldPayment},
}

// ItemFields every line item must carry, in check order.
var ItemFields = []string{
	model.FieldProductName,
	model.FieldQuantity,
	model.FieldUnitPrice,
	model.FieldLineTotal,
}

// ValidationError names the first violation found. Item is 1-based; 0 means order level.
type ValidationError struct {
	Field  string
	Item   int
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Item > 0 {
		return fmt.Sprintf("item %d: %s", e.Item, e.Reason)
	}
	return e.Reason
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks rec against the rules for ch and returns the first violation.
// Order: missing common field, missing channel field, item list, first invalid item.
func Validate(rec model.SourceRecord, ch model.Channel) error {
	for _, f := range CommonFields {
		if !rec.Has(f) {
			return invalid(f, "missing common field %q", f)
		}
	}
	if !ch.Known() {
		return invalid(model.FieldChannel, "unknown channel %q", ch)
	}
	for _, f := range ChannelFields[ch] {
		if !rec.Has(f) {
			return invalid(f, "missing field %q for channel %s", f, ch)
		}
	}
	items, ok := rec.List(model.FieldItems)
	if !ok || len(items) == 0 {
		return invalid(model.FieldItems, "field %q must be a non-empty list", model.FieldItems)
	}
	for i, raw := range items {
		if err := validateItem(i+1, raw); err != nil {
			return err
		}
	}
	return validateTypes(rec)
}

func validateItem(idx int, raw any) error {
	item, ok := raw.(map[string]any)
	if !ok {
		return &ValidationError{Field: model.FieldItems, Item: idx, Reason: "not an object"}
	}
	for _, f := range ItemFields {
		if _, ok := item[f]; !ok {
			return &ValidationError{Field: f, Item: idx, Reason: fmt.Sprintf("missing field %q", f)}
		}
	}
	if _, ok := item[model.FieldProductName].(string); !ok {
		return &ValidationError{Field: model.FieldProductName, Item: idx, Reason: fmt.Sprintf("field %q must be a string", model.FieldProductName)}
	}
	if _, ok := model.AsPositiveInt(item[model.FieldQuantity]); !ok {
		return &ValidationError{Field: model.FieldQuantity, Item: idx, Reason: fmt.Sprintf("field %q must be a positive integer", model.FieldQuantity)}
	}
	for _, f := range []string{model.FieldUnitPrice, model.FieldLineTotal} {
		if _, ok := model.AsNonNegativeDecimal(item[f]); !ok {
			return &ValidationError{Field: f, Item: idx, Reason: fmt.Sprintf("field %q must be a non-negative number", f)}
		}
	}
	return nil
}

func validateTypes(rec model.SourceRecord) error {
	if id, ok := rec.String(model.FieldOrderID); !ok || id == "" {
		return invalid(model.FieldOrderID, "field %q must be a non-empty string", model.FieldOrderID)
	}
	if _, ok := rec.Object(model.FieldCustomer); !ok {
		return invalid(model.FieldCustomer, "field %q must be an object", model.FieldCustomer)
	}
	if _, ok := model.AsNonNegativeDecimal(rec[model.FieldTotal]); !ok {
		return invalid(model.FieldTotal, "field %q must be a non-negative number", model.FieldTotal)
	}
	if _, ok := rec.String(model.FieldStatus); !ok {
		return invalid(model.FieldStatus, "field %q must be a string", model.FieldStatus)
	}
	if rec.Has(model.FieldOrderDate) {
		if _, ok := rec.Time(model.FieldOrderDate); !ok {
			return invalid(model.FieldOrderDate, "field %q is not a valid timestamp", model.FieldOrderDate)
		}
	}
	return nil
}

// TotalTolerance is the largest accepted gap between montant_total and the sum of line totals.
var TotalTolerance = decimal.New(1, -2)

// CheckTotal rejects orders whose declared total does not match their line totals.
func CheckTotal(o model.CanonicalOrder) error {
	sum := o.ItemsTotal()
	if o.TotalAmount.Sub(sum).Abs().GreaterThan(TotalTolerance) {
		return invalid(model.FieldTotal, "field %q is %s but line totals sum to %s", model.FieldTotal, o.TotalAmount, sum)
	}
	return nil
}
