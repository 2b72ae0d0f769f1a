package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// ErrDecode marks content that is not a well-formed JSON object.
var ErrDecode = errors.New("decode source record")

// Wire field names shared by producers, the schema and the canonical store document.
const (
	FieldOrderID       = "id_commande"
	FieldChannel       = "canal"
	FieldOrderDate     = "date_commande"
	FieldCustomer      = "client"
	FieldItems         = "produits"
	FieldTotal         = "montant_total"
	FieldStatus        = "statut"
	FieldImportedAt    = "date_import"
	FieldProductName   = "nom_produit"
	FieldQuantity      = "quantite"
	FieldUnitPrice     = "prix_unitaire"
	FieldLineTotal     = "prix_total"
	FieldPayment       = "mode_paiement"
	FieldAddress       = "adresse_livraison"
	FieldDevice        = "appareil"
	FieldPickupStore   = "boutique_collect"
	FieldDelivery      = "option_livraison"
	FieldDeliveryFee   = "frais_livraison"
	FieldPush          = "notification_push"
	FieldPromoCode     = "promo_code"
	FieldStoreID       = "boutique"
	FieldSalespersonID = "vendeur_id"
)

// SourceRecord is the raw document decoded from one source file.
// Typed accessors never assume a field is present or well-typed.
type SourceRecord map[string]any

// DecodeSourceRecord reads exactly one JSON object. Numbers are kept as json.Number
// so amounts reach decimal parsing without float rounding. Content that is not
// valid UTF-8 is rejected rather than silently repaired.
func DecodeSourceRecord(r io.Reader) (SourceRecord, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	if !utf8.Valid(b) {
		return nil, fmt.Errorf("%w: content is not valid UTF-8", ErrDecode)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after object", ErrDecode)
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: top-level value is %T, want object", ErrDecode, raw)
	}
	return SourceRecord(obj), nil
}

// DecodeSourceBytes is DecodeSourceRecord over an in-memory buffer.
func DecodeSourceBytes(b []byte) (SourceRecord, error) {
	return DecodeSourceRecord(bytes.NewReader(b))
}

func (r SourceRecord) Has(field string) bool {
	_, ok := r[field]
	return ok
}

func (r SourceRecord) String(field string) (string, bool) {
	return asString(r[field])
}

func (r SourceRecord) Object(field string) (map[string]any, bool) {
	m, ok := r[field].(map[string]any)
	return m, ok
}

func (r SourceRecord) List(field string) ([]any, bool) {
	l, ok := r[field].([]any)
	return l, ok
}

func (r SourceRecord) Decimal(field string) (decimal.Decimal, bool) {
	return asDecimal(r[field])
}

func (r SourceRecord) Bool(field string) (bool, bool) {
	b, ok := r[field].(bool)
	return b, ok
}

// Time parses an ISO-8601 timestamp field.
func (r SourceRecord) Time(field string) (time.Time, bool) {
	s, ok := r.String(field)
	if !ok {
		return time.Time{}, false
	}
	return ParseTimestamp(s)
}

// OptionalString returns nil for absent or null fields.
func (r SourceRecord) OptionalString(field string) *string {
	s, ok := r.String(field)
	if !ok {
		return nil
	}
	return &s
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp accepts RFC 3339 and the zone-less ISO forms producers emit; zone-less values are UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	}
	return decimal.Decimal{}, false
}

var maxInt64 = decimal.NewFromInt(math.MaxInt64)

// AsPositiveInt accepts integral numbers greater than zero, including "2.0",
// up to math.MaxInt64.
func AsPositiveInt(v any) (int64, bool) {
	d, ok := asDecimal(v)
	if !ok || !d.IsInteger() || !d.IsPositive() || d.GreaterThan(maxInt64) {
		return 0, false
	}
	return d.IntPart(), true
}

// AsNonNegativeDecimal accepts numbers that are zero or greater.
func AsNonNegativeDecimal(v any) (decimal.Decimal, bool) {
	d, ok := asDecimal(v)
	if !ok || d.IsNegative() {
		return decimal.Decimal{}, false
	}
	return d, true
}
