package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Store documents carry amounts as JSON numbers, like the producers write them.
	decimal.MarshalJSONWithoutQuotes = true
}

// Status is the canonical order status.
type Status string

const (
	StatusConfirmed Status = "confirmée"
	StatusCancelled Status = "annulée"
	StatusUnknown   Status = "inconnu"
)

// ParseStatus maps producer status values onto the canonical enumeration.
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "confirmée", "confirmee", "confirmed":
		return StatusConfirmed
	case "annulée", "annulee", "cancelled", "canceled":
		return StatusCancelled
	}
	return StatusUnknown
}

// LineItem is one ordered product.
type LineItem struct {
	ProductName string          `json:"nom_produit"`
	Quantity    int64           `json:"quantite"`
	UnitPrice   decimal.Decimal `json:"prix_unitaire"`
	LineTotal   decimal.Decimal `json:"prix_total"`
}

// CanonicalOrder is the channel-agnostic record committed to the store.
// Extension fields are only populated for the channel that defines them.
type CanonicalOrder struct {
	OrderID     string          `json:"id_commande"`
	Channel     Channel         `json:"canal"`
	OrderedAt   time.Time       `json:"date_commande"`
	Customer    map[string]any  `json:"client"`
	Items       []LineItem      `json:"produits"`
	TotalAmount decimal.Decimal `json:"montant_total"`
	Status      Status          `json:"statut"`
	ImportedAt  time.Time       `json:"date_import"`

	PaymentMethod string `json:"mode_paiement,omitempty"`

	// web, mobile
	DeliveryAddress map[string]any `json:"adresse_livraison,omitempty"`

	// mobile
	Device           map[string]any   `json:"appareil,omitempty"`
	PickupStore      *string          `json:"boutique_collect,omitempty"`
	DeliveryOption   string           `json:"option_livraison,omitempty"`
	DeliveryFee      *decimal.Decimal `json:"frais_livraison,omitempty"`
	PushNotification *bool            `json:"notification_push,omitempty"`
	PromoCode        *string          `json:"promo_code,omitempty"`

	// in-store
	StoreID       string `json:"boutique,omitempty"`
	SalespersonID string `json:"vendeur_id,omitempty"`
}

// Now is the clock read by Standardize. Split for testability.
var Now = func() time.Time { return time.Now().UTC() }

// Standardize converts a validated source record into the canonical schema.
// Optional fields fall back to defaults; only ch's extension fields are copied.
func Standardize(rec SourceRecord, ch Channel) CanonicalOrder {
	now := Now()
	id, _ := rec.String(FieldOrderID)
	o := CanonicalOrder{
		OrderID:    id,
		Channel:    ch,
		OrderedAt:  now,
		Customer:   map[string]any{},
		Status:     StatusUnknown,
		ImportedAt: now,
	}
	if t, ok := rec.Time(FieldOrderDate); ok {
		o.OrderedAt = t
	}
	if c, ok := rec.Object(FieldCustomer); ok {
		o.Customer = c
	}
	if total, ok := rec.Decimal(FieldTotal); ok {
		o.TotalAmount = total
	}
	if s, ok := rec.String(FieldStatus); ok {
		o.Status = ParseStatus(s)
	}
	o.Items = standardizeItems(rec)

	switch ch {
	case ChannelWeb:
		o.DeliveryAddress = objectOrEmpty(rec, FieldAddress)
		o.PaymentMethod = stringOr(rec, FieldPayment, "inconnu")
	case ChannelMobile:
		o.Device = objectOrEmpty(rec, FieldDevice)
		if addr, ok := rec.Object(FieldAddress); ok {
			o.DeliveryAddress = addr
		}
		o.PickupStore = rec.OptionalString(FieldPickupStore)
		o.PaymentMethod = stringOr(rec, FieldPayment, "inconnu")
		o.DeliveryOption = stringOr(rec, FieldDelivery, "standard")
		fee := decimal.Zero
		if d, ok := rec.Decimal(FieldDeliveryFee); ok {
			fee = d
		}
		o.DeliveryFee = &fee
		push, _ := rec.Bool(FieldPush)
		o.PushNotification = &push
		o.PromoCode = rec.OptionalString(FieldPromoCode)
	case ChannelStore:
		o.StoreID = stringOr(rec, FieldStoreID, "inconnue")
		o.PaymentMethod = stringOr(rec, FieldPayment, "inconnu")
		o.SalespersonID = stringOr(rec, FieldSalespersonID, "inconnu")
	}
	return o
}

func standardizeItems(rec SourceRecord) []LineItem {
	raw, _ := rec.List(FieldItems)
	items := make([]LineItem, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		var it LineItem
		it.ProductName, _ = asString(m[FieldProductName])
		it.Quantity, _ = AsPositiveInt(m[FieldQuantity])
		it.UnitPrice, _ = AsNonNegativeDecimal(m[FieldUnitPrice])
		it.LineTotal, _ = AsNonNegativeDecimal(m[FieldLineTotal])
		items = append(items, it)
	}
	return items
}

func stringOr(rec SourceRecord, field, def string) string {
	if s, ok := rec.String(field); ok {
		return s
	}
	return def
}

func objectOrEmpty(rec SourceRecord, field string) map[string]any {
	if m, ok := rec.Object(field); ok {
		return m
	}
	return map[string]any{}
}

// ItemsTotal sums the line totals of o.
func (o CanonicalOrder) ItemsTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range o.Items {
		sum = sum.Add(it.LineTotal)
	}
	return sum
}
