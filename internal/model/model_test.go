package model

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

const webOrder = `{
  "id_commande": "WEB-1",
  "canal": "site_web",
  "date_commande": "2025-03-01T10:15:00.123456",
  "client": {"nom": "A", "email": "a@example.com"},
  "produits": [{"nom_produit": "X", "quantite": 2, "prix_unitaire": 10, "prix_total": 20}],
  "montant_total": 20,
  "statut": "confirmée",
  "mode_paiement": "carte_bancaire",
  "adresse_livraison": {"ville": "Rabat"},
  "appareil": {"type": "iPhone"},
  "boutique": "B1"
}`

func fixedNow(t *testing.T, ts time.Time) {
	old := Now
	t.Cleanup(func() { Now = old })
	Now = func() time.Time { return ts }
}

func TestDecodeSourceRecord(t *testing.T) {
	rec, err := DecodeSourceBytes([]byte(webOrder))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if id, ok := rec.String(FieldOrderID); !ok || id != "WEB-1" {
		t.Fatalf("id: got %q ok=%v", id, ok)
	}
	if _, ok := rec[FieldTotal].(json.Number); !ok {
		t.Fatalf("numbers should decode as json.Number, got %T", rec[FieldTotal])
	}
}

func TestDecodeSourceRecord_Malformed(t *testing.T) {
	cases := map[string]string{
		"syntax":   `{"id_commande": "WEB-1",`,
		"array":    `[1, 2, 3]`,
		"trailing": `{"a": 1} {"b": 2}`,
		"empty":    ``,
		"latin-1":  "{\"id_commande\": \"WEB-\xe9\"}",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeSourceBytes([]byte(in))
			if !errors.Is(err, ErrDecode) {
				t.Fatalf("want ErrDecode, got %v", err)
			}
		})
	}
}

func TestStandardize_Web(t *testing.T) {
	now := time.Date(2025, 3, 2, 8, 0, 0, 0, time.UTC)
	fixedNow(t, now)
	rec, err := DecodeSourceBytes([]byte(webOrder))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	o := Standardize(rec, ChannelWeb)
	if o.OrderID != "WEB-1" || o.Channel != ChannelWeb || o.Status != StatusConfirmed {
		t.Fatalf("unexpected common fields: %+v", o)
	}
	if !o.ImportedAt.Equal(now) {
		t.Fatalf("date_import: got %v want %v", o.ImportedAt, now)
	}
	if want := time.Date(2025, 3, 1, 10, 15, 0, 123456000, time.UTC); !o.OrderedAt.Equal(want) {
		t.Fatalf("date_commande: got %v want %v", o.OrderedAt, want)
	}
	if len(o.Items) != 1 || o.Items[0].Quantity != 2 || !o.Items[0].LineTotal.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("items: %+v", o.Items)
	}
	if o.PaymentMethod != "carte_bancaire" || o.DeliveryAddress["ville"] != "Rabat" {
		t.Fatalf("web extensions missing: %+v", o)
	}
	if o.Device != nil || o.StoreID != "" || o.DeliveryFee != nil {
		t.Fatalf("fields from other channels leaked: %+v", o)
	}
}

func TestStandardize_Defaults(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	fixedNow(t, now)
	rec := SourceRecord{FieldOrderID: "MOB-9"}
	o := Standardize(rec, ChannelMobile)
	if o.Status != StatusUnknown || !o.TotalAmount.IsZero() || !o.OrderedAt.Equal(now) {
		t.Fatalf("common defaults: %+v", o)
	}
	if o.PaymentMethod != "inconnu" || o.DeliveryOption != "standard" {
		t.Fatalf("mobile defaults: %+v", o)
	}
	if o.DeliveryFee == nil || !o.DeliveryFee.IsZero() || o.PushNotification == nil || *o.PushNotification {
		t.Fatalf("mobile fee/push defaults: %+v", o)
	}
	if o.PromoCode != nil || o.PickupStore != nil {
		t.Fatalf("absent optional strings should stay nil: %+v", o)
	}

	s := Standardize(SourceRecord{FieldOrderID: "BOU-1"}, ChannelStore)
	if s.StoreID != "inconnue" || s.SalespersonID != "inconnu" || s.PaymentMethod != "inconnu" {
		t.Fatalf("in-store defaults: %+v", s)
	}
}

func TestCanonicalOrder_JSONShape(t *testing.T) {
	fixedNow(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	rec, _ := DecodeSourceBytes([]byte(webOrder))
	b, err := json.Marshal(Standardize(rec, ChannelWeb))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["canal"] != "site_web" || m["montant_total"] != float64(20) {
		t.Fatalf("unexpected document: %s", b)
	}
	if _, ok := m["appareil"]; ok {
		t.Fatalf("mobile field in web document: %s", b)
	}
}

func TestParseChannelAndStatus(t *testing.T) {
	if ParseChannel("Web") != ChannelWeb || ParseChannel("in-store") != ChannelStore || ParseChannel("fax") != ChannelUnknown {
		t.Fatalf("ParseChannel mapping broken")
	}
	if ParseStatus("annulée") != StatusCancelled || ParseStatus("confirmed") != StatusConfirmed || ParseStatus("?") != StatusUnknown {
		t.Fatalf("ParseStatus mapping broken")
	}
}

func TestAsPositiveInt(t *testing.T) {
	if n, ok := AsPositiveInt(json.Number("2.0")); !ok || n != 2 {
		t.Fatalf("2.0: n=%d ok=%v", n, ok)
	}
	if n, ok := AsPositiveInt(json.Number("9223372036854775807")); !ok || n != math.MaxInt64 {
		t.Fatalf("max int64: n=%d ok=%v", n, ok)
	}
	for _, v := range []any{json.Number("0"), json.Number("1.5"), json.Number("-1"), "3",
		json.Number("9223372036854775808"), json.Number("18446744073709551617")} {
		if _, ok := AsPositiveInt(v); ok {
			t.Fatalf("%v should be rejected", v)
		}
	}
}
