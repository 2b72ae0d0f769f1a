package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"orderhub/internal/model"
)

func order(id string, ch model.Channel, total int64) model.CanonicalOrder {
	return model.CanonicalOrder{
		OrderID:     id,
		Channel:     ch,
		Status:      model.StatusConfirmed,
		TotalAmount: decimal.NewFromInt(total),
		Customer:    map[string]any{"nom": "A"},
		Items:       []model.LineItem{{ProductName: "X", Quantity: 1, UnitPrice: decimal.NewFromInt(total), LineTotal: decimal.NewFromInt(total)}},
		OrderedAt:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		ImportedAt:  time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
	}
}

// testStoreContract runs the behaviour every backend must share.
func testStoreContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	if err := s.EnsureUnique(ctx); err != nil {
		t.Fatalf("EnsureUnique: %v", err)
	}
	if err := s.EnsureUnique(ctx); err != nil {
		t.Fatalf("EnsureUnique must be repeatable: %v", err)
	}

	out, err := s.InsertIfAbsent(ctx, order("WEB-1", model.ChannelWeb, 20))
	if err != nil || out != Inserted {
		t.Fatalf("first insert: out=%s err=%v", out, err)
	}
	// same id, different content, different channel: still a duplicate
	out, err = s.InsertIfAbsent(ctx, order("WEB-1", model.ChannelStore, 99))
	if err != nil || out != Duplicate {
		t.Fatalf("second insert: out=%s err=%v", out, err)
	}
	out, err = s.InsertIfAbsent(ctx, order("MOB-1", model.ChannelMobile, 5))
	if err != nil || out != Inserted {
		t.Fatalf("other id: out=%s err=%v", out, err)
	}

	got := map[string]model.CanonicalOrder{}
	if err := s.Range(ctx, func(o model.CanonicalOrder) error {
		if _, seen := got[o.OrderID]; seen {
			return fmt.Errorf("id %s visited twice", o.OrderID)
		}
		got[o.OrderID] = o
		return nil
	}); err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 stored orders, got %d", len(got))
	}
	if w := got["WEB-1"]; w.Channel != model.ChannelWeb || !w.TotalAmount.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("duplicate must not overwrite the first commit: %+v", w)
	}
	if !got["MOB-1"].ImportedAt.Equal(time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("timestamps lost in round trip: %+v", got["MOB-1"])
	}

	sum, err := Summarize(ctx, s)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if sum.Orders != 2 || !sum.Revenue.Equal(decimal.NewFromInt(25)) || len(sum.Groups) != 2 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
}

func TestInMemoryStore_Contract(t *testing.T) {
	testStoreContract(t, NewInMemoryStore())
}

func TestInMemoryStore_Fail(t *testing.T) {
	s := NewInMemoryStore()
	s.Fail = errors.New("connection refused")
	out, err := s.InsertIfAbsent(context.Background(), order("WEB-1", model.ChannelWeb, 1))
	if out != Unavailable || !errors.Is(err, ErrUnavailable) {
		t.Fatalf("want Unavailable/ErrUnavailable, got %s %v", out, err)
	}
	if s.Len() != 0 {
		t.Fatalf("failed insert must not store anything")
	}
}

func TestInMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := NewInMemoryStore().InsertIfAbsent(ctx, order("WEB-1", model.ChannelWeb, 1))
	if out != Unavailable || !errors.Is(err, ErrUnavailable) {
		t.Fatalf("cancelled insert: %s %v", out, err)
	}
}

func TestInMemoryStore_ConcurrentInsertsSameID(t *testing.T) {
	s := NewInMemoryStore()
	var wg sync.WaitGroup
	var mu sync.Mutex
	counts := map[Outcome]int{}
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := s.InsertIfAbsent(context.Background(), order("BOU-1", model.ChannelStore, 1))
			if err != nil {
				t.Errorf("insert err: %v", err)
				return
			}
			mu.Lock()
			counts[out]++
			mu.Unlock()
		}()
	}
	wg.Wait()
	if counts[Inserted] != 1 || counts[Duplicate] != 31 {
		t.Fatalf("want exactly one insert, got %v", counts)
	}
}

func TestOutcomeString(t *testing.T) {
	if Inserted.String() != "inserted" || Duplicate.String() != "duplicate" || Unavailable.String() != "unavailable" {
		t.Fatalf("outcome names changed")
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	if _, err := Open(context.Background(), Options{Backend: "mongo"}); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}
