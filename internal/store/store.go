package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"orderhub/internal/model"
)

// Outcome is the result of InsertIfAbsent.
type Outcome int

const (
	Inserted Outcome = iota
	Duplicate
	Unavailable
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Duplicate:
		return "duplicate"
	case Unavailable:
		return "unavailable"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// ErrUnavailable wraps every connectivity or transient backend failure.
var ErrUnavailable = errors.New("store unavailable")

// Store persists canonical orders keyed by a unique order id.
// Uniqueness is enforced by the backend itself, never only by the caller.
type Store interface {
	// EnsureUnique creates the uniqueness constraint on the order id. Safe to repeat.
	EnsureUnique(ctx context.Context) error
	// InsertIfAbsent commits o unless an order with the same id exists.
	// A non-nil error always comes with Unavailable.
	InsertIfAbsent(ctx context.Context, o model.CanonicalOrder) (Outcome, error)
	// Range visits every stored order.
	Range(ctx context.Context, fn func(o model.CanonicalOrder) error) error
	Close() error
}

func unavailable(op string, err error) (Outcome, error) {
	return Unavailable, fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

// InMemoryStore is a thread-safe map store used by tests and the memory backend.
type InMemoryStore struct {
	mu     sync.RWMutex
	orders map[string]model.CanonicalOrder
	// Fail, when set, is returned by every insert to simulate an outage.
	Fail error
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{orders: make(map[string]model.CanonicalOrder)}
}

func (s *InMemoryStore) EnsureUnique(context.Context) error { return nil }

func (s *InMemoryStore) InsertIfAbsent(ctx context.Context, o model.CanonicalOrder) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return unavailable("insert", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return unavailable("insert", s.Fail)
	}
	if _, ok := s.orders[o.OrderID]; ok {
		return Duplicate, nil
	}
	s.orders[o.OrderID] = o
	return Inserted, nil
}

func (s *InMemoryStore) Get(id string) (model.CanonicalOrder, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	return o, ok
}

func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}

// Range visits orders sorted by id.
func (s *InMemoryStore) Range(ctx context.Context, fn func(o model.CanonicalOrder) error) error {
	s.mu.RLock()
	ids := make([]string, 0, len(s.orders))
	for id := range s.orders {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	orders := make([]model.CanonicalOrder, 0, len(ids))
	for _, id := range ids {
		orders = append(orders, s.orders[id])
	}
	s.mu.RUnlock()
	for _, o := range orders {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(o); err != nil {
			return fmt.Errorf("range callback failed: %w", err)
		}
	}
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
