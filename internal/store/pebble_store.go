package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble"

	"orderhub/internal/model"
)

// PebbleStore implements Store using PebbleDB. The order id is the key, so a second
// write for the same id is detected by the key space itself.
type PebbleStore struct {
	db     *pebble.DB
	prefix []byte
	// pebble has no read-modify-write transactions; mu makes Get+Set atomic in this process.
	mu sync.Mutex
}

// NewPebbleStore opens dir. collection namespaces the keys.
func NewPebbleStore(dir, collection string) (*PebbleStore, error) {
	opts := &pebble.Options{
		L0CompactionThreshold: 4,
		L0StopWritesThreshold: 8,
		WALBytesPerSync:       1 << 20,
	}
	d, err := pebble.Open(filepath.Clean(dir), opts)
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &PebbleStore{db: d, prefix: []byte(collection + "/")}, nil
}

func (p *PebbleStore) Close() error { return p.db.Close() }

func (p *PebbleStore) key(id string) []byte {
	return append(append([]byte(nil), p.prefix...), id...)
}

func (p *PebbleStore) metaKey() []byte {
	return []byte("_meta/" + string(p.prefix) + "unique/" + model.FieldOrderID)
}

// EnsureUnique records the constraint marker; keys are unique by construction.
func (p *PebbleStore) EnsureUnique(context.Context) error {
	if err := p.db.Set(p.metaKey(), []byte("1"), pebble.Sync); err != nil {
		return fmt.Errorf("pebble ensure unique: %w", err)
	}
	return nil
}

func (p *PebbleStore) InsertIfAbsent(ctx context.Context, o model.CanonicalOrder) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return unavailable("pebble insert", err)
	}
	k := p.key(o.OrderID)
	p.mu.Lock()
	defer p.mu.Unlock()
	_, closer, err := p.db.Get(k)
	if err == nil {
		_ = closer.Close()
		return Duplicate, nil
	}
	if !errors.Is(err, pebble.ErrNotFound) {
		return unavailable("pebble get", err)
	}
	val, err := json.Marshal(&o)
	if err != nil {
		return unavailable("pebble encode", err)
	}
	if err := p.db.Set(k, val, pebble.Sync); err != nil {
		return unavailable("pebble set", err)
	}
	return Inserted, nil
}

func (p *PebbleStore) Range(ctx context.Context, fn func(o model.CanonicalOrder) error) error {
	it, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: p.prefix,
		UpperBound: prefixEnd(p.prefix),
	})
	if err != nil {
		return fmt.Errorf("pebble iter: %w", err)
	}
	defer it.Close()
	for it.First(); it.Valid(); it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var o model.CanonicalOrder
		if err := json.Unmarshal(it.Value(), &o); err != nil {
			return fmt.Errorf("decode %s: %w", it.Key(), err)
		}
		if err := fn(o); err != nil {
			return err
		}
	}
	return it.Error()
}

// prefixEnd returns the smallest key greater than every key starting with prefix.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
