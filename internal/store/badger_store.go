package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	badger "github.com/dgraph-io/badger/v4"

	"orderhub/internal/model"
)

// conflictRetries bounds how often an insert is retried after a transaction conflict.
const conflictRetries = 3

// BadgerStore implements Store using BadgerDB. Inserts run in a serializable
// transaction, so concurrent writers of the same id conflict instead of both committing.
type BadgerStore struct {
	db     *badger.DB
	prefix []byte
}

func NewBadgerStore(dir, collection string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(filepath.Clean(dir)).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger open: %w", err)
	}
	return &BadgerStore{db: db, prefix: []byte(collection + "/")}, nil
}

func (b *BadgerStore) Close() error { return b.db.Close() }

func (b *BadgerStore) key(id string) []byte {
	return append(append([]byte(nil), b.prefix...), id...)
}

func (b *BadgerStore) EnsureUnique(context.Context) error {
	marker := []byte("_meta/" + string(b.prefix) + "unique/" + model.FieldOrderID)
	if err := b.db.Update(func(txn *badger.Txn) error { return txn.Set(marker, []byte("1")) }); err != nil {
		return fmt.Errorf("badger ensure unique: %w", err)
	}
	return nil
}

func (b *BadgerStore) InsertIfAbsent(ctx context.Context, o model.CanonicalOrder) (Outcome, error) {
	val, err := json.Marshal(&o)
	if err != nil {
		return unavailable("badger encode", err)
	}
	k := b.key(o.OrderID)
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return unavailable("badger insert", err)
		}
		var exists bool
		err := b.db.Update(func(txn *badger.Txn) error {
			_, err := txn.Get(k)
			if err == nil {
				exists = true
				return nil
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			return txn.Set(k, val)
		})
		switch {
		case err == nil && exists:
			return Duplicate, nil
		case err == nil:
			return Inserted, nil
		case errors.Is(err, badger.ErrConflict) && attempt < conflictRetries:
			// another transaction touched k; re-read decides between insert and duplicate
			continue
		default:
			return unavailable("badger update", err)
		}
	}
}

func (b *BadgerStore) Range(ctx context.Context, fn func(o model.CanonicalOrder) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(b.prefix); it.ValidForPrefix(b.prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			v, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var o model.CanonicalOrder
			if err := json.Unmarshal(v, &o); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			if err := fn(o); err != nil {
				return err
			}
		}
		return nil
	})
}
