package store

import (
	"context"
	"fmt"
	"path/filepath"
)

// Options selects and configures a backend.
type Options struct {
	Backend    string // postgres|pebble|badger|memory
	DSN        string
	Database   string
	Collection string
	Path       string
}

// Open builds the configured backend. It does not create the uniqueness constraint.
func Open(ctx context.Context, o Options) (Store, error) {
	switch o.Backend {
	case "postgres":
		return NewPostgresStore(ctx, o.DSN, o.Database, o.Collection)
	case "pebble":
		return NewPebbleStore(filepath.Join(o.Path, o.Database), o.Collection)
	case "badger":
		return NewBadgerStore(filepath.Join(o.Path, o.Database), o.Collection)
	case "memory":
		return NewInMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", o.Backend)
}
