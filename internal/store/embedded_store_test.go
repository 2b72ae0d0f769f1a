package store

import (
	"context"
	"sync"
	"testing"

	"orderhub/internal/model"
)

func TestPebbleStore_Contract(t *testing.T) {
	st, err := NewPebbleStore(t.TempDir(), "commandes")
	if err != nil {
		t.Fatalf("pebble open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	testStoreContract(t, st)
}

func TestPebbleStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	st, err := NewPebbleStore(dir, "commandes")
	if err != nil {
		t.Fatalf("pebble open: %v", err)
	}
	if out, err := st.InsertIfAbsent(context.Background(), order("WEB-7", model.ChannelWeb, 3)); err != nil || out != Inserted {
		t.Fatalf("insert: %s %v", out, err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	st, err = NewPebbleStore(dir, "commandes")
	if err != nil {
		t.Fatalf("pebble reopen: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if out, err := st.InsertIfAbsent(context.Background(), order("WEB-7", model.ChannelWeb, 3)); err != nil || out != Duplicate {
		t.Fatalf("re-ingest after restart: %s %v", out, err)
	}
}

func TestPebbleStore_CollectionsAreIsolated(t *testing.T) {
	dir := t.TempDir()
	st, err := NewPebbleStore(dir, "a")
	if err != nil {
		t.Fatalf("pebble open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	_, _ = st.InsertIfAbsent(context.Background(), order("X-1", model.ChannelWeb, 1))
	other := &PebbleStore{db: st.db, prefix: []byte("b/")}
	if out, _ := other.InsertIfAbsent(context.Background(), order("X-1", model.ChannelWeb, 1)); out != Inserted {
		t.Fatalf("collection b should not see collection a: %s", out)
	}
	n := 0
	_ = st.Range(context.Background(), func(model.CanonicalOrder) error { n++; return nil })
	if n != 1 {
		t.Fatalf("range over a: got %d orders", n)
	}
}

func TestBadgerStore_Contract(t *testing.T) {
	st, err := NewBadgerStore(t.TempDir(), "commandes")
	if err != nil {
		t.Fatalf("badger open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	testStoreContract(t, st)
}

func TestBadgerStore_ConcurrentInsertsSameID(t *testing.T) {
	st, err := NewBadgerStore(t.TempDir(), "commandes")
	if err != nil {
		t.Fatalf("badger open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	var wg sync.WaitGroup
	var mu sync.Mutex
	counts := map[Outcome]int{}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, _ := st.InsertIfAbsent(context.Background(), order("MOB-3", model.ChannelMobile, 1))
			mu.Lock()
			counts[out]++
			mu.Unlock()
		}()
	}
	wg.Wait()
	if counts[Inserted] != 1 {
		t.Fatalf("want exactly one insert, got %v", counts)
	}
	n := 0
	_ = st.Range(context.Background(), func(model.CanonicalOrder) error { n++; return nil })
	if n != 1 {
		t.Fatalf("want one stored order, got %d", n)
	}
}

func TestPrefixEnd(t *testing.T) {
	if got := string(prefixEnd([]byte("abc/"))); got != "abc0" {
		t.Fatalf("prefixEnd: %q", got)
	}
	if got := prefixEnd([]byte{0xff, 0xff}); got != nil {
		t.Fatalf("all-0xff prefix has no end: %v", got)
	}
}
