package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(c.Sources) != 3 || c.Extension != ".json" {
		t.Fatalf("unexpected sources: %+v", c)
	}
	if c.Ingest.PollInterval != 10*time.Second || c.Ingest.ReportEvery != 3 || c.Ingest.InvalidMaxAttempts != 3 {
		t.Fatalf("unexpected ingest defaults: %+v", c.Ingest)
	}
	if c.QuarantineDir != filepath.Join("./data/archive", "errors") {
		t.Fatalf("quarantine dir: %s", c.QuarantineDir)
	}
	if c.Store.Database != "multi_market" || c.Store.Collection != "commandes" || c.Store.Timeout != 5*time.Second {
		t.Fatalf("unexpected store defaults: %+v", c.Store)
	}
	if c.Events.Timeout != 5*time.Second {
		t.Fatalf("events timeout: %s", c.Events.Timeout)
	}
	if !c.FileEventsEnabled() || c.KafkaEnabled() {
		t.Fatalf("default sink should be file only")
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orderhub.yaml")
	body := `
sources: [in/web, in/mobile]
extension: json
archive_dir: out/archive
ingest:
  poll_interval: 2s
  strict_totals: true
store:
  backend: badger
events:
  sink: both
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("ORDERHUB_INGEST_REPORT_EVERY", "5")
	t.Setenv("ORDERHUB_STORE_COLLECTION", "orders")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(c.Sources) != 2 || c.Sources[1] != "in/mobile" {
		t.Fatalf("sources: %v", c.Sources)
	}
	if c.Extension != ".json" {
		t.Fatalf("extension should gain a dot: %q", c.Extension)
	}
	if c.Ingest.PollInterval != 2*time.Second || !c.Ingest.StrictTotals || c.Ingest.ReportEvery != 5 {
		t.Fatalf("ingest: %+v", c.Ingest)
	}
	if c.Store.Backend != "badger" || c.Store.Collection != "orders" {
		t.Fatalf("store: %+v", c.Store)
	}
	if c.QuarantineDir != filepath.Join("out/archive", "errors") {
		t.Fatalf("quarantine: %s", c.QuarantineDir)
	}
	if !c.KafkaEnabled() || !c.FileEventsEnabled() {
		t.Fatalf("both sinks expected")
	}
}

func TestLoad_EnvSourcesList(t *testing.T) {
	t.Setenv("ORDERHUB_SOURCES", "a, b,c")
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if strings.Join(c.Sources, "|") != "a|b|c" {
		t.Fatalf("sources: %v", c.Sources)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestValidate_CollectsErrors(t *testing.T) {
	v := New()
	v.Set("ingest.poll_interval", "0s")
	v.Set("store.backend", "mongo")
	v.Set("events.sink", "stdout")
	v.Set("events.timeout", "0s")
	_, err := FromViper(v)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"ingest.poll_interval", "store.backend", "events.sink", "events.timeout"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("missing %q in %v", want, err)
		}
	}
}

func TestValidate_PostgresNeedsDSN(t *testing.T) {
	v := New()
	v.Set("store.backend", "postgres")
	v.Set("store.dsn", "")
	if _, err := FromViper(v); err == nil || !strings.Contains(err.Error(), "store.dsn") {
		t.Fatalf("expected dsn error, got %v", err)
	}
}
