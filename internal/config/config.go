// Package config loads orderhub settings from defaults, an optional file and ORDERHUB_* env vars.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Sources       []string
	Extension     string
	ArchiveDir    string
	QuarantineDir string
	Ingest        IngestConfig
	Store         StoreConfig
	Archive       ArchiveConfig
	Events        EventsConfig
	Kafka         KafkaConfig
	ReportDir     string
	HTTPAddr      string
	Log           LogConfig
}

type IngestConfig struct {
	PollInterval       time.Duration
	ReportEvery        int
	InvalidMaxAttempts int
	StrictTotals       bool
}

type StoreConfig struct {
	Backend    string // postgres|pebble|badger|memory
	DSN        string
	Database   string
	Collection string
	Path       string
	Timeout    time.Duration
}

type ArchiveConfig struct {
	Backend string // fs|minio
	Minio   MinioConfig
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type EventsConfig struct {
	Sink    string // none|file|kafka|both
	Dir     string
	Timeout time.Duration
}

type KafkaConfig struct {
	Brokers     string
	TopicEvents string
	TopicStats  string
}

type LogConfig struct {
	Level  string
	Format string // json|console
}

// SetDefaults registers every key with its default.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("sources", []string{
		"./data/sources/site_web",
		"./data/sources/application_mobile",
		"./data/sources/boutique_physique",
	})
	v.SetDefault("extension", ".json")
	v.SetDefault("archive_dir", "./data/archive")
	v.SetDefault("quarantine_dir", "") // derived from archive_dir

	v.SetDefault("ingest.poll_interval", 10*time.Second)
	v.SetDefault("ingest.report_every", 3)
	v.SetDefault("ingest.invalid_max_attempts", 3)
	v.SetDefault("ingest.strict_totals", false)

	v.SetDefault("store.backend", "pebble")
	v.SetDefault("store.dsn", "postgres://localhost:5432/postgres?sslmode=disable")
	v.SetDefault("store.database", "multi_market")
	v.SetDefault("store.collection", "commandes")
	v.SetDefault("store.path", "./data/store")
	v.SetDefault("store.timeout", 5*time.Second)

	v.SetDefault("archive.backend", "fs")
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.access_key", "")
	v.SetDefault("minio.secret_key", "")
	v.SetDefault("minio.bucket", "orderhub-archive")
	v.SetDefault("minio.use_ssl", false)

	v.SetDefault("events.sink", "file")
	v.SetDefault("events.dir", "./data/events")
	v.SetDefault("events.timeout", 5*time.Second)
	v.SetDefault("kafka.brokers", "localhost:9092")
	v.SetDefault("kafka.topic_events", "orderhub.ingest")
	v.SetDefault("kafka.topic_stats", "orderhub.stats")

	v.SetDefault("report.dir", "./data/report")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// New returns a viper instance with defaults and env binding but no file.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("ORDERHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path when non-empty and maps everything into Config.
func Load(path string) (Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	return FromViper(v)
}

// FromViper maps v into a validated Config.
func FromViper(v *viper.Viper) (Config, error) {
	c := Config{
		Sources:       sources(v),
		Extension:     v.GetString("extension"),
		ArchiveDir:    v.GetString("archive_dir"),
		QuarantineDir: v.GetString("quarantine_dir"),
		Ingest: IngestConfig{
			PollInterval:       v.GetDuration("ingest.poll_interval"),
			ReportEvery:        v.GetInt("ingest.report_every"),
			InvalidMaxAttempts: v.GetInt("ingest.invalid_max_attempts"),
			StrictTotals:       v.GetBool("ingest.strict_totals"),
		},
		Store: StoreConfig{
			Backend:    strings.ToLower(v.GetString("store.backend")),
			DSN:        v.GetString("store.dsn"),
			Database:   v.GetString("store.database"),
			Collection: v.GetString("store.collection"),
			Path:       v.GetString("store.path"),
			Timeout:    v.GetDuration("store.timeout"),
		},
		Archive: ArchiveConfig{
			Backend: strings.ToLower(v.GetString("archive.backend")),
			Minio: MinioConfig{
				Endpoint:  v.GetString("minio.endpoint"),
				AccessKey: v.GetString("minio.access_key"),
				SecretKey: v.GetString("minio.secret_key"),
				Bucket:    v.GetString("minio.bucket"),
				UseSSL:    v.GetBool("minio.use_ssl"),
			},
		},
		Events: EventsConfig{
			Sink:    strings.ToLower(v.GetString("events.sink")),
			Dir:     v.GetString("events.dir"),
			Timeout: v.GetDuration("events.timeout"),
		},
		Kafka: KafkaConfig{
			Brokers:     v.GetString("kafka.brokers"),
			TopicEvents: v.GetString("kafka.topic_events"),
			TopicStats:  v.GetString("kafka.topic_stats"),
		},
		ReportDir: v.GetString("report.dir"),
		HTTPAddr:  v.GetString("http.addr"),
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}
	if c.QuarantineDir == "" {
		c.QuarantineDir = filepath.Join(c.ArchiveDir, "errors")
	}
	if c.Extension != "" && !strings.HasPrefix(c.Extension, ".") {
		c.Extension = "." + c.Extension
	}
	return c, c.Validate()
}

// sources accepts a list from a file or one comma-separated string from the env.
func sources(v *viper.Viper) []string {
	if s, ok := v.Get("sources").(string); ok {
		return splitList(s)
	}
	return v.GetStringSlice("sources")
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c Config) Validate() error {
	var errs []error
	if len(c.Sources) == 0 {
		errs = append(errs, errors.New("sources: at least one directory is required"))
	}
	if c.Extension == "" {
		errs = append(errs, errors.New("extension: must not be empty"))
	}
	if c.ArchiveDir == "" && c.Archive.Backend == "fs" {
		errs = append(errs, errors.New("archive_dir: must not be empty"))
	}
	if c.Ingest.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("ingest.poll_interval: must be positive, got %s", c.Ingest.PollInterval))
	}
	if c.Ingest.ReportEvery <= 0 {
		errs = append(errs, fmt.Errorf("ingest.report_every: must be positive, got %d", c.Ingest.ReportEvery))
	}
	if c.Ingest.InvalidMaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("ingest.invalid_max_attempts: must be >= 0, got %d", c.Ingest.InvalidMaxAttempts))
	}
	if c.Store.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("store.timeout: must be positive, got %s", c.Store.Timeout))
	}
	switch c.Store.Backend {
	case "postgres":
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn: required for postgres"))
		}
	case "pebble", "badger":
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path: required for embedded backends"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("store.backend: unknown %q", c.Store.Backend))
	}
	if c.Store.Collection == "" {
		errs = append(errs, errors.New("store.collection: must not be empty"))
	}
	switch c.Archive.Backend {
	case "fs":
	case "minio":
		if c.Archive.Minio.Endpoint == "" || c.Archive.Minio.Bucket == "" {
			errs = append(errs, errors.New("minio: endpoint and bucket are required"))
		}
	default:
		errs = append(errs, fmt.Errorf("archive.backend: unknown %q", c.Archive.Backend))
	}
	if c.Events.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("events.timeout: must be positive, got %s", c.Events.Timeout))
	}
	switch c.Events.Sink {
	case "none", "file", "kafka", "both":
	default:
		errs = append(errs, fmt.Errorf("events.sink: unknown %q", c.Events.Sink))
	}
	return errors.Join(errs...)
}

// KafkaEnabled reports whether events and statistics also go to Kafka.
func (c Config) KafkaEnabled() bool {
	return c.Events.Sink == "kafka" || c.Events.Sink == "both"
}

// FileEventsEnabled reports whether events go to the JSONL log.
func (c Config) FileEventsEnabled() bool {
	return c.Events.Sink == "file" || c.Events.Sink == "both"
}
