package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"orderhub/internal/changelog"
	"orderhub/internal/config"
	"orderhub/internal/ingest"
	"orderhub/internal/lifecycle"
	"orderhub/internal/logging"
	"orderhub/internal/metrics"
	"orderhub/internal/report"
	"orderhub/internal/server"
	"orderhub/internal/store"
)

// Flags override individual config keys after the file and env are applied.
type Flags struct {
	ConfigPath   string
	StoreBackend string
	HTTPAddr     string
	Once         bool
}

func main() {
	f := readFlags()
	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		log.Fatalf("orderhub: %v", err)
	}
	if err := applyFlags(&cfg, f); err != nil {
		log.Fatalf("orderhub: %v", err)
	}
	if err := run(cfg, f.Once); err != nil {
		log.Fatalf("orderhub failed: %v", err)
	}
}

// applyFlags overrides cfg with the non-empty flags, normalized like their config keys.
func applyFlags(cfg *config.Config, f Flags) error {
	if f.StoreBackend != "" {
		cfg.Store.Backend = strings.ToLower(strings.TrimSpace(f.StoreBackend))
	}
	if f.HTTPAddr != "" {
		cfg.HTTPAddr = f.HTTPAddr
	}
	return cfg.Validate()
}

func readFlags() Flags {
	var f Flags
	flag.StringVar(&f.ConfigPath, "config", "", "config file (yaml, json or toml); ORDERHUB_* env vars override it")
	flag.StringVar(&f.StoreBackend, "store", "", "store backend override: postgres|pebble|badger|memory")
	flag.StringVar(&f.HTTPAddr, "http-addr", "", "status server address override; empty keeps the config value")
	flag.BoolVar(&f.Once, "once", false, "run a single cycle and exit")
	flag.Parse()
	return f
}

func run(cfg config.Config, once bool) error {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	printBanner(cfg, runID)

	// Store: reaching it and creating the constraint is the only fatal step.
	openCtx, cancel := context.WithTimeout(ctx, 2*cfg.Store.Timeout)
	st, err := store.Open(openCtx, store.Options{
		Backend:    cfg.Store.Backend,
		DSN:        cfg.Store.DSN,
		Database:   cfg.Store.Database,
		Collection: cfg.Store.Collection,
		Path:       cfg.Store.Path,
	})
	if err != nil {
		cancel()
		return fmt.Errorf("connect store: %w", err)
	}
	defer st.Close()
	if err := st.EnsureUnique(openCtx); err != nil {
		cancel()
		return fmt.Errorf("ensure unique constraint: %w", err)
	}
	cancel()
	logger.Info("store ready", zap.String("backend", cfg.Store.Backend), zap.String("database", cfg.Store.Database), zap.String("collection", cfg.Store.Collection))

	files, err := buildLifecycle(ctx, cfg)
	if err != nil {
		return err
	}

	// Event log and statistics sinks (file by default; kafka optional)
	var sinks []changelog.Writer
	pubs := []report.Publisher{report.NewFilesystemPublisher(cfg.ReportDir)}
	if cfg.FileEventsEnabled() {
		fw, err := changelog.NewFileWriter(cfg.Events.Dir, "ingest.jsonl")
		if err != nil {
			return fmt.Errorf("init event log: %w", err)
		}
		sinks = append(sinks, fw)
	}
	if cfg.KafkaEnabled() {
		kw := changelog.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents, cfg.Events.Timeout)
		defer kw.Close()
		sinks = append(sinks, kw)
		kp := report.NewKafkaPublisher(changelog.SplitBrokers(cfg.Kafka.Brokers), cfg.Kafka.TopicStats, report.DefaultKafkaKey, cfg.Events.Timeout)
		defer kp.Close()
		pubs = append(pubs, kp)
	}
	var events changelog.Writer = changelog.Discard{}
	if len(sinks) > 0 {
		events = changelog.NewMultiWriter(sinks...)
	}

	reg := metrics.NewRegistry()
	loop, err := ingest.New(ingest.Options{
		Sources:            cfg.Sources,
		Extension:          cfg.Extension,
		PollInterval:       cfg.Ingest.PollInterval,
		ReportEvery:        cfg.Ingest.ReportEvery,
		InvalidMaxAttempts: cfg.Ingest.InvalidMaxAttempts,
		StrictTotals:       cfg.Ingest.StrictTotals,
		StoreTimeout:       cfg.Store.Timeout,
		SinkTimeout:        cfg.Events.Timeout,
		Store:              st,
		Files:              files,
		Events:             events,
		Publisher:          report.MultiPublisher(pubs...),
		Metrics:            reg,
		Logger:             logger,
		RunID:              runID,
	})
	if err != nil {
		return err
	}

	if once {
		loop.RunCycle(ctx)
		return report.Render(os.Stdout, loop.Stats().Snapshot(time.Now().UTC()))
	}

	if cfg.HTTPAddr != "" {
		engine := server.NewEngine(server.Deps{Stats: loop.Stats(), Store: st, Metrics: reg, Logger: logger})
		go func() {
			if err := server.Serve(ctx, cfg.HTTPAddr, engine, logger); err != nil {
				logger.Error("status server stopped", zap.Error(err))
			}
		}()
	}

	logger.Info("watching sources")
	return loop.Run(ctx)
}

func buildLifecycle(ctx context.Context, cfg config.Config) (lifecycle.Manager, error) {
	if cfg.Archive.Backend != "minio" {
		if err := os.MkdirAll(cfg.ArchiveDir, 0o755); err != nil {
			return nil, fmt.Errorf("create archive dir: %w", err)
		}
		return lifecycle.NewFSManager(cfg.ArchiveDir, cfg.QuarantineDir), nil
	}
	m := cfg.Archive.Minio
	om, err := lifecycle.NewObjectManager(m.Endpoint, m.AccessKey, m.SecretKey, m.Bucket, m.UseSSL)
	if err != nil {
		return nil, err
	}
	if err := om.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("archive bucket: %w", err)
	}
	return om, nil
}

func printBanner(cfg config.Config, runID string) {
	rule := strings.Repeat("=", 60)
	fmt.Println(rule)
	fmt.Println("ORDERHUB INGESTION")
	fmt.Println(rule)
	fmt.Printf("run:        %s\n", runID)
	fmt.Printf("started:    %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Println("watching:")
	for _, s := range cfg.Sources {
		fmt.Printf("  - %s\n", s)
	}
	if cfg.Archive.Backend == "minio" {
		fmt.Printf("archive:    s3://%s/archive (%s)\n", cfg.Archive.Minio.Bucket, cfg.Archive.Minio.Endpoint)
	} else {
		fmt.Printf("archive:    %s\n", cfg.ArchiveDir)
	}
	fmt.Printf("interval:   %s\n", cfg.Ingest.PollInterval)
	target := cfg.Store.Path
	if cfg.Store.Backend == "postgres" {
		target = logging.MaskDSN(cfg.Store.DSN)
	}
	fmt.Printf("store:      %s %s (%s/%s)\n", cfg.Store.Backend, target, cfg.Store.Database, cfg.Store.Collection)
	fmt.Println(rule)
}
