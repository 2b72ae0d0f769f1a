package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"orderhub/internal/changelog"
	"orderhub/internal/config"
	"orderhub/internal/export"
	"orderhub/internal/logging"
	"orderhub/internal/report"
	"orderhub/internal/store"
)

func main() {
	var (
		configPath  string
		outDir      string
		exportID    string
		statsSource string
	)
	flag.StringVar(&configPath, "config", "", "config file; ORDERHUB_* env vars override it")
	flag.StringVar(&outDir, "out", "./exports", "export base directory")
	flag.StringVar(&exportID, "id", "", "export id (default: timestamp-uuid)")
	flag.StringVar(&statsSource, "stats-source", "file", "latest run statistics to include: none|file|kafka")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("export: %v", err)
	}
	if exportID == "" {
		exportID = time.Now().UTC().Format("20060102T150405") + "-" + uuid.NewString()[:8]
	}
	if err := run(cfg, outDir, exportID, statsSource); err != nil {
		log.Fatalf("export failed: %v", err)
	}
}

func run(cfg config.Config, outDir, exportID, statsSource string) error {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	st, err := store.Open(ctx, store.Options{
		Backend:    cfg.Store.Backend,
		DSN:        cfg.Store.DSN,
		Database:   cfg.Store.Database,
		Collection: cfg.Store.Collection,
		Path:       cfg.Store.Path,
	})
	if err != nil {
		return fmt.Errorf("connect store: %w", err)
	}
	defer st.Close()

	ex := export.NewFilesystemExporter(outDir)
	n, err := ex.WriteExport(ctx, exportID, st)
	if err != nil {
		return err
	}
	logger.Info("export written", zap.String("id", exportID), zap.String("dir", outDir), zap.Int("orders", n))

	var reader report.Reader
	switch statsSource {
	case "none":
		return nil
	case "file":
		reader = report.NewFilesystemPublisher(cfg.ReportDir)
	case "kafka":
		reader = report.NewKafkaReader(changelog.SplitBrokers(cfg.Kafka.Brokers), cfg.Kafka.TopicStats, report.DefaultKafkaKey)
	default:
		return fmt.Errorf("unknown stats source %q", statsSource)
	}
	snap, err := reader.ReadLatest()
	if err != nil {
		if errors.Is(err, report.ErrNoSnapshot) || errors.Is(err, os.ErrNotExist) {
			logger.Warn("no run statistics to include", zap.Error(err))
			return nil
		}
		return fmt.Errorf("read statistics: %w", err)
	}
	return ex.WriteStats(exportID, snap)
}
