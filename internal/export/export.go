// Package export dumps the committed orders for offline analysis.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"orderhub/internal/model"
	"orderhub/internal/report"
	"orderhub/internal/store"
)

const (
	OrdersFile  = "orders.json"
	SummaryFile = "summary.json"
	StatsFile   = "stats.json"
)

type Exporter interface {
	WriteExport(ctx context.Context, exportID string, st store.Store) (int, error)
}

type FilesystemExporter struct {
	baseDir string
}

func NewFilesystemExporter(baseDir string) *FilesystemExporter {
	return &FilesystemExporter{baseDir: baseDir}
}

// WriteExport writes <baseDir>/<exportID>/orders.json and summary.json and returns
// the number of orders written.
func (f *FilesystemExporter) WriteExport(ctx context.Context, exportID string, st store.Store) (int, error) {
	dir := filepath.Join(f.baseDir, exportID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("mkdir: %w", err)
	}

	orders := []model.CanonicalOrder{}
	if err := st.Range(ctx, func(o model.CanonicalOrder) error {
		orders = append(orders, o)
		return nil
	}); err != nil {
		return 0, fmt.Errorf("range: %w", err)
	}
	if err := writeJSON(filepath.Join(dir, OrdersFile), orders); err != nil {
		return 0, err
	}

	sum, err := store.Summarize(ctx, st)
	if err != nil {
		return 0, fmt.Errorf("summarize: %w", err)
	}
	if err := writeJSON(filepath.Join(dir, SummaryFile), sum); err != nil {
		return 0, err
	}
	return len(orders), nil
}

// WriteStats stores the run statistics next to an export.
func (f *FilesystemExporter) WriteStats(exportID string, snap report.Snapshot) error {
	dir := filepath.Join(f.baseDir, exportID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	return writeJSON(filepath.Join(dir, StatsFile), snap)
}

func writeJSON(file string, v any) error {
	out, err := os.Create(file)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	defer out.Close()
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return out.Close()
}
