package ingest

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// scan lists candidate files of every source directory. Entries come back in name
// order per directory. Hidden files are skipped so producers can write under a dot
// name and rename when done.
func scan(log *zap.Logger, dirs []string, ext string) []string {
	var files []string
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				log.Warn("source directory does not exist", zap.String("dir", dir))
			} else {
				log.Error("cannot list source directory", zap.String("dir", dir), zap.Error(err))
			}
			continue
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ext) {
				continue
			}
			files = append(files, filepath.Join(dir, name))
		}
	}
	return files
}

// attempts counts consecutive validation failures per file.
type attempts map[string]int

func (a attempts) fail(path string) int {
	a[path]++
	return a[path]
}

// keepOnly forgets files that were not listed this cycle.
func (a attempts) keepOnly(listed []string) {
	seen := make(map[string]struct{}, len(listed))
	for _, p := range listed {
		seen[p] = struct{}{}
	}
	for p := range a {
		if _, ok := seen[p]; !ok {
			delete(a, p)
		}
	}
}
