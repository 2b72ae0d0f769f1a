// Package lifecycle moves processed source files out of the watched directories.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
)

// Manager relocates a file once its outcome is final. The original file name is kept.
type Manager interface {
	// Archive moves a committed or duplicate file into the flat archive area.
	Archive(ctx context.Context, path string) error
	// Quarantine moves a rejected file under errors[/subreason].
	Quarantine(ctx context.Context, path, subreason string) error
}

// FSManager moves files between local directories.
type FSManager struct {
	archiveDir    string
	quarantineDir string
}

func NewFSManager(archiveDir, quarantineDir string) *FSManager {
	if quarantineDir == "" {
		quarantineDir = filepath.Join(archiveDir, "errors")
	}
	return &FSManager{archiveDir: archiveDir, quarantineDir: quarantineDir}
}

func (m *FSManager) ArchiveDir() string    { return m.archiveDir }
func (m *FSManager) QuarantineDir() string { return m.quarantineDir }

func (m *FSManager) Archive(_ context.Context, path string) error {
	return moveInto(path, m.archiveDir)
}

func (m *FSManager) Quarantine(_ context.Context, path, subreason string) error {
	return moveInto(path, filepath.Join(m.quarantineDir, subreason))
}

// moveInto relocates src into dir, replacing an existing file of the same name.
func moveInto(src, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	dst := filepath.Join(dir, filepath.Base(src))
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrExist) {
		if rmErr := os.Remove(dst); rmErr != nil {
			return fmt.Errorf("replace %s: %w", dst, rmErr)
		}
		if err = os.Rename(src, dst); err == nil {
			return nil
		}
	}
	if errors.Is(err, syscall.EXDEV) {
		return copyRemove(src, dst)
	}
	return fmt.Errorf("move %s: %w", src, err)
}

// copyRemove handles moves across filesystems.
func copyRemove(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer in.Close()
	tmp := dst + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("copy: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("remove source: %w", err)
	}
	return nil
}
