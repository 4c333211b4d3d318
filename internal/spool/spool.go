// Package spool manages the inbox directory where batch files are dropped
// for ingestion.
//
// Upsert batches are named *.json and delete batches *.delete.json. Once a
// file is handled it is moved into the processed/ or failed/ subdirectory.
package spool

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/fennec/internal/checksum"
	"github.com/starford/fennec/internal/models"
)

// Spool layout.
const (
	ProcessedDir = "processed"
	FailedDir    = "failed"
	BatchSuffix  = ".json"
	DeleteSuffix = ".delete.json"
)

// Provider is the interface for spool file operations. Names are relative
// to the spool root.
type Provider interface {
	// Root returns the absolute spool directory.
	Root() string
	// List returns the pending batch files at the top level of the spool.
	List() ([]models.SpoolEntry, error)
	Read(name string) ([]byte, error)
	// Write atomically writes content to name.
	Write(name string, content []byte) error
	// Archive moves name into dir (ProcessedDir or FailedDir).
	Archive(name, dir string) error
}

// IsDelete reports whether name holds a delete batch.
func IsDelete(name string) bool {
	return strings.HasSuffix(name, DeleteSuffix)
}

// IsBatch reports whether name looks like a pending batch file.
func IsBatch(name string) bool {
	base := filepath.Base(name)
	return strings.HasSuffix(base, BatchSuffix) && !strings.HasPrefix(base, ".")
}

// FS implements Provider backed by a local directory.
type FS struct {
	root string
}

// NewFS creates a spool rooted at dir. The directory must already exist.
func NewFS(dir string) (*FS, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("spool: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("spool: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("spool: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root implements Provider.
func (f *FS) Root() string { return f.root }

// safePath resolves name against the root and rejects anything that escapes it.
func (f *FS) safePath(name string) (string, error) {
	cleaned := filepath.Clean(name)
	if name == "" || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("spool: invalid name: %q", name)
	}
	abs, err := filepath.Abs(filepath.Join(f.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("spool: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("spool: path escapes root: %s", name)
	}
	return abs, nil
}

// List returns pending batch files in name order. Subdirectories and hidden
// temp files are ignored.
func (f *FS) List() ([]models.SpoolEntry, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("spool: list: %w", err)
	}
	var out []models.SpoolEntry
	for _, e := range entries {
		if e.IsDir() || !IsBatch(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("spool: stat %s: %w", e.Name(), err)
		}
		data, err := os.ReadFile(filepath.Join(f.root, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("spool: read %s: %w", e.Name(), err)
		}
		out = append(out, models.SpoolEntry{
			Name:      e.Name(),
			Size:      info.Size(),
			Checksum:  checksum.Sum(data),
			UpdatedAt: info.ModTime(),
		})
	}
	return out, nil
}

// Read returns the raw bytes of a spool file.
func (f *FS) Read(name string) ([]byte, error) {
	abs, err := f.safePath(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("spool: read %s: %w", name, err)
	}
	return data, nil
}

// Write atomically writes content: tmp file, fsync, rename.
func (f *FS) Write(name string, content []byte) error {
	abs, err := f.safePath(name)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("spool: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".fennec-tmp-*")
	if err != nil {
		return fmt.Errorf("spool: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("spool: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("spool: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("spool: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("spool: rename: %w", err)
	}
	success = true
	return nil
}

// Archive moves name into dir, replacing any earlier file of the same name.
func (f *FS) Archive(name, dir string) error {
	absOld, err := f.safePath(name)
	if err != nil {
		return err
	}
	absNew, err := f.safePath(filepath.Join(dir, filepath.Base(name)))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(absNew), 0o755); err != nil {
		return fmt.Errorf("spool: mkdir for archive: %w", err)
	}
	if err := os.Rename(absOld, absNew); err != nil {
		return fmt.Errorf("spool: archive %s: %w", name, err)
	}
	return nil
}

var _ Provider = (*FS)(nil)
