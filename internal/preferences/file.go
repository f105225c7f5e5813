package preferences

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileDocument stores the preference map in a local file.
type FileDocument struct {
	path string
}

// NewFileDocument addresses path; the file is created on first save.
func NewFileDocument(path string) *FileDocument {
	return &FileDocument{path: filepath.Clean(path)}
}

// Load reads the file. A missing file is empty.
func (d *FileDocument) Load(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(d.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", d.path, err)
	}
	return data, nil
}

// Save writes through a temp file and renames it into place.
func (d *FileDocument) Save(_ context.Context, data []byte) error {
	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".prefs-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), d.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename into %s: %w", d.path, err)
	}
	return nil
}
