package runguard

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore keeps a single marker value in a plain text file. The key is
// ignored: one file holds one marker.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore writing to path.
func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("marker path is required")
	}
	return &FileStore{path: path}, nil
}

// Path returns the marker file location.
func (s *FileStore) Path() string {
	return s.path
}

// Get reads the marker file.
func (s *FileStore) Get(_ context.Context, _ string) (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("read marker file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Put replaces the marker file through a temp file and rename.
func (s *FileStore) Put(_ context.Context, _ string, value string) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create marker directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp marker: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp marker: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp marker: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace marker file: %w", err)
	}
	return nil
}

// Delete removes the marker file.
func (s *FileStore) Delete(_ context.Context, _ string) error {
	if err := os.Remove(s.path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("remove marker file: %w", err)
	}
	return nil
}
