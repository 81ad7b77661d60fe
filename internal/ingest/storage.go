package ingest

import (
	"fmt"
	"os"
	"path/filepath"
)

// LocalTextStore implements TextStore on the local filesystem.
type LocalTextStore struct {
	basePath string
}

// NewLocalTextStore creates a LocalTextStore rooted at basePath, creating
// the directory if needed.
func NewLocalTextStore(basePath string) (*LocalTextStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating export directory: %w", err)
	}
	return &LocalTextStore{basePath: basePath}, nil
}

// Save writes an artifact and returns its store-relative path.
func (l *LocalTextStore) Save(name string, data []byte) (string, error) {
	path := filepath.Join(l.basePath, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing export: %w", err)
	}
	return name, nil
}

// Get reads an artifact by its store-relative path.
func (l *LocalTextStore) Get(path string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(l.basePath, path))
	if err != nil {
		return nil, fmt.Errorf("reading export: %w", err)
	}
	return data, nil
}

// Delete removes an artifact.
func (l *LocalTextStore) Delete(path string) error {
	if err := os.Remove(filepath.Join(l.basePath, path)); err != nil {
		return fmt.Errorf("deleting export: %w", err)
	}
	return nil
}
