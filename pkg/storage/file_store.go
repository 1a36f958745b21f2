package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileStore saves cover images to disk under a base directory.
// Meant for local development and tests; production uses MinioStore.
type FileStore struct {
	basePath string
	baseURL  string
}

// NewFileStore creates the base directory if missing. baseURL is the public
// prefix under which the directory is served.
func NewFileStore(basePath, baseURL string) (*FileStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("storage base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileStore{
		basePath: basePath,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}, nil
}

// Put writes the object under the base directory and returns its URL.
func (f *FileStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) (string, error) {
	target := filepath.Join(f.basePath, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create object dir: %w", err)
	}
	out, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, r); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return f.baseURL + "/" + key, nil
}

// Delete removes the object and prunes its empty parent directory.
func (f *FileStore) Delete(_ context.Context, key string) error {
	target := filepath.Join(f.basePath, filepath.FromSlash(key))
	if _, err := os.Stat(target); os.IsNotExist(err) {
		return nil
	}
	if err := os.Remove(target); err != nil {
		return fmt.Errorf("remove file: %w", err)
	}
	_ = os.Remove(filepath.Dir(target))
	return nil
}
