package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage stores avatar images on the local filesystem under a root
// directory that the HTTP layer serves as static files.
type LocalStorage struct {
	root string
}

// NewLocalStorage constructs a filesystem-backed avatar store rooted at root.
func NewLocalStorage(root string) *LocalStorage {
	return &LocalStorage{root: root}
}

// Save writes the provided content beneath the upload root and returns the
// slash-separated relative location to record on the profile.
func (s *LocalStorage) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	key := strings.TrimLeft(filepath.ToSlash(name), "/")
	if key == "" {
		return "", fmt.Errorf("local storage: empty key")
	}

	path := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("local storage mkdir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("local storage create %s: %w", key, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return "", fmt.Errorf("local storage write %s: %w", key, err)
	}

	return filepath.ToSlash(filepath.Join(s.root, key)), nil
}
