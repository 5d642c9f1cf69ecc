package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalStore keeps blobs on the local filesystem. All access goes through
// os.Root so a key can never resolve to a file outside the managed root,
// whatever dots and separators it contains.
type LocalStore struct {
	basePath string
}

func NewLocalStorage(basePath string) (*LocalStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("creating image root: %w", err)
	}
	return &LocalStore{basePath: basePath}, nil
}

func (l *LocalStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	return os.OpenInRoot(l.basePath, filepath.Clean(key))
}

func (l *LocalStore) Save(_ context.Context, key string, body io.ReadSeeker) error {
	root, err := os.OpenRoot(l.basePath)
	if err != nil {
		return err
	}
	defer root.Close()

	key = filepath.Clean(key)
	if dir := filepath.Dir(key); dir != "." {
		if err := root.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	f, err := root.Create(key)
	if err != nil {
		return err
	}

	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

// Exists takes a key and returns true if the blob exists and can be opened
func (l *LocalStore) Exists(_ context.Context, key string) bool {
	f, err := os.OpenInRoot(l.basePath, filepath.Clean(key))
	if err != nil {
		return false
	}

	defer f.Close() // overkill to consider errors if only checking existence
	return true
}

func (l *LocalStore) Delete(_ context.Context, key string) error {
	root, err := os.OpenRoot(l.basePath)
	if err != nil {
		return err
	}
	defer root.Close()

	return root.Remove(filepath.Clean(key))
}
