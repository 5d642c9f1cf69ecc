package storage

import (
	"context"
	"io"
)

// Provider abstracts the blob backend holding image bytes. Keys are
// relative paths under the managed image root.
type Provider interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Save(ctx context.Context, key string, body io.ReadSeeker) error
	Exists(ctx context.Context, key string) bool
	Delete(ctx context.Context, key string) error
}
