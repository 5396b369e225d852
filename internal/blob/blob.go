// Package blob stores the raw uploaded PDFs. The rest of the system refers
// to blobs only by opaque storage keys.
package blob

import (
	"context"
	"errors"

	"github.com/mohammad-safakhou/ebookqa/config"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("blob not found")

// Store is the blob storage contract.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete reports whether the blob existed. Deleting a missing blob is
	// not an error.
	Delete(ctx context.Context, key string) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// New resolves the configured backend once at construction time.
func New(cfg config.BlobConfig) (Store, error) {
	switch cfg.Backend {
	case "fs":
		return NewFS(cfg.Dir)
	case "azure":
		return NewAzure(cfg.Azure)
	default:
		return nil, errors.New("unsupported blob backend: " + cfg.Backend)
	}
}
