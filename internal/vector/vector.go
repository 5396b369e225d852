// Package vector provides the per-user namespaced vector index used for
// chunk similarity search.
package vector

import (
	"context"
	"strconv"
)

// Metadata carries the provenance of a stored chunk. Every record's
// doc_id/user_id must match its owning document.
type Metadata struct {
	DocID      int64   `json:"doc_id"`
	UserID     int64   `json:"user_id"`
	ChunkIndex int     `json:"chunk_index"`
	Page       int     `json:"page"`
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence"`
}

// Item is a single (id, vector, text, metadata) entry.
type Item struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata Metadata
}

// Match is a query hit with its similarity distance (cosine, 0 = identical).
type Match struct {
	Item
	Distance float64
}

// Filter restricts queries and deletes to a document within the namespace.
type Filter struct {
	DocID  int64
	UserID int64
}

// Store is the vector index contract. All operations are scoped to a
// caller-owned namespace; implementations must never expose cross-namespace
// data.
type Store interface {
	// Upsert writes items into the namespace. Ids are expected to be fresh
	// per ingestion run so stale runs cannot collide with new ones.
	Upsert(ctx context.Context, namespace string, items []Item) error
	// Query returns the topK nearest matches for the vector, restricted by
	// the filter.
	Query(ctx context.Context, namespace string, vec []float32, topK int, filter Filter) ([]Match, error)
	// Fetch returns up to limit stored items matching the filter, in chunk
	// order. limit <= 0 means no limit.
	Fetch(ctx context.Context, namespace string, filter Filter, limit int) ([]Item, error)
	// Delete removes all entries matching the filter. Deleting with no
	// matches is success, not an error.
	Delete(ctx context.Context, namespace string, filter Filter) error
}

// Namespace derives the per-user partition key.
func Namespace(userID int64) string {
	return "u" + strconv.FormatInt(userID, 10)
}
