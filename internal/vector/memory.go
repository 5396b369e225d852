package vector

import (
	"context"
	"math"
	"sort"
	"sync"
)

// Memory is an in-memory Store used in tests and for local development
// without postgres.
type Memory struct {
	mu         sync.RWMutex
	namespaces map[string][]Item
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{namespaces: make(map[string][]Item)}
}

var _ Store = (*Memory)(nil)

func (m *Memory) Upsert(_ context.Context, namespace string, items []Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := m.namespaces[namespace]
	for _, item := range items {
		replaced := false
		for i := range existing {
			if existing[i].ID == item.ID {
				existing[i] = item
				replaced = true
				break
			}
		}
		if !replaced {
			existing = append(existing, item)
		}
	}
	m.namespaces[namespace] = existing
	return nil
}

func (m *Memory) Query(_ context.Context, namespace string, vec []float32, topK int, filter Filter) ([]Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if topK <= 0 {
		topK = 4
	}
	var matches []Match
	for _, item := range m.namespaces[namespace] {
		if !matchesFilter(item, filter) {
			continue
		}
		matches = append(matches, Match{Item: item, Distance: cosineDistance(vec, item.Vector)})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Distance < matches[j].Distance })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (m *Memory) Fetch(_ context.Context, namespace string, filter Filter, limit int) ([]Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var items []Item
	for _, item := range m.namespaces[namespace] {
		if matchesFilter(item, filter) {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Metadata.Page != items[j].Metadata.Page {
			return items[i].Metadata.Page < items[j].Metadata.Page
		}
		return items[i].Metadata.ChunkIndex < items[j].Metadata.ChunkIndex
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *Memory) Delete(_ context.Context, namespace string, filter Filter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.namespaces[namespace][:0]
	for _, item := range m.namespaces[namespace] {
		if !matchesFilter(item, filter) {
			kept = append(kept, item)
		}
	}
	m.namespaces[namespace] = kept
	return nil
}

func matchesFilter(item Item, filter Filter) bool {
	return item.Metadata.DocID == filter.DocID && item.Metadata.UserID == filter.UserID
}

func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
