package provider

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// LocalEmbedder is a degraded-mode embedder producing deterministic
// feature-hash vectors. It exists so retrieval keeps limping along when the
// primary provider is down; vectors share the primary's dimensionality so
// they can never corrupt the index.
type LocalEmbedder struct {
	dims int
}

// NewLocalEmbedder creates a local embedder emitting vectors of the given
// dimensionality.
func NewLocalEmbedder(dims int) *LocalEmbedder {
	return &LocalEmbedder{dims: dims}
}

// Embed hashes lowercase tokens into a fixed-size bag-of-words vector and
// L2-normalizes it.
func (l *LocalEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, l.dims)
		for _, tok := range strings.Fields(strings.ToLower(text)) {
			h := fnv.New32a()
			h.Write([]byte(tok))
			vec[int(h.Sum32())%l.dims]++
		}
		normalize(vec)
		out[i] = vec
	}
	return out, nil
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}
