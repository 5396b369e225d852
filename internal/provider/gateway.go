package provider

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// Gateway fronts the embedding providers and enforces the vector-dimension
// contract. Mixed-dimension vectors corrupt similarity search irrecoverably,
// so a mismatch from any backend is an error, never a silent write.
type Gateway struct {
	primary  Embedder
	fallback Embedder
	dims     int
	logger   *log.Logger
}

// NewGateway builds an embedding gateway. fallback may be nil.
func NewGateway(primary Embedder, fallback Embedder, dims int, logger *log.Logger) (*Gateway, error) {
	if primary == nil {
		return nil, fmt.Errorf("embedding gateway requires a primary embedder")
	}
	if dims <= 0 {
		return nil, fmt.Errorf("embedding dimensions must be > 0")
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[EMBED] ", log.LstdFlags)
	}
	return &Gateway{primary: primary, fallback: fallback, dims: dims, logger: logger}, nil
}

// Dimensions returns the enforced vector dimensionality.
func (g *Gateway) Dimensions() int { return g.dims }

// Embed returns one vector per input text. Whitespace-only inputs yield an
// empty vector without calling any provider.
func (g *Gateway) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var pending []string
	var pendingIdx []int
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			out[i] = []float32{}
			continue
		}
		pending = append(pending, t)
		pendingIdx = append(pendingIdx, i)
	}
	if len(pending) == 0 {
		return out, nil
	}

	vecs, err := g.primary.Embed(ctx, pending)
	if err != nil && g.fallback != nil {
		g.logger.Printf("primary embedder failed, using fallback: %v", err)
		vecs, err = g.fallback.Embed(ctx, pending)
	}
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(vecs) != len(pending) {
		return nil, fmt.Errorf("embed: expected %d vectors, got %d", len(pending), len(vecs))
	}
	for i, vec := range vecs {
		if len(vec) != g.dims {
			return nil, fmt.Errorf("embed: dimension mismatch (got %d want %d)", len(vec), g.dims)
		}
		out[pendingIdx[i]] = vec
	}
	return out, nil
}

// EmbedOne embeds a single text.
func (g *Gateway) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := g.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}
