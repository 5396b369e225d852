package provider

import (
	"context"
	"errors"
	"testing"
)

type stubEmbedder struct {
	dims  int
	err   error
	calls int
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, s.dims)
	}
	return out, nil
}

func TestGatewayEmptyInputSkipsProvider(t *testing.T) {
	primary := &stubEmbedder{dims: 8}
	g, err := NewGateway(primary, nil, 8, nil)
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}
	vecs, err := g.Embed(context.Background(), []string{"  ", "\n\t"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if primary.calls != 0 {
		t.Fatalf("provider should not be called for whitespace input")
	}
	for _, v := range vecs {
		if len(v) != 0 {
			t.Fatalf("expected empty vector, got len %d", len(v))
		}
	}
}

func TestGatewayDimensionMismatchRejected(t *testing.T) {
	primary := &stubEmbedder{dims: 4}
	g, err := NewGateway(primary, nil, 8, nil)
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}
	if _, err := g.Embed(context.Background(), []string{"hello world"}); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestGatewayFallbackUsedOnPrimaryFailure(t *testing.T) {
	primary := &stubEmbedder{dims: 8, err: errors.New("unreachable")}
	fallback := &stubEmbedder{dims: 8}
	g, err := NewGateway(primary, fallback, 8, nil)
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}
	vecs, err := g.Embed(context.Background(), []string{"hello"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if fallback.calls != 1 {
		t.Fatalf("fallback not invoked")
	}
	if len(vecs[0]) != 8 {
		t.Fatalf("unexpected vector length %d", len(vecs[0]))
	}
}

func TestGatewayFallbackDimensionMismatchRejected(t *testing.T) {
	primary := &stubEmbedder{dims: 8, err: errors.New("unreachable")}
	fallback := &stubEmbedder{dims: 4}
	g, err := NewGateway(primary, fallback, 8, nil)
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}
	if _, err := g.Embed(context.Background(), []string{"hello"}); err == nil {
		t.Fatal("fallback vectors with wrong dimensionality must be rejected")
	}
}

func TestLocalEmbedderDeterministic(t *testing.T) {
	l := NewLocalEmbedder(64)
	a, err := l.Embed(context.Background(), []string{"alpha beta gamma"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	b, _ := l.Embed(context.Background(), []string{"alpha beta gamma"})
	for i := range a[0] {
		if a[0][i] != b[0][i] {
			t.Fatal("local embedder must be deterministic")
		}
	}
	if len(a[0]) != 64 {
		t.Fatalf("unexpected dimensionality %d", len(a[0]))
	}
}
