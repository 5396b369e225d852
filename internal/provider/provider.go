// Package provider wires the external language-model capabilities: text
// embedding and single-shot chat completion.
package provider

import (
	"context"
	"errors"

	"github.com/mohammad-safakhou/ebookqa/config"
)

// Message represents a message in a chat completion conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Embedder maps texts to fixed-dimension vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Completer produces a single-shot chat completion.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// NewOpenAI builds the OpenAI-backed embedder/completer from configuration.
func NewOpenAI(cfg config.OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key not configured")
	}
	return newOpenAIClient(cfg), nil
}

// NewFallbackEmbedder resolves the configured degraded-mode embedder, or nil
// when no fallback is configured.
func NewFallbackEmbedder(cfg config.LLMConfig) (Embedder, error) {
	switch cfg.EmbeddingFallback {
	case "":
		return nil, nil
	case "local":
		return NewLocalEmbedder(cfg.OpenAI.EmbeddingDimensions), nil
	default:
		return nil, errors.New("unsupported embedding fallback: " + cfg.EmbeddingFallback)
	}
}
