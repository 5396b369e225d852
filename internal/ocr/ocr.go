// Package ocr abstracts the optical character recognition capability used
// for scanned and handwritten pages.
package ocr

import (
	"context"
	"errors"

	"github.com/mohammad-safakhou/ebookqa/config"
)

// Result is the recognized text plus a page-average confidence normalized to
// 0-100 regardless of the backend's native scale.
type Result struct {
	Text       string
	Confidence float64
}

// Client recognizes text in a rendered page image.
type Client interface {
	Recognize(ctx context.Context, image []byte) (Result, error)
	// Source tags PageResults produced by this backend.
	Source() string
}

// New resolves the configured OCR backend once at construction time.
func New(cfg config.OCRConfig) (Client, error) {
	switch cfg.Backend {
	case "azure":
		return newAzureClient(cfg.Azure)
	case "none":
		return nil, nil
	default:
		return nil, errors.New("unsupported ocr backend: " + cfg.Backend)
	}
}
