// Package pdf turns an uploaded PDF into per-page text. Pages with a usable
// text layer are read directly; the rest are rasterized, preprocessed and
// sent to OCR.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"log"
	"runtime"
	"sort"

	"github.com/mohammad-safakhou/ebookqa/config"
	"github.com/mohammad-safakhou/ebookqa/internal/ocr"
)

// Text sources recorded on each extracted page.
const (
	SourceTextLayer = "text"
	SourceNeedsOCR  = "needs_ocr"
)

// PageResult is the extraction outcome for one page.
type PageResult struct {
	Page       int
	Text       string
	Source     string
	Confidence float64
}

// Extractor drives page extraction for one document at a time.
type Extractor struct {
	renderer  Renderer
	ocr       ocr.Client
	cfg       config.PDFConfig
	logger    *log.Logger
	textLayer func([]byte) (map[int]string, int, error)
}

func NewExtractor(renderer Renderer, ocrClient ocr.Client, cfg config.PDFConfig, logger *log.Logger) *Extractor {
	if logger == nil {
		logger = log.Default()
	}
	return &Extractor{renderer: renderer, ocr: ocrClient, cfg: cfg, logger: logger, textLayer: textLayer}
}

// Extract resolves every page of the document, up to the configured page cap.
// With forceOCR set the text layer is ignored entirely. When rasterization
// fails even through the fallback renderer, the pages resolved so far are
// returned alongside the error so the caller can decide what to keep.
func (e *Extractor) Extract(ctx context.Context, data []byte, forceOCR bool) ([]PageResult, error) {
	pages, total, err := e.textLayer(data)
	if err != nil {
		// No readable text layer at all. Treat every page as scanned.
		e.logger.Printf("[EXTRACT] falling back to full OCR: %v", err)
		total, err = e.renderer.PageCount(data)
		if err != nil {
			return nil, fmt.Errorf("page count: %w", err)
		}
		pages = make(map[int]string, total)
	}

	if total > e.cfg.MaxPages {
		e.logger.Printf("[EXTRACT] truncating document: %d pages, cap %d", total, e.cfg.MaxPages)
		total = e.cfg.MaxPages
	}

	results := make([]PageResult, 0, total)
	var needOCR []int
	for p := 1; p <= total; p++ {
		text := pages[p]
		if !forceOCR && Meaningful(text) {
			results = append(results, PageResult{Page: p, Text: text, Source: SourceTextLayer, Confidence: 100})
			continue
		}
		if e.ocr == nil {
			// No OCR configured. Record the page empty rather than indexing
			// text that failed the quality gate.
			results = append(results, PageResult{Page: p, Source: SourceNeedsOCR})
			continue
		}
		needOCR = append(needOCR, p)
	}

	if len(needOCR) > 0 {
		ocrResults, ocrErr := e.recognizePages(ctx, data, needOCR)
		results = append(results, ocrResults...)
		if ocrErr != nil {
			sortByPage(results)
			return results, ocrErr
		}
	}

	sortByPage(results)
	return results, nil
}

// recognizePages rasterizes the given pages in batches and runs each image
// through OCR. Per-page OCR failures degrade to an empty page; render
// failures abort the remaining batches.
func (e *Extractor) recognizePages(ctx context.Context, data []byte, pages []int) ([]PageResult, error) {
	results := make([]PageResult, 0, len(pages))
	batchSize := e.cfg.BatchSize
	if batchSize < 1 {
		batchSize = 1
	}

	for start := 0; start < len(pages); start += batchSize {
		end := start + batchSize
		if end > len(pages) {
			end = len(pages)
		}
		batch := pages[start:end]

		images, err := e.renderer.Render(ctx, data, batch, e.cfg.DPI)
		if err != nil {
			return results, fmt.Errorf("render pages %v: %w", batch, err)
		}

		for _, p := range batch {
			img, ok := images[p]
			if !ok {
				results = append(results, PageResult{Page: p, Source: e.ocr.Source()})
				continue
			}
			var buf bytes.Buffer
			if err := png.Encode(&buf, Preprocess(img)); err != nil {
				e.logger.Printf("[EXTRACT] encode page %d: %v", p, err)
				results = append(results, PageResult{Page: p, Source: e.ocr.Source()})
				continue
			}
			res, err := e.ocr.Recognize(ctx, buf.Bytes())
			if err != nil {
				e.logger.Printf("[EXTRACT] ocr page %d: %v", p, err)
				results = append(results, PageResult{Page: p, Source: e.ocr.Source()})
				continue
			}
			results = append(results, PageResult{Page: p, Text: res.Text, Source: e.ocr.Source(), Confidence: res.Confidence})
		}

		// Rendered pages at 150 DPI are large. Release the batch before the
		// next one is decoded.
		images = nil
		runtime.GC()
	}
	return results, nil
}

func sortByPage(results []PageResult) {
	sort.Slice(results, func(i, j int) bool { return results[i].Page < results[j].Page })
}
