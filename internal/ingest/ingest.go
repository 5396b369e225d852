// Package ingest owns the document lifecycle: upload validation and the
// background pipeline that turns a PDF into indexed chunks.
package ingest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/ebookqa/config"
	"github.com/mohammad-safakhou/ebookqa/internal/chunker"
	"github.com/mohammad-safakhou/ebookqa/internal/pdf"
	"github.com/mohammad-safakhou/ebookqa/internal/queue/streams"
	"github.com/mohammad-safakhou/ebookqa/internal/store"
	"github.com/mohammad-safakhou/ebookqa/internal/telemetry"
	"github.com/mohammad-safakhou/ebookqa/internal/vector"
)

var pdfMagic = []byte("%PDF")

// Upload validation errors, mapped to client responses by the server layer.
var (
	ErrEmptyFile    = errors.New("uploaded file is empty")
	ErrNotPDF       = errors.New("uploaded file is not a PDF")
	ErrFileTooLarge = errors.New("uploaded file exceeds the size limit")
)

// DocStore is the slice of the relational store the pipeline needs.
type DocStore interface {
	CreateDocument(ctx context.Context, ownerID int64, filename, contentHash, blobKey string) (store.Document, error)
	GetDocument(ctx context.Context, id, ownerID int64) (store.Document, error)
	GetDocumentByHash(ctx context.Context, ownerID int64, contentHash string) (store.Document, error)
	UpdateDocumentProgress(ctx context.Context, id int64, chunkCount, pageCount int) error
	SetDocumentStatus(ctx context.Context, id int64, status, errMsg string) error
}

// BlobStore is the slice of blob storage the pipeline needs.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Extractor resolves per-page text for a PDF.
type Extractor interface {
	Extract(ctx context.Context, data []byte, forceOCR bool) ([]pdf.PageResult, error)
}

// Embedder produces one vector per input text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Publisher enqueues background jobs.
type Publisher interface {
	PublishIngest(ctx context.Context, job streams.IngestJob, opts ...streams.PublishOption) (string, error)
}

// Ingestor validates uploads and processes ingestion jobs.
type Ingestor struct {
	docs     DocStore
	blobs    BlobStore
	vectors  vector.Store
	extract  Extractor
	embedder Embedder
	pub      Publisher
	chunker  *chunker.Chunker
	cfg      config.IngestConfig
	logger   *log.Logger
}

func New(docs DocStore, blobs BlobStore, vectors vector.Store, extract Extractor,
	embedder Embedder, pub Publisher, ch *chunker.Chunker, cfg config.IngestConfig, logger *log.Logger) *Ingestor {
	if logger == nil {
		logger = log.New(log.Writer(), "[INGEST] ", log.LstdFlags)
	}
	return &Ingestor{
		docs: docs, blobs: blobs, vectors: vectors, extract: extract,
		embedder: embedder, pub: pub, chunker: ch, cfg: cfg, logger: logger,
	}
}

// Upload validates the bytes, dedupes against previous uploads of the same
// owner, persists the blob and row, and enqueues processing. On a duplicate
// the existing document is returned together with store.ErrDuplicate.
func (in *Ingestor) Upload(ctx context.Context, userID int64, filename string, data []byte) (store.Document, error) {
	if len(data) == 0 {
		return store.Document{}, ErrEmptyFile
	}
	if in.cfg.MaxFileSize > 0 && int64(len(data)) > in.cfg.MaxFileSize {
		return store.Document{}, ErrFileTooLarge
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		return store.Document{}, ErrNotPDF
	}

	sum := sha256.Sum256(data)
	contentHash := hex.EncodeToString(sum[:])
	if existing, err := in.docs.GetDocumentByHash(ctx, userID, contentHash); err == nil {
		return existing, store.ErrDuplicate
	} else if !errors.Is(err, store.ErrNotFound) {
		return store.Document{}, err
	}

	blobKey := uuid.NewString() + ".pdf"
	if err := in.blobs.Put(ctx, blobKey, data); err != nil {
		return store.Document{}, fmt.Errorf("store upload: %w", err)
	}

	doc, err := in.docs.CreateDocument(ctx, userID, filename, contentHash, blobKey)
	if err != nil {
		// Concurrent upload of the same bytes can still lose the insert race.
		if errors.Is(err, store.ErrDuplicate) {
			if existing, lookupErr := in.docs.GetDocumentByHash(ctx, userID, contentHash); lookupErr == nil {
				return existing, store.ErrDuplicate
			}
		}
		return store.Document{}, err
	}

	if _, err := in.pub.PublishIngest(ctx, streams.IngestJob{DocID: doc.ID, UserID: userID}); err != nil {
		// The upload is still accepted. The row stays in processing and the
		// janitor will fail it if no worker ever picks it up.
		in.logger.Printf("enqueue doc %d: %v", doc.ID, err)
	}
	in.logger.Printf("accepted doc %d (%s, %d bytes)", doc.ID, filename, len(data))
	return doc, nil
}

// Process runs one ingestion job to a terminal document status. The job is
// considered handled even when processing fails; failures land in the
// document row, not the queue.
func (in *Ingestor) Process(ctx context.Context, job streams.IngestJob) error {
	started := time.Now()
	doc, err := in.docs.GetDocument(ctx, job.DocID, job.UserID)
	if err != nil {
		return fmt.Errorf("load doc %d: %w", job.DocID, err)
	}

	if err := in.process(ctx, doc, job.ForceOCR); err != nil {
		in.logger.Printf("doc %d failed: %v", doc.ID, err)
		telemetry.DocumentsIngested.WithLabelValues(store.StatusFailed).Inc()
		if setErr := in.docs.SetDocumentStatus(ctx, doc.ID, store.StatusFailed, err.Error()); setErr != nil {
			return setErr
		}
		return nil
	}

	telemetry.DocumentsIngested.WithLabelValues(store.StatusProcessed).Inc()
	telemetry.IngestDuration.Observe(time.Since(started).Seconds())
	in.logger.Printf("doc %d processed in %s", doc.ID, time.Since(started).Round(time.Millisecond))
	return nil
}

func (in *Ingestor) process(ctx context.Context, doc store.Document, forceOCR bool) error {
	data, err := in.blobs.Get(ctx, doc.BlobKey)
	if err != nil {
		return fmt.Errorf("load blob: %w", err)
	}

	ns := vector.Namespace(doc.OwnerID)
	filter := vector.Filter{DocID: doc.ID, UserID: doc.OwnerID}
	// Old chunks from a previous run must never mix with the new ones.
	if err := in.vectors.Delete(ctx, ns, filter); err != nil {
		return fmt.Errorf("clear previous chunks: %w", err)
	}

	pages, err := in.extract.Extract(ctx, data, forceOCR)
	if err != nil && len(pages) == 0 {
		return fmt.Errorf("extract: %w", err)
	}
	if err != nil {
		in.logger.Printf("doc %d: partial extraction: %v", doc.ID, err)
	}

	// A text layer full of garbage passes extraction but yields nothing
	// usable. One retry with OCR forced covers that class of documents.
	if !forceOCR && !anyText(pages) {
		in.logger.Printf("doc %d: text layer unusable, retrying with forced OCR", doc.ID)
		pages, err = in.extract.Extract(ctx, data, true)
		if err != nil && len(pages) == 0 {
			return fmt.Errorf("extract (forced ocr): %w", err)
		}
	}

	// The raw PDF is no longer needed; rendered batches dominate memory from
	// here on.
	data = nil
	runtime.GC()

	total := 0
	for _, page := range pages {
		telemetry.PagesExtracted.WithLabelValues(page.Source).Inc()
		if strings.TrimSpace(page.Text) == "" {
			continue
		}
		n, err := in.indexPage(ctx, doc, page, total)
		if err != nil {
			return err
		}
		total += n
		if err := in.docs.UpdateDocumentProgress(ctx, doc.ID, total, len(pages)); err != nil {
			return err
		}
	}

	if total == 0 {
		return errors.New("no readable text found in document")
	}
	return in.docs.SetDocumentStatus(ctx, doc.ID, store.StatusProcessed, "")
}

// indexPage chunks, embeds and upserts one page. Chunk ids are fresh per run
// so a stale run can never overwrite entries written by a newer one.
func (in *Ingestor) indexPage(ctx context.Context, doc store.Document, page pdf.PageResult, baseIndex int) (int, error) {
	header := fmt.Sprintf("[PAGE %d | source=%s | conf=%.1f]\n", page.Page, page.Source, page.Confidence)
	chunks := in.chunker.Chunk(page.Text)
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = header + c
	}
	vecs, err := in.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed page %d: %w", page.Page, err)
	}

	items := make([]vector.Item, 0, len(chunks))
	for i := range chunks {
		if len(vecs[i]) == 0 {
			continue
		}
		items = append(items, vector.Item{
			ID:     fmt.Sprintf("%d_%s_%d", doc.ID, strings.ReplaceAll(uuid.NewString(), "-", ""), baseIndex+i),
			Vector: vecs[i],
			Text:   texts[i],
			Metadata: vector.Metadata{
				DocID:      doc.ID,
				UserID:     doc.OwnerID,
				ChunkIndex: baseIndex + i,
				Page:       page.Page,
				Source:     page.Source,
				Confidence: page.Confidence,
			},
		})
	}
	if len(items) == 0 {
		return 0, nil
	}
	if err := in.vectors.Upsert(ctx, vector.Namespace(doc.OwnerID), items); err != nil {
		return 0, fmt.Errorf("index page %d: %w", page.Page, err)
	}
	return len(items), nil
}

func anyText(pages []pdf.PageResult) bool {
	for _, p := range pages {
		if strings.TrimSpace(p.Text) != "" {
			return true
		}
	}
	return false
}
