package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/ebookqa/config"
	"github.com/mohammad-safakhou/ebookqa/internal/chunker"
	"github.com/mohammad-safakhou/ebookqa/internal/pdf"
	"github.com/mohammad-safakhou/ebookqa/internal/queue/streams"
	"github.com/mohammad-safakhou/ebookqa/internal/store"
	"github.com/mohammad-safakhou/ebookqa/internal/vector"
)

type fakeDocs struct {
	docs     map[int64]store.Document
	byHash   map[string]store.Document
	nextID   int64
	progress []int
	statuses []string
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{docs: map[int64]store.Document{}, byHash: map[string]store.Document{}, nextID: 1}
}

func hashKey(ownerID int64, hash string) string {
	return fmt.Sprintf("%d|%s", ownerID, hash)
}

func (f *fakeDocs) CreateDocument(_ context.Context, ownerID int64, filename, contentHash, blobKey string) (store.Document, error) {
	if _, ok := f.byHash[hashKey(ownerID, contentHash)]; ok {
		return store.Document{}, store.ErrDuplicate
	}
	d := store.Document{ID: f.nextID, OwnerID: ownerID, Filename: filename,
		ContentHash: contentHash, BlobKey: blobKey, Status: store.StatusProcessing}
	f.nextID++
	f.docs[d.ID] = d
	f.byHash[hashKey(ownerID, contentHash)] = d
	return d, nil
}

func (f *fakeDocs) GetDocument(_ context.Context, id, ownerID int64) (store.Document, error) {
	d, ok := f.docs[id]
	if !ok || d.OwnerID != ownerID {
		return store.Document{}, store.ErrNotFound
	}
	return d, nil
}

func (f *fakeDocs) GetDocumentByHash(_ context.Context, ownerID int64, hash string) (store.Document, error) {
	d, ok := f.byHash[hashKey(ownerID, hash)]
	if !ok {
		return store.Document{}, store.ErrNotFound
	}
	return d, nil
}

func (f *fakeDocs) UpdateDocumentProgress(_ context.Context, id int64, chunkCount, pageCount int) error {
	f.progress = append(f.progress, chunkCount)
	d := f.docs[id]
	d.ChunkCount, d.PageCount = chunkCount, pageCount
	f.docs[id] = d
	return nil
}

func (f *fakeDocs) SetDocumentStatus(_ context.Context, id int64, status, errMsg string) error {
	f.statuses = append(f.statuses, status)
	d := f.docs[id]
	d.Status, d.Error = status, errMsg
	f.docs[id] = d
	return nil
}

type fakeBlobs struct{ data map[string][]byte }

func (f *fakeBlobs) Put(_ context.Context, key string, data []byte) error {
	if f.data == nil {
		f.data = map[string][]byte{}
	}
	f.data[key] = data
	return nil
}

func (f *fakeBlobs) Get(_ context.Context, key string) ([]byte, error) {
	d, ok := f.data[key]
	if !ok {
		return nil, errors.New("missing blob")
	}
	return d, nil
}

type fakeExtractor struct {
	pages      []pdf.PageResult
	forcedOCR  []pdf.PageResult
	forceCalls int
}

func (f *fakeExtractor) Extract(_ context.Context, _ []byte, forceOCR bool) ([]pdf.PageResult, error) {
	if forceOCR {
		f.forceCalls++
		return f.forcedOCR, nil
	}
	return f.pages, nil
}

type fakeEmbedder struct{ dims int }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, f.dims)
		vec[0] = 1
		out[i] = vec
	}
	return out, nil
}

type fakePublisher struct {
	jobs []streams.IngestJob
	err  error
}

func (f *fakePublisher) PublishIngest(_ context.Context, job streams.IngestJob, _ ...streams.PublishOption) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.jobs = append(f.jobs, job)
	return "1-0", nil
}

const prose = "The quick brown fox jumps over the lazy dog and keeps going through the long afternoon of the story."

func newTestIngestor(docs *fakeDocs, ex *fakeExtractor) (*Ingestor, *fakeBlobs, *vector.Memory, *fakePublisher) {
	blobs := &fakeBlobs{}
	vectors := vector.NewMemory()
	pub := &fakePublisher{}
	in := New(docs, blobs, vectors, ex, &fakeEmbedder{dims: 4}, pub,
		chunker.New(80, 20), config.IngestConfig{MaxFileSize: 1 << 20}, nil)
	return in, blobs, vectors, pub
}

func TestUploadValidation(t *testing.T) {
	in, _, _, _ := newTestIngestor(newFakeDocs(), &fakeExtractor{})
	ctx := context.Background()

	if _, err := in.Upload(ctx, 1, "a.pdf", nil); !errors.Is(err, ErrEmptyFile) {
		t.Fatalf("empty: %v", err)
	}
	if _, err := in.Upload(ctx, 1, "a.pdf", []byte("GIF89a...")); !errors.Is(err, ErrNotPDF) {
		t.Fatalf("magic: %v", err)
	}
	big := append([]byte("%PDF"), bytes.Repeat([]byte("x"), 1<<21)...)
	if _, err := in.Upload(ctx, 1, "a.pdf", big); !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("size: %v", err)
	}
}

func TestUploadDedupesIdenticalBytes(t *testing.T) {
	docs := newFakeDocs()
	in, _, _, pub := newTestIngestor(docs, &fakeExtractor{})
	ctx := context.Background()
	data := []byte("%PDF-1.4 content")

	first, err := in.Upload(ctx, 1, "a.pdf", data)
	if err != nil {
		t.Fatalf("first upload: %v", err)
	}
	second, err := in.Upload(ctx, 1, "b.pdf", data)
	if !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("duplicate should surface the original doc, got %d vs %d", second.ID, first.ID)
	}
	if len(pub.jobs) != 1 {
		t.Fatalf("expected 1 enqueued job, got %d", len(pub.jobs))
	}

	// The same bytes from another user are a fresh document.
	other, err := in.Upload(ctx, 2, "a.pdf", data)
	if err != nil {
		t.Fatalf("other owner upload: %v", err)
	}
	if other.ID == first.ID {
		t.Fatalf("other owner's doc should not collapse into %d", first.ID)
	}
}

func TestUploadAcceptedWhenEnqueueFails(t *testing.T) {
	docs := newFakeDocs()
	in, _, _, pub := newTestIngestor(docs, &fakeExtractor{})
	pub.err = errors.New("stream down")

	doc, err := in.Upload(context.Background(), 1, "a.pdf", []byte("%PDF-1.4 content"))
	if err != nil {
		t.Fatalf("enqueue failure must not reject the upload: %v", err)
	}
	if doc.Status != store.StatusProcessing {
		t.Fatalf("status = %q", doc.Status)
	}
}

func TestProcessIndexesPagesWithProvenance(t *testing.T) {
	docs := newFakeDocs()
	ex := &fakeExtractor{pages: []pdf.PageResult{
		{Page: 1, Text: prose, Source: pdf.SourceTextLayer, Confidence: 100},
		{Page: 2, Text: prose, Source: "ocr/azure", Confidence: 81.5},
	}}
	in, _, vectors, _ := newTestIngestor(docs, ex)
	ctx := context.Background()

	doc, err := in.Upload(ctx, 1, "a.pdf", []byte("%PDF-1.4 content"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if err := in.Process(ctx, streams.IngestJob{DocID: doc.ID, UserID: 1}); err != nil {
		t.Fatalf("process: %v", err)
	}

	got := docs.docs[doc.ID]
	if got.Status != store.StatusProcessed || got.ChunkCount == 0 {
		t.Fatalf("unexpected doc state: %+v", got)
	}

	items, err := vectors.Fetch(ctx, vector.Namespace(1), vector.Filter{DocID: doc.ID, UserID: 1}, 0)
	if err != nil || len(items) == 0 {
		t.Fatalf("fetch chunks: %d %v", len(items), err)
	}
	if !strings.HasPrefix(items[0].Text, "[PAGE 1 | source=text | conf=100.0]") {
		t.Fatalf("missing provenance header: %q", items[0].Text[:50])
	}

	// Progress only grows during a run.
	for i := 1; i < len(docs.progress); i++ {
		if docs.progress[i] < docs.progress[i-1] {
			t.Fatalf("chunk count regressed: %v", docs.progress)
		}
	}
}

func TestProcessRetriesWithForcedOCRWhenNoText(t *testing.T) {
	docs := newFakeDocs()
	ex := &fakeExtractor{
		pages:     []pdf.PageResult{{Page: 1, Source: pdf.SourceNeedsOCR}},
		forcedOCR: []pdf.PageResult{{Page: 1, Text: prose, Source: "ocr/azure", Confidence: 70}},
	}
	in, _, _, _ := newTestIngestor(docs, ex)
	ctx := context.Background()

	doc, err := in.Upload(ctx, 1, "a.pdf", []byte("%PDF-1.4 content"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if err := in.Process(ctx, streams.IngestJob{DocID: doc.ID, UserID: 1}); err != nil {
		t.Fatalf("process: %v", err)
	}
	if ex.forceCalls != 1 {
		t.Fatalf("expected 1 forced-OCR retry, got %d", ex.forceCalls)
	}
	if docs.docs[doc.ID].Status != store.StatusProcessed {
		t.Fatalf("status = %s", docs.docs[doc.ID].Status)
	}
}

func TestProcessFailsWhenNothingReadable(t *testing.T) {
	docs := newFakeDocs()
	ex := &fakeExtractor{
		pages:     []pdf.PageResult{{Page: 1, Source: pdf.SourceNeedsOCR}},
		forcedOCR: []pdf.PageResult{{Page: 1, Source: "ocr/azure"}},
	}
	in, _, _, _ := newTestIngestor(docs, ex)
	ctx := context.Background()

	doc, err := in.Upload(ctx, 1, "a.pdf", []byte("%PDF-1.4 content"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if err := in.Process(ctx, streams.IngestJob{DocID: doc.ID, UserID: 1}); err != nil {
		t.Fatalf("process should absorb the failure: %v", err)
	}
	got := docs.docs[doc.ID]
	if got.Status != store.StatusFailed || got.Error == "" {
		t.Fatalf("expected failed doc with error, got %+v", got)
	}
}

func TestProcessClearsPreviousChunks(t *testing.T) {
	docs := newFakeDocs()
	ex := &fakeExtractor{pages: []pdf.PageResult{{Page: 1, Text: prose, Source: pdf.SourceTextLayer, Confidence: 100}}}
	in, _, vectors, _ := newTestIngestor(docs, ex)
	ctx := context.Background()

	doc, err := in.Upload(ctx, 1, "a.pdf", []byte("%PDF-1.4 content"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	// Seed a stale chunk from an earlier run.
	stale := vector.Item{ID: "stale", Vector: []float32{1, 0, 0, 0}, Text: "old",
		Metadata: vector.Metadata{DocID: doc.ID, UserID: 1}}
	if err := vectors.Upsert(ctx, vector.Namespace(1), []vector.Item{stale}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := in.Process(ctx, streams.IngestJob{DocID: doc.ID, UserID: 1}); err != nil {
		t.Fatalf("process: %v", err)
	}
	items, _ := vectors.Fetch(ctx, vector.Namespace(1), vector.Filter{DocID: doc.ID, UserID: 1}, 0)
	for _, it := range items {
		if it.ID == "stale" {
			t.Fatal("stale chunk survived re-ingestion")
		}
	}
}
