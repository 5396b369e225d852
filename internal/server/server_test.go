package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/mohammad-safakhou/ebookqa/config"
	"github.com/mohammad-safakhou/ebookqa/internal/ingest"
	"github.com/mohammad-safakhou/ebookqa/internal/provider"
	"github.com/mohammad-safakhou/ebookqa/internal/runtime"
	"github.com/mohammad-safakhou/ebookqa/internal/store"
)

type fakeIngest struct {
	doc store.Document
	err error
}

func (f *fakeIngest) Upload(context.Context, int64, string, []byte) (store.Document, error) {
	return f.doc, f.err
}

type fakeEngine struct {
	answer    string
	questions []string
	err       error
	scope     string
}

func (f *fakeEngine) Answer(_ context.Context, _, _ int64, _ string, _ []provider.Message) (string, error) {
	return f.answer, f.err
}

func (f *fakeEngine) Summarize(_ context.Context, _, _ int64, scope string) (string, error) {
	f.scope = scope
	return f.answer, f.err
}

func (f *fakeEngine) InterviewQuestions(context.Context, int64, int64, string) ([]string, error) {
	return f.questions, f.err
}

type fakeVectors struct {
	err   error
	calls int
}

func (f *fakeVectors) DeleteDoc(context.Context, int64, int64) error {
	f.calls++
	return f.err
}

type fakeBlobs struct{ calls int }

func (f *fakeBlobs) Delete(context.Context, string) (bool, error) {
	f.calls++
	return true, nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.Address = ":0"
	cfg.Server.JWTSecret = "test-secret"
	cfg.Server.JWTTTL = time.Hour
	cfg.Ingest.MaxFileSize = 1 << 20
	cfg.Retrieval.HistoryTurns = 6
	return cfg
}

func newTestServer(t *testing.T, ing Ingest, eng Answerer, vecs VectorDeleter, blobs BlobDeleter) (*Server, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if vecs == nil {
		vecs = &fakeVectors{}
	}
	if blobs == nil {
		blobs = &fakeBlobs{}
	}
	return New(store.New(db), ing, eng, vecs, blobs, testConfig(), nil), mock
}

func authHeader(t *testing.T, userID int64) string {
	t.Helper()
	tok, err := runtime.SignJWT(userID, []byte("test-secret"), time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return "Bearer " + tok
}

func doRequest(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func multipartPDF(t *testing.T, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	fw, err := w.CreateFormFile("file", "book.pdf")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write: %v", err)
	}
	w.Close()
	return body, w.FormDataContentType()
}

func TestUploadRequiresAuth(t *testing.T) {
	s, _ := newTestServer(t, &fakeIngest{}, &fakeEngine{}, nil, nil)
	body, ctype := multipartPDF(t, []byte("%PDF-1.4"))
	req := httptest.NewRequest(http.MethodPost, "/api/docs", body)
	req.Header.Set("Content-Type", ctype)

	if rec := doRequest(s, req); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestUploadAccepted(t *testing.T) {
	ing := &fakeIngest{doc: store.Document{ID: 42, Status: store.StatusProcessing}}
	s, _ := newTestServer(t, ing, &fakeEngine{}, nil, nil)

	body, ctype := multipartPDF(t, []byte("%PDF-1.4 content"))
	req := httptest.NewRequest(http.MethodPost, "/api/docs", body)
	req.Header.Set("Content-Type", ctype)
	req.Header.Set("Authorization", authHeader(t, 1))

	rec := doRequest(s, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp UploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.DocumentID != 42 {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestUploadRejectsNonPDF(t *testing.T) {
	ing := &fakeIngest{err: ingest.ErrNotPDF}
	s, _ := newTestServer(t, ing, &fakeEngine{}, nil, nil)

	body, ctype := multipartPDF(t, []byte("GIF89a"))
	req := httptest.NewRequest(http.MethodPost, "/api/docs", body)
	req.Header.Set("Content-Type", ctype)
	req.Header.Set("Authorization", authHeader(t, 1))

	if rec := doRequest(s, req); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUploadDuplicateConflict(t *testing.T) {
	ing := &fakeIngest{doc: store.Document{ID: 7}, err: store.ErrDuplicate}
	s, _ := newTestServer(t, ing, &fakeEngine{}, nil, nil)

	body, ctype := multipartPDF(t, []byte("%PDF-1.4"))
	req := httptest.NewRequest(http.MethodPost, "/api/docs", body)
	req.Header.Set("Content-Type", ctype)
	req.Header.Set("Authorization", authHeader(t, 1))

	rec := doRequest(s, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"document_id":7`) {
		t.Fatalf("conflict body should name the original doc: %s", rec.Body.String())
	}
}

func TestDocStatusForeignDocIsNotFound(t *testing.T) {
	s, mock := newTestServer(t, &fakeIngest{}, &fakeEngine{}, nil, nil)
	mock.ExpectQuery(`SELECT .+ FROM documents WHERE id = \$1 AND owner_id = \$2`).
		WithArgs(int64(3), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	req := httptest.NewRequest(http.MethodGet, "/api/docs/3/status", nil)
	req.Header.Set("Authorization", authHeader(t, 1))

	if rec := doRequest(s, req); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestAskRecordsConversation(t *testing.T) {
	eng := &fakeEngine{answer: "It is about a fox."}
	s, mock := newTestServer(t, &fakeIngest{}, eng, nil, nil)
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO conversations`).
		WithArgs(int64(1), int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "doc_id", "created_at", "updated_at"}).
			AddRow(int64(5), int64(1), int64(3), now, now))
	mock.ExpectQuery(`SELECT .+ FROM messages WHERE conversation_id = \$1`).
		WithArgs(int64(5), 6).
		WillReturnRows(sqlmock.NewRows([]string{"id", "conversation_id", "role", "content", "created_at"}))
	mock.ExpectQuery(`INSERT INTO messages`).
		WithArgs(int64(5), "user", "what is it about?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "conversation_id", "role", "content", "created_at"}).
			AddRow(int64(10), int64(5), "user", "what is it about?", now))
	mock.ExpectQuery(`INSERT INTO messages`).
		WithArgs(int64(5), "assistant", "It is about a fox.").
		WillReturnRows(sqlmock.NewRows([]string{"id", "conversation_id", "role", "content", "created_at"}).
			AddRow(int64(11), int64(5), "assistant", "It is about a fox.", now))

	payload := bytes.NewBufferString(`{"question":"what is it about?"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/docs/3/ask", payload)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", authHeader(t, 1))

	rec := doRequest(s, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestAskForeignDocIsNotFound(t *testing.T) {
	eng := &fakeEngine{err: store.ErrNotFound}
	s, mock := newTestServer(t, &fakeIngest{}, eng, nil, nil)
	now := time.Now()
	mock.ExpectQuery(`INSERT INTO conversations`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "doc_id", "created_at", "updated_at"}).
			AddRow(int64(5), int64(1), int64(3), now, now))
	mock.ExpectQuery(`SELECT .+ FROM messages`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "conversation_id", "role", "content", "created_at"}))

	payload := bytes.NewBufferString(`{"question":"anything?"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/docs/3/ask", payload)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", authHeader(t, 1))

	if rec := doRequest(s, req); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestSummarizePassesScope(t *testing.T) {
	eng := &fakeEngine{answer: "A short summary."}
	s, _ := newTestServer(t, &fakeIngest{}, eng, nil, nil)

	payload := bytes.NewBufferString(`{"scope":"chapter"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/docs/3/summarize", payload)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", authHeader(t, 1))

	rec := doRequest(s, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if eng.scope != "chapter" {
		t.Fatalf("scope not forwarded, got %q", eng.scope)
	}
}

func TestDeleteDocBestEffortCleanup(t *testing.T) {
	vecs := &fakeVectors{err: errors.New("index offline")}
	blobs := &fakeBlobs{}
	s, mock := newTestServer(t, &fakeIngest{}, &fakeEngine{}, vecs, blobs)
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM documents WHERE id = \$1 AND owner_id = \$2`).
		WithArgs(int64(3), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "owner_id", "filename", "content_hash", "blob_key", "status",
			"chunk_count", "page_count", "error", "created_at", "updated_at",
		}).AddRow(int64(3), int64(1), "a.pdf", "hash", "key", store.StatusProcessed, 5, 2, "", now, now))
	mock.ExpectExec(`DELETE FROM documents`).
		WithArgs(int64(3), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest(http.MethodDelete, "/api/docs/3", nil)
	req.Header.Set("Authorization", authHeader(t, 1))

	rec := doRequest(s, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("vector failure must not block deletion, got %d: %s", rec.Code, rec.Body.String())
	}
	if vecs.calls != 1 || blobs.calls != 1 {
		t.Fatalf("cleanup calls: vectors=%d blobs=%d", vecs.calls, blobs.calls)
	}
}
