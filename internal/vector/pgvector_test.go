package vector

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestPGUpsertBatches(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	pg := NewPG(db, 2)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`INSERT INTO doc_chunks`)
	prep.ExpectExec().
		WithArgs("7_abc_0", "u1", int64(1), int64(7), 0, 1, "text", 100.0, "hello world", "[0.5,0.5]").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	items := []Item{{
		ID:     "7_abc_0",
		Vector: []float32{0.5, 0.5},
		Text:   "hello world",
		Metadata: Metadata{
			DocID: 7, UserID: 1, ChunkIndex: 0, Page: 1, Source: "text", Confidence: 100,
		},
	}}
	if err := pg.Upsert(context.Background(), "u1", items); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGUpsertRejectsDimensionMismatch(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	pg := NewPG(db, 4)
	items := []Item{{ID: "x", Vector: []float32{1, 2}, Metadata: Metadata{DocID: 1, UserID: 1}}}
	if err := pg.Upsert(context.Background(), "u1", items); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestPGQueryScopedToNamespace(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	pg := NewPG(db, 2)

	rows := sqlmock.NewRows([]string{"id", "user_id", "doc_id", "chunk_index", "page", "source", "confidence", "content", "distance"}).
		AddRow("7_abc_0", int64(1), int64(7), 0, 1, "text", 100.0, "hello", 0.12)
	mock.ExpectQuery(`SELECT id, user_id, doc_id, chunk_index, page, source, confidence, content, embedding <=> \$1::vector AS distance`).
		WithArgs("[0.5,0.5]", "u1", int64(7), int64(1), 4).
		WillReturnRows(rows)

	matches, err := pg.Query(context.Background(), "u1", []float32{0.5, 0.5}, 4, Filter{DocID: 7, UserID: 1})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(matches) != 1 || matches[0].Distance != 0.12 {
		t.Fatalf("unexpected matches: %+v", matches)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGDeleteIdempotent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	pg := NewPG(db, 2)
	mock.ExpectExec(`DELETE FROM doc_chunks WHERE namespace = \$1 AND doc_id = \$2 AND user_id = \$3`).
		WithArgs("u1", int64(7), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := pg.Delete(context.Background(), "u1", Filter{DocID: 7, UserID: 1}); err != nil {
		t.Fatalf("delete with zero matches must succeed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMemoryNamespaceIsolation(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	// Both owners use the same doc id value space on purpose.
	_ = m.Upsert(ctx, Namespace(1), []Item{{ID: "a", Vector: []float32{1, 0}, Text: "owner A", Metadata: Metadata{DocID: 7, UserID: 1}}})
	_ = m.Upsert(ctx, Namespace(2), []Item{{ID: "b", Vector: []float32{1, 0}, Text: "owner B", Metadata: Metadata{DocID: 7, UserID: 2}}})

	matches, err := m.Query(ctx, Namespace(1), []float32{1, 0}, 10, Filter{DocID: 7, UserID: 1})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	for _, match := range matches {
		if match.Metadata.UserID != 1 {
			t.Fatalf("namespace leak: got chunk owned by user %d", match.Metadata.UserID)
		}
	}
	if len(matches) != 1 || matches[0].Text != "owner A" {
		t.Fatalf("unexpected matches: %+v", matches)
	}
}
