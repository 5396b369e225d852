package vector

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// upsertBatchSize bounds the number of rows written per prepared-statement
// transaction to respect provider limits.
const upsertBatchSize = 100

// PG is the pgvector-backed Store. Chunks live in the doc_chunks table with
// an `embedding vector(N)` column; cosine distance via the `<=>` operator.
type PG struct {
	DB   *sql.DB
	Dims int
}

// NewPG wraps an open postgres handle.
func NewPG(db *sql.DB, dims int) *PG {
	return &PG{DB: db, Dims: dims}
}

var _ Store = (*PG)(nil)

// Upsert writes the items in bounded batches inside transactions.
func (p *PG) Upsert(ctx context.Context, namespace string, items []Item) error {
	if namespace == "" {
		return fmt.Errorf("namespace required")
	}
	for start := 0; start < len(items); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(items) {
			end = len(items)
		}
		if err := p.upsertBatch(ctx, namespace, items[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (p *PG) upsertBatch(ctx context.Context, namespace string, items []Item) (err error) {
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO doc_chunks (id, namespace, user_id, doc_id, chunk_index, page, source, confidence, content, embedding, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10::vector,NOW())
ON CONFLICT (id) DO UPDATE SET
  content = EXCLUDED.content,
  embedding = EXCLUDED.embedding;
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, item := range items {
		if item.ID == "" {
			return fmt.Errorf("chunk id required")
		}
		if p.Dims > 0 && len(item.Vector) != p.Dims {
			return fmt.Errorf("vector dimension mismatch for chunk %s (got %d want %d)", item.ID, len(item.Vector), p.Dims)
		}
		lit, err := encodeVectorLiteral(item.Vector)
		if err != nil {
			return fmt.Errorf("chunk %s: %w", item.ID, err)
		}
		m := item.Metadata
		if _, err := stmt.ExecContext(ctx, item.ID, namespace, m.UserID, m.DocID, m.ChunkIndex, m.Page, m.Source, m.Confidence, item.Text, lit); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", item.ID, err)
		}
	}
	return nil
}

// Query returns the topK nearest chunks in the namespace for the filter.
func (p *PG) Query(ctx context.Context, namespace string, vec []float32, topK int, filter Filter) ([]Match, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace required")
	}
	if topK <= 0 {
		topK = 4
	}
	lit, err := encodeVectorLiteral(vec)
	if err != nil {
		return nil, err
	}
	rows, err := p.DB.QueryContext(ctx, `
SELECT id, user_id, doc_id, chunk_index, page, source, confidence, content, embedding <=> $1::vector AS distance
FROM doc_chunks
WHERE namespace = $2 AND doc_id = $3 AND user_id = $4
ORDER BY embedding <=> $1::vector
LIMIT $5
`, lit, namespace, filter.DocID, filter.UserID, topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ID, &m.Metadata.UserID, &m.Metadata.DocID, &m.Metadata.ChunkIndex, &m.Metadata.Page, &m.Metadata.Source, &m.Metadata.Confidence, &m.Text, &m.Distance); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// Fetch returns stored chunks for the filter in chunk order.
func (p *PG) Fetch(ctx context.Context, namespace string, filter Filter, limit int) ([]Item, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace required")
	}
	q := `
SELECT id, user_id, doc_id, chunk_index, page, source, confidence, content
FROM doc_chunks
WHERE namespace = $1 AND doc_id = $2 AND user_id = $3
ORDER BY page, chunk_index`
	args := []interface{}{namespace, filter.DocID, filter.UserID}
	if limit > 0 {
		q += `
LIMIT $4`
		args = append(args, limit)
	}
	rows, err := p.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.Metadata.UserID, &it.Metadata.DocID, &it.Metadata.ChunkIndex, &it.Metadata.Page, &it.Metadata.Source, &it.Metadata.Confidence, &it.Text); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Delete removes every chunk matching the filter. Idempotent: zero matches is
// success.
func (p *PG) Delete(ctx context.Context, namespace string, filter Filter) error {
	if namespace == "" {
		return fmt.Errorf("namespace required")
	}
	_, err := p.DB.ExecContext(ctx, `
DELETE FROM doc_chunks WHERE namespace = $1 AND doc_id = $2 AND user_id = $3
`, namespace, filter.DocID, filter.UserID)
	return err
}

func encodeVectorLiteral(vec []float32) (string, error) {
	if len(vec) == 0 {
		return "", fmt.Errorf("vector must not be empty")
	}
	var builder strings.Builder
	builder.WriteByte('[')
	for i, f := range vec {
		if i > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	builder.WriteByte(']')
	return builder.String(), nil
}
