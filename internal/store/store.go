package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Store wraps the relational database.
type Store struct {
	DB *sql.DB
}

func New(db *sql.DB) *Store { return &Store{DB: db} }

// Open connects and pings with a bounded timeout.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{DB: db}, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pq.Error
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// --- users ---

func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) (User, error) {
	var u User
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO users (email, password_hash, created_at)
VALUES ($1, $2, NOW())
RETURNING id, email, password_hash, created_at;
`, email, passwordHash).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if isUniqueViolation(err) {
		return User{}, ErrDuplicate
	}
	if err != nil {
		return User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := s.DB.QueryRowContext(ctx, `
SELECT id, email, password_hash, created_at FROM users WHERE email = $1;
`, email).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (User, error) {
	var u User
	err := s.DB.QueryRowContext(ctx, `
SELECT id, email, password_hash, created_at FROM users WHERE id = $1;
`, id).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// --- documents ---

const docColumns = `id, owner_id, filename, content_hash, blob_key, status, chunk_count, page_count, COALESCE(error, ''), created_at, updated_at`

func scanDoc(row interface{ Scan(...interface{}) error }) (Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.OwnerID, &d.Filename, &d.ContentHash, &d.BlobKey,
		&d.Status, &d.ChunkCount, &d.PageCount, &d.Error, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

// CreateDocument inserts a new document in the processing state. The unique
// (owner_id, content_hash) index makes re-uploads of identical bytes fail
// with ErrDuplicate.
func (s *Store) CreateDocument(ctx context.Context, ownerID int64, filename, contentHash, blobKey string) (Document, error) {
	d, err := scanDoc(s.DB.QueryRowContext(ctx, `
INSERT INTO documents (owner_id, filename, content_hash, blob_key, status, chunk_count, page_count, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, 0, 0, NOW(), NOW())
RETURNING `+docColumns+`;
`, ownerID, filename, contentHash, blobKey, StatusProcessing))
	if isUniqueViolation(err) {
		return Document{}, ErrDuplicate
	}
	if err != nil {
		return Document{}, fmt.Errorf("create document: %w", err)
	}
	return d, nil
}

// GetDocument returns the document only when it belongs to ownerID. A foreign
// document is indistinguishable from a missing one.
func (s *Store) GetDocument(ctx context.Context, id, ownerID int64) (Document, error) {
	d, err := scanDoc(s.DB.QueryRowContext(ctx, `
SELECT `+docColumns+` FROM documents WHERE id = $1 AND owner_id = $2;
`, id, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document: %w", err)
	}
	return d, nil
}

func (s *Store) GetDocumentByHash(ctx context.Context, ownerID int64, contentHash string) (Document, error) {
	d, err := scanDoc(s.DB.QueryRowContext(ctx, `
SELECT `+docColumns+` FROM documents WHERE owner_id = $1 AND content_hash = $2;
`, ownerID, contentHash))
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document by hash: %w", err)
	}
	return d, nil
}

func (s *Store) ListDocuments(ctx context.Context, ownerID int64) ([]Document, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT `+docColumns+` FROM documents WHERE owner_id = $1 ORDER BY created_at DESC;
`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		d, err := scanDoc(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// UpdateDocumentProgress bumps the indexed chunk count while the document is
// still processing. The count only grows within one run.
func (s *Store) UpdateDocumentProgress(ctx context.Context, id int64, chunkCount, pageCount int) error {
	_, err := s.DB.ExecContext(ctx, `
UPDATE documents SET chunk_count = $2, page_count = $3, updated_at = NOW() WHERE id = $1;
`, id, chunkCount, pageCount)
	if err != nil {
		return fmt.Errorf("update document progress: %w", err)
	}
	return nil
}

// SetDocumentStatus moves the document to another lifecycle state. errMsg is
// stored only for failures.
func (s *Store) SetDocumentStatus(ctx context.Context, id int64, status, errMsg string) error {
	_, err := s.DB.ExecContext(ctx, `
UPDATE documents SET status = $2, error = NULLIF($3, ''), updated_at = NOW() WHERE id = $1;
`, id, status, errMsg)
	if err != nil {
		return fmt.Errorf("set document status: %w", err)
	}
	return nil
}

// DeleteDocument removes the document row. Conversations, messages and
// interview sessions cascade at the schema level.
func (s *Store) DeleteDocument(ctx context.Context, id, ownerID int64) error {
	res, err := s.DB.ExecContext(ctx, `
DELETE FROM documents WHERE id = $1 AND owner_id = $2;
`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// FailStuckDocuments marks documents stuck in processing longer than maxAge
// as failed. Returns the number of documents reaped.
func (s *Store) FailStuckDocuments(ctx context.Context, maxAge time.Duration) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `
UPDATE documents SET status = $1, error = 'processing timed out', updated_at = NOW()
WHERE status = $2 AND updated_at < NOW() - $3::interval;
`, StatusFailed, StatusProcessing, fmt.Sprintf("%d seconds", int(maxAge.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("fail stuck documents: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// --- conversations ---

// GetOrCreateConversation returns the single conversation of a user on a
// document, creating it on first use.
func (s *Store) GetOrCreateConversation(ctx context.Context, userID, docID int64) (Conversation, error) {
	var c Conversation
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO conversations (user_id, doc_id, created_at, updated_at)
VALUES ($1, $2, NOW(), NOW())
ON CONFLICT (user_id, doc_id) DO UPDATE SET updated_at = NOW()
RETURNING id, user_id, doc_id, created_at, updated_at;
`, userID, docID).Scan(&c.ID, &c.UserID, &c.DocID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Conversation{}, fmt.Errorf("get or create conversation: %w", err)
	}
	return c, nil
}

func (s *Store) ListConversations(ctx context.Context, userID int64) ([]Conversation, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, user_id, doc_id, created_at, updated_at
FROM conversations WHERE user_id = $1 ORDER BY updated_at DESC;
`, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.DocID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

func (s *Store) AppendMessage(ctx context.Context, conversationID int64, role, content string) (Message, error) {
	var m Message
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO messages (conversation_id, role, content, created_at)
VALUES ($1, $2, $3, NOW())
RETURNING id, conversation_id, role, content, created_at;
`, conversationID, role, content).Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt)
	if err != nil {
		return Message{}, fmt.Errorf("append message: %w", err)
	}
	return m, nil
}

// RecentMessages returns the last limit messages of the conversation in
// chronological order.
func (s *Store) RecentMessages(ctx context.Context, conversationID int64, limit int) ([]Message, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, conversation_id, role, content, created_at FROM (
  SELECT id, conversation_id, role, content, created_at
  FROM messages WHERE conversation_id = $1
  ORDER BY id DESC LIMIT $2
) recent ORDER BY id ASC;
`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// --- interview sessions ---

func (s *Store) CreateInterviewSession(ctx context.Context, userID, docID int64, questions []string) (InterviewSession, error) {
	payload, err := json.Marshal(questions)
	if err != nil {
		return InterviewSession{}, fmt.Errorf("marshal questions: %w", err)
	}
	sess := InterviewSession{UserID: userID, DocID: docID, Questions: questions}
	err = s.DB.QueryRowContext(ctx, `
INSERT INTO interview_sessions (user_id, doc_id, questions, created_at)
VALUES ($1, $2, $3, NOW())
RETURNING id, created_at;
`, userID, docID, payload).Scan(&sess.ID, &sess.CreatedAt)
	if err != nil {
		return InterviewSession{}, fmt.Errorf("create interview session: %w", err)
	}
	return sess, nil
}

func (s *Store) ListInterviewSessions(ctx context.Context, userID, docID int64) ([]InterviewSession, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, user_id, doc_id, questions, created_at
FROM interview_sessions WHERE user_id = $1 AND doc_id = $2 ORDER BY created_at DESC;
`, userID, docID)
	if err != nil {
		return nil, fmt.Errorf("list interview sessions: %w", err)
	}
	defer rows.Close()

	var sessions []InterviewSession
	for rows.Next() {
		var sess InterviewSession
		var payload []byte
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.DocID, &payload, &sess.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan interview session: %w", err)
		}
		if err := json.Unmarshal(payload, &sess.Questions); err != nil {
			return nil, fmt.Errorf("unmarshal questions: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}
