// Package store persists users, documents and conversation history in
// postgres. Chunk vectors live in the vector package; this package owns the
// relational side.
package store

import (
	"errors"
	"time"
)

// Document lifecycle states.
const (
	StatusProcessing = "processing"
	StatusProcessed  = "processed"
	StatusFailed     = "failed"
)

var (
	// ErrNotFound is returned when a row does not exist or is not visible to
	// the requesting owner.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique constraint rejects the write,
	// e.g. re-uploading the same file or reusing an email.
	ErrDuplicate = errors.New("already exists")
)

// User is a registered account.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Document is one uploaded PDF and its processing state.
type Document struct {
	ID          int64     `json:"id"`
	OwnerID     int64     `json:"owner_id"`
	Filename    string    `json:"filename"`
	ContentHash string    `json:"content_hash"`
	BlobKey     string    `json:"-"`
	Status      string    `json:"status"`
	ChunkCount  int       `json:"chunk_count"`
	PageCount   int       `json:"page_count"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Conversation groups the question/answer history of one user on one
// document.
type Conversation struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	DocID     int64     `json:"doc_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is a single turn in a conversation.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	Role           string    `json:"role"` // "user" or "assistant"
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// InterviewSession records one generated set of interview questions.
type InterviewSession struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	DocID     int64     `json:"doc_id"`
	Questions []string  `json:"questions"`
	CreatedAt time.Time `json:"created_at"`
}
