// Package store persists users, documents, chunks, and chat history in
// Postgres.
package store

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound reports that a row does not exist or is not visible to the
// requesting owner.
var ErrNotFound = errors.New("not found")

// Status is a document's processing state. The ingestion pipeline is the
// sole driver of the processing -> completed/failed transition.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

type User struct {
	ID           int64
	Email        string
	Username     string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
}

type Document struct {
	ID        int64
	OwnerID   int64
	Title     string
	Filename  string
	FilePath  string
	FileType  string
	FileSize  int64
	Content   string
	Summary   string
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Chunk is one relational chunk row. Rows for a document are replaced as a
// set during ingestion and removed with the document.
type Chunk struct {
	ID         uuid.UUID
	DocumentID int64
	Index      int
	Text       string
	CreatedAt  time.Time
}

type ChatSession struct {
	ID        int64
	OwnerID   int64
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type ChatMessage struct {
	ID        int64
	SessionID int64
	Role      string
	Content   string
	Sources   []byte // JSON-encoded source attributions, nil for user turns
	CreatedAt time.Time
}
