// Package vectorstore defines the vector-index capability the ingestion
// pipeline and the RAG core consume, plus its backends.
package vectorstore

import (
	"context"
	"fmt"
)

// Record is one chunk scheduled for indexing. The identity key of a vector
// is (OwnerID, DocumentID, ChunkIndex); upserting an existing key replaces
// it, which makes re-ingestion idempotent.
type Record struct {
	OwnerID    int64
	DocumentID int64
	Title      string
	ChunkIndex int
	Text       string
}

// Result is one nearest-neighbor hit. Score is in [0, 1], higher is more
// similar; the mapping from the backend's distance metric is documented on
// each implementation.
type Result struct {
	Text       string
	DocumentID int64
	Title      string
	ChunkIndex int
	Score      float64
}

// IndexError reports a vector-index failure with its underlying cause.
type IndexError struct {
	Op  string
	Err error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("vector index %s: %v", e.Op, e.Err)
}

func (e *IndexError) Unwrap() error { return e.Err }

func errLengthMismatch(records, vectors int) error {
	return fmt.Errorf("have %d records, %d vectors", records, vectors)
}

// Store is shared across all users and partitioned logically by owner.
// Every query and every write carries the owner scope; a missing scope is a
// cross-user leakage bug, not just a correctness bug.
type Store interface {
	// Upsert indexes records with their embeddings. records and vectors
	// must have equal length.
	Upsert(ctx context.Context, records []Record, vectors [][]float32) error

	// Query returns the k nearest neighbors of vector among ownerID's
	// chunks, restricted to documentIDs when the set is non-empty. Results
	// arrive in descending score order as ranked by the backend; the core
	// does not re-sort.
	Query(ctx context.Context, vector []float32, ownerID int64, documentIDs []int64, k int) ([]Result, error)

	// DeleteByOwner removes every vector upserted under ownerID.
	DeleteByOwner(ctx context.Context, ownerID int64) error

	// DeleteByDocument removes one document's vectors.
	DeleteByDocument(ctx context.Context, ownerID, documentID int64) error
}
