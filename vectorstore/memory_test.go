package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, s *MemoryStore) {
	t.Helper()
	err := s.Upsert(context.Background(), []Record{
		{OwnerID: 1, DocumentID: 10, Title: "Biology", ChunkIndex: 0, Text: "cells divide"},
		{OwnerID: 1, DocumentID: 10, Title: "Biology", ChunkIndex: 1, Text: "mitosis phases"},
		{OwnerID: 1, DocumentID: 20, Title: "History", ChunkIndex: 0, Text: "rome fell"},
		{OwnerID: 2, DocumentID: 30, Title: "Secrets", ChunkIndex: 0, Text: "other user's notes"},
	}, [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0, 1, 0},
		{1, 0, 0},
	})
	require.NoError(t, err)
}

func TestQueryIsOwnerScoped(t *testing.T) {
	s := NewMemoryStore()
	seed(t, s)

	// The query vector is identical to user 2's vector; user 1 must still
	// never see user 2's chunks.
	results, err := s.Query(context.Background(), []float32{1, 0, 0}, 1, nil, 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.NotEqual(t, "other user's notes", r.Text)
		assert.NotEqual(t, int64(30), r.DocumentID)
	}
}

func TestQueryDocumentScope(t *testing.T) {
	s := NewMemoryStore()
	seed(t, s)

	results, err := s.Query(context.Background(), []float32{1, 0, 0}, 1, []int64{10}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, int64(10), r.DocumentID)
	}

	// Empty scope means no document filter.
	results, err = s.Query(context.Background(), []float32{0, 1, 0}, 1, nil, 10)
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, int64(20), results[0].DocumentID)
}

func TestQueryRankedByScore(t *testing.T) {
	s := NewMemoryStore()
	seed(t, s)

	results, err := s.Query(context.Background(), []float32{1, 0, 0}, 1, nil, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "cells divide", results[0].Text)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 1.0)
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	s := NewMemoryStore()
	seed(t, s)
	before := s.Len()

	seed(t, s)
	assert.Equal(t, before, s.Len(), "re-ingesting identical input must not duplicate vectors")
}

func TestUpsertLengthMismatch(t *testing.T) {
	s := NewMemoryStore()
	err := s.Upsert(context.Background(), []Record{{OwnerID: 1}}, nil)
	var idxErr *IndexError
	require.ErrorAs(t, err, &idxErr)
}

func TestDeleteByOwner(t *testing.T) {
	s := NewMemoryStore()
	seed(t, s)

	require.NoError(t, s.DeleteByOwner(context.Background(), 1))

	results, err := s.Query(context.Background(), []float32{1, 0, 0}, 1, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	// Other owners are untouched.
	results, err = s.Query(context.Background(), []float32{1, 0, 0}, 2, nil, 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestDeleteByDocument(t *testing.T) {
	s := NewMemoryStore()
	seed(t, s)

	require.NoError(t, s.DeleteByDocument(context.Background(), 1, 10))

	results, err := s.Query(context.Background(), []float32{1, 0, 0}, 1, nil, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(20), results[0].DocumentID)
}
