package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"
)

type memoryKey struct {
	ownerID    int64
	documentID int64
	chunkIndex int
}

type memoryEntry struct {
	record Record
	vector []float32
}

// MemoryStore is a brute-force cosine-similarity Store used in tests and as
// a reference for the port's contract. Scores are (cos + 1) / 2, mapping
// cosine similarity [-1, 1] onto [0, 1].
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[memoryKey]memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[memoryKey]memoryEntry)}
}

func (s *MemoryStore) Upsert(_ context.Context, records []Record, vectors [][]float32) error {
	if len(records) != len(vectors) {
		return &IndexError{Op: "upsert", Err: errLengthMismatch(len(records), len(vectors))}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, rec := range records {
		key := memoryKey{ownerID: rec.OwnerID, documentID: rec.DocumentID, chunkIndex: rec.ChunkIndex}
		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		s.entries[key] = memoryEntry{record: rec, vector: vec}
	}
	return nil
}

func (s *MemoryStore) Query(_ context.Context, vector []float32, ownerID int64, documentIDs []int64, k int) ([]Result, error) {
	if k <= 0 {
		k = 5
	}

	allowed := map[int64]struct{}{}
	for _, id := range documentIDs {
		allowed[id] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]Result, 0)
	for key, entry := range s.entries {
		if key.ownerID != ownerID {
			continue
		}
		if len(allowed) > 0 {
			if _, ok := allowed[key.documentID]; !ok {
				continue
			}
		}
		results = append(results, Result{
			Text:       entry.record.Text,
			DocumentID: entry.record.DocumentID,
			Title:      entry.record.Title,
			ChunkIndex: entry.record.ChunkIndex,
			Score:      (cosine(vector, entry.vector) + 1) / 2,
		})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (s *MemoryStore) DeleteByOwner(_ context.Context, ownerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.entries {
		if key.ownerID == ownerID {
			delete(s.entries, key)
		}
	}
	return nil
}

func (s *MemoryStore) DeleteByDocument(_ context.Context, ownerID, documentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.entries {
		if key.ownerID == ownerID && key.documentID == documentID {
			delete(s.entries, key)
		}
	}
	return nil
}

// Len reports the number of indexed vectors.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var _ Store = (*MemoryStore)(nil)
