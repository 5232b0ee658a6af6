package vectorstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PostgresStore keeps chunk vectors in a pgvector table keyed by
// (owner_id, document_id, chunk_index).
//
// Similarity scores are derived from the cosine distance operator (<=>) as
// score = 1 - distance. Cosine distance is bounded in [0, 2]; for the
// non-negative embedding geometries the supported models produce it stays in
// [0, 1], and the score is clamped to [0, 1] regardless. The formula is
// specific to this metric and must be revisited if the index ever switches
// to L2 or inner product.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the vector table and its indexes. dimension must
// match the configured embedding model.
func (s *PostgresStore) EnsureSchema(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return &IndexError{Op: "schema", Err: fmt.Errorf("embedding dimension must be positive, got %d", dimension)}
	}

	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunk_vectors (
			owner_id BIGINT NOT NULL,
			document_id BIGINT NOT NULL,
			chunk_index INT NOT NULL,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding VECTOR(%d) NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (owner_id, document_id, chunk_index)
		)`, dimension),
		"CREATE INDEX IF NOT EXISTS idx_chunk_vectors_owner ON chunk_vectors(owner_id)",
		"CREATE INDEX IF NOT EXISTS idx_chunk_vectors_embedding ON chunk_vectors USING ivfflat (embedding vector_cosine_ops)",
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return &IndexError{Op: "schema", Err: err}
		}
	}
	return nil
}

func (s *PostgresStore) Upsert(ctx context.Context, records []Record, vectors [][]float32) error {
	if len(records) != len(vectors) {
		return &IndexError{Op: "upsert", Err: fmt.Errorf("have %d records, %d vectors", len(records), len(vectors))}
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return &IndexError{Op: "upsert", Err: err}
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	for i, rec := range records {
		if _, err := tx.Exec(ctx, `
			INSERT INTO chunk_vectors (owner_id, document_id, chunk_index, title, content, embedding, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, NOW())
			ON CONFLICT (owner_id, document_id, chunk_index)
			DO UPDATE SET title = EXCLUDED.title,
			              content = EXCLUDED.content,
			              embedding = EXCLUDED.embedding,
			              updated_at = NOW()
		`, rec.OwnerID, rec.DocumentID, rec.ChunkIndex, rec.Title, rec.Text, pgvector.NewVector(vectors[i])); err != nil {
			return &IndexError{Op: "upsert", Err: fmt.Errorf("chunk %d: %w", rec.ChunkIndex, err)}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return &IndexError{Op: "upsert", Err: err}
	}
	return nil
}

func (s *PostgresStore) Query(ctx context.Context, vector []float32, ownerID int64, documentIDs []int64, k int) ([]Result, error) {
	if len(vector) == 0 {
		return nil, &IndexError{Op: "query", Err: fmt.Errorf("query vector is empty")}
	}
	if k <= 0 {
		k = 5
	}

	query := `
		SELECT content, document_id, title, chunk_index,
		       (embedding <=> $1::vector) AS distance
		FROM chunk_vectors
		WHERE owner_id = $2`
	args := []any{pgvector.NewVector(vector), ownerID}
	if len(documentIDs) > 0 {
		query += " AND document_id = ANY($3)"
		args = append(args, documentIDs)
	}
	query += fmt.Sprintf(" ORDER BY embedding <=> $1::vector LIMIT %d", k)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, &IndexError{Op: "query", Err: err}
	}
	defer rows.Close()

	results := make([]Result, 0, k)
	for rows.Next() {
		var (
			item     Result
			distance float64
		)
		if err := rows.Scan(&item.Text, &item.DocumentID, &item.Title, &item.ChunkIndex, &distance); err != nil {
			return nil, &IndexError{Op: "query", Err: err}
		}
		item.Score = clampScore(1 - distance)
		results = append(results, item)
	}
	if err := rows.Err(); err != nil {
		return nil, &IndexError{Op: "query", Err: err}
	}
	return results, nil
}

func (s *PostgresStore) DeleteByOwner(ctx context.Context, ownerID int64) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM chunk_vectors WHERE owner_id = $1", ownerID); err != nil {
		return &IndexError{Op: "delete", Err: err}
	}
	return nil
}

func (s *PostgresStore) DeleteByDocument(ctx context.Context, ownerID, documentID int64) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM chunk_vectors WHERE owner_id = $1 AND document_id = $2", ownerID, documentID); err != nil {
		return &IndexError{Op: "delete", Err: err}
	}
	return nil
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

var _ Store = (*PostgresStore)(nil)
