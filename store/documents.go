package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mfalcone/study-assistant/chunker"
)

const documentColumns = "id, owner_id, title, filename, file_path, file_type, file_size, content, summary, status, created_at, updated_at"

type Documents struct {
	pool *pgxpool.Pool
}

func NewDocuments(pool *pgxpool.Pool) *Documents {
	return &Documents{pool: pool}
}

func (d *Documents) Create(ctx context.Context, doc Document) (Document, error) {
	err := d.pool.QueryRow(ctx, `
		INSERT INTO documents (owner_id, title, filename, file_path, file_type, file_size, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, doc.OwnerID, doc.Title, doc.Filename, doc.FilePath, doc.FileType, doc.FileSize, StatusPending).
		Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return Document{}, fmt.Errorf("insert document: %w", err)
	}
	doc.Status = StatusPending
	return doc, nil
}

// Get returns a document only when it belongs to ownerID.
func (d *Documents) Get(ctx context.Context, ownerID, id int64) (Document, error) {
	row := d.pool.QueryRow(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE id = $1 AND owner_id = $2", id, ownerID)
	return scanDocument(row)
}

func (d *Documents) List(ctx context.Context, ownerID int64, offset, limit int) ([]Document, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := d.pool.Query(ctx,
		"SELECT "+documentColumns+" FROM documents WHERE owner_id = $1 ORDER BY created_at DESC OFFSET $2 LIMIT $3",
		ownerID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := make([]Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (d *Documents) Rename(ctx context.Context, ownerID, id int64, title string) (Document, error) {
	tag, err := d.pool.Exec(ctx,
		"UPDATE documents SET title = $3, updated_at = NOW() WHERE id = $1 AND owner_id = $2", id, ownerID, title)
	if err != nil {
		return Document{}, fmt.Errorf("rename document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Document{}, ErrNotFound
	}
	return d.Get(ctx, ownerID, id)
}

// Delete removes the document row; chunk rows cascade. The caller is
// responsible for deleting the document's vectors and graph node in the
// same logical operation.
func (d *Documents) Delete(ctx context.Context, ownerID, id int64) error {
	tag, err := d.pool.Exec(ctx, "DELETE FROM documents WHERE id = $1 AND owner_id = $2", id, ownerID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStatus records a processing-state transition. The write succeeds or
// fails on its own; it is issued before errors propagate so callers always
// observe the final state.
func (d *Documents) SetStatus(ctx context.Context, id int64, status Status) error {
	if _, err := d.pool.Exec(ctx,
		"UPDATE documents SET status = $2, updated_at = NOW() WHERE id = $1", id, status); err != nil {
		return fmt.Errorf("set document status: %w", err)
	}
	return nil
}

// CompleteIngestion stores the extracted content, the summary, and the
// chunk rows, and flips the status to completed, in one transaction. It is
// called only after the vector upsert succeeded, so a failed ingestion
// never leaves orphaned chunk rows behind.
func (d *Documents) CompleteIngestion(ctx context.Context, id int64, content, summary string, chunks []chunker.Chunk) error {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx, "DELETE FROM document_chunks WHERE document_id = $1", id); err != nil {
		return fmt.Errorf("clear existing chunks: %w", err)
	}
	for _, chunk := range chunks {
		if _, err := tx.Exec(ctx, `
			INSERT INTO document_chunks (id, document_id, chunk_index, chunk_text)
			VALUES ($1, $2, $3, $4)
		`, uuid.New(), id, chunk.Index, chunk.Text); err != nil {
			return fmt.Errorf("insert chunk %d: %w", chunk.Index, err)
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE documents
		SET content = $2, summary = $3, status = $4, updated_at = NOW()
		WHERE id = $1
	`, id, content, summary, StatusCompleted); err != nil {
		return fmt.Errorf("update document: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ingestion: %w", err)
	}
	return nil
}

func (d *Documents) ListChunks(ctx context.Context, documentID int64) ([]Chunk, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, document_id, chunk_index, chunk_text, created_at
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY chunk_index
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	chunks := make([]Chunk, 0)
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Text, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func scanDocument(row pgx.Row) (Document, error) {
	var doc Document
	err := row.Scan(
		&doc.ID, &doc.OwnerID, &doc.Title, &doc.Filename, &doc.FilePath, &doc.FileType,
		&doc.FileSize, &doc.Content, &doc.Summary, &doc.Status, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("scan document: %w", err)
	}
	return doc, nil
}
