package db

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/campushub/docsearch/internal/pipeline"
	"github.com/campushub/docsearch/internal/search"
)

// GetDocumentByHash retrieves a document by its file hash.
func (db *DB) GetDocumentByHash(ctx context.Context, hash string) (*Document, error) {
	var doc Document
	err := db.pool.QueryRow(ctx,
		`SELECT id, title, file_path, file_hash, file_type, language, folder_id, status, progress, created_at, updated_at
		 FROM documents WHERE file_hash = $1`,
		hash,
	).Scan(
		&doc.ID, &doc.Title, &doc.FilePath, &doc.FileHash, &doc.FileType,
		&doc.Language, &doc.FolderID, &doc.Status, &doc.Progress,
		&doc.CreatedAt, &doc.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document by hash: %w", err)
	}
	return &doc, nil
}

// CreateDocument creates a new document record in the uploading state.
func (db *DB) CreateDocument(ctx context.Context, title, filePath, fileHash, fileType, language string, folderID *uuid.UUID) (*Document, error) {
	var doc Document
	err := db.pool.QueryRow(ctx,
		`INSERT INTO documents (title, file_path, file_hash, file_type, language, folder_id, status, progress)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 0)
		 RETURNING id, title, file_path, file_hash, file_type, language, folder_id, status, progress, created_at, updated_at`,
		title, filePath, fileHash, fileType, language, folderID, string(pipeline.StatusUploading),
	).Scan(
		&doc.ID, &doc.Title, &doc.FilePath, &doc.FileHash, &doc.FileType,
		&doc.Language, &doc.FolderID, &doc.Status, &doc.Progress,
		&doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}
	return &doc, nil
}

// UpdateDocumentLanguage records the language detected during extraction.
func (db *DB) UpdateDocumentLanguage(ctx context.Context, docID uuid.UUID, language string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE documents SET language = $2, updated_at = NOW() WHERE id = $1`,
		docID, language,
	)
	return err
}

// InsertChunksBatch inserts multiple chunks in one round trip.
func (db *DB) InsertChunksBatch(ctx context.Context, chunks []*Chunk) error {
	batch := &pgx.Batch{}
	for _, chunk := range chunks {
		batch.Queue(
			`INSERT INTO chunks (id, document_id, chunk_index, content, language, page_number, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			chunk.ID, chunk.DocumentID, chunk.ChunkIndex, chunk.Content,
			chunk.Language, chunk.PageNumber, chunk.Embedding,
		)
	}
	br := db.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < len(chunks); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
	}
	return nil
}

// GetAllDocuments retrieves all documents, newest first.
func (db *DB) GetAllDocuments(ctx context.Context) ([]*Document, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, title, file_path, file_hash, file_type, language, folder_id, status, progress, created_at, updated_at
		 FROM documents ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(
			&doc.ID, &doc.Title, &doc.FilePath, &doc.FileHash, &doc.FileType,
			&doc.Language, &doc.FolderID, &doc.Status, &doc.Progress,
			&doc.CreatedAt, &doc.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

// DeleteChunksForDocument removes all chunks of one document, for example
// before a retried embedding stage re-inserts them.
func (db *DB) DeleteChunksForDocument(ctx context.Context, docID uuid.UUID) error {
	_, err := db.pool.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, docID)
	return err
}

// DeleteDocument deletes a document; its chunks go with it (cascade).
func (db *DB) DeleteDocument(ctx context.Context, docID uuid.UUID) error {
	_, err := db.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, docID)
	return err
}

// FetchCandidates returns the chunks within a search scope. It implements
// search.ChunkStore; the scope filters act as a coarse prune before the
// engine scores anything.
func (db *DB) FetchCandidates(ctx context.Context, scope search.Scope) ([]search.Candidate, error) {
	query := `SELECT c.id, c.document_id, d.title, c.chunk_index, c.content, c.language, c.page_number, c.embedding, c.created_at
		 FROM chunks c
		 JOIN documents d ON d.id = c.document_id
		 WHERE c.embedding IS NOT NULL`
	where, args := scopeFilters(scope, 1)
	query += where + ` ORDER BY c.created_at, c.chunk_index`

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch candidates: %w", err)
	}
	defer rows.Close()

	var candidates []search.Candidate
	for rows.Next() {
		var (
			c   search.Candidate
			emb pgvector.Vector
		)
		if err := rows.Scan(
			&c.ChunkID, &c.DocumentID, &c.DocumentTitle, &c.ChunkIndex,
			&c.Content, &c.Language, &c.PageNumber, &emb, &c.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		c.Embedding = emb.Slice()
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// KeywordSearch ranks chunks by full-text match. It implements
// search.KeywordSearcher. ts_rank_cd with normalisation 32 keeps scores in
// the 0-1 range the hybrid combiner expects.
func (db *DB) KeywordSearch(ctx context.Context, queryText string, scope search.Scope, limit int) ([]search.KeywordHit, error) {
	query := `SELECT c.id, ts_rank_cd(to_tsvector('simple', c.content), websearch_to_tsquery('simple', $1), 32) AS score
		 FROM chunks c
		 JOIN documents d ON d.id = c.document_id
		 WHERE to_tsvector('simple', c.content) @@ websearch_to_tsquery('simple', $1)`
	where, args := scopeFilters(scope, 2)
	args = append([]any{queryText}, args...)
	query += where + ` ORDER BY score DESC LIMIT ` + strconv.Itoa(limit)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run keyword search: %w", err)
	}
	defer rows.Close()

	var hits []search.KeywordHit
	for rows.Next() {
		var hit search.KeywordHit
		if err := rows.Scan(&hit.ChunkID, &hit.Score); err != nil {
			return nil, fmt.Errorf("failed to scan keyword hit: %w", err)
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// LoadStatus implements pipeline.StatusStore.
func (db *DB) LoadStatus(ctx context.Context, documentID uuid.UUID) (pipeline.Status, int, error) {
	var (
		status   string
		progress int
	)
	err := db.pool.QueryRow(ctx,
		`SELECT status, progress FROM documents WHERE id = $1`,
		documentID,
	).Scan(&status, &progress)
	if err != nil {
		return "", 0, fmt.Errorf("failed to load status: %w", err)
	}
	parsed, err := pipeline.ParseStatus(status)
	if err != nil {
		return "", 0, err
	}
	return parsed, progress, nil
}

// SaveStatus implements pipeline.StatusStore.
func (db *DB) SaveStatus(ctx context.Context, documentID uuid.UUID, status pipeline.Status, progress int) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE documents SET status = $2, progress = $3, updated_at = NOW() WHERE id = $1`,
		documentID, string(status), progress,
	)
	if err != nil {
		return fmt.Errorf("failed to save status: %w", err)
	}
	return nil
}

// scopeFilters builds the WHERE tail for a search scope, numbering
// placeholders from argOffset.
func scopeFilters(scope search.Scope, argOffset int) (string, []any) {
	var (
		b    strings.Builder
		args []any
	)
	if scope.FolderID != nil {
		b.WriteString(fmt.Sprintf(" AND d.folder_id = $%d", argOffset+len(args)))
		args = append(args, *scope.FolderID)
	}
	if scope.DocumentID != nil {
		b.WriteString(fmt.Sprintf(" AND c.document_id = $%d", argOffset+len(args)))
		args = append(args, *scope.DocumentID)
	}
	if scope.Language != "" {
		b.WriteString(fmt.Sprintf(" AND c.language = $%d", argOffset+len(args)))
		args = append(args, scope.Language)
	}
	return b.String(), args
}
