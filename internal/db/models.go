package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// Document represents an uploaded document and its processing state.
type Document struct {
	ID        uuid.UUID
	Title     string
	FilePath  string
	FileHash  string
	FileType  string
	Language  string
	FolderID  *uuid.UUID
	Status    string
	Progress  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Chunk represents a contiguous span of extracted text with its embedding.
// Chunks are created during the chunking stage and never mutated; they are
// deleted only when their owning document is deleted (cascade).
type Chunk struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	ChunkIndex int
	Content    string
	Language   string
	PageNumber int
	Embedding  *pgvector.Vector
	CreatedAt  time.Time
}
