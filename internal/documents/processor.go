// Package documents drives an uploaded file through the processing
// pipeline: extract text, split into chunks, embed, store.
package documents

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/campushub/docsearch/internal/db"
	"github.com/campushub/docsearch/internal/logger"
	"github.com/campushub/docsearch/internal/pipeline"
	"github.com/campushub/docsearch/internal/search/language"
	"github.com/campushub/docsearch/internal/vector"
)

// Embedder generates an embedding for one chunk of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// stageRank orders the active stages for resume decisions.
var stageRank = map[pipeline.Status]int{
	pipeline.StatusUploading:  0,
	pipeline.StatusExtracting: 1,
	pipeline.StatusChunking:   2,
	pipeline.StatusEmbedding:  3,
}

// Processor turns uploaded files into searchable chunks, advancing the
// processing state machine as each stage runs.
type Processor struct {
	db           *db.DB
	embedder     Embedder
	validator    *vector.Validator
	detector     *language.Detector
	machine      *pipeline.Machine
	parser       *Parser
	chunkSize    int
	chunkOverlap int
}

// NewProcessor creates a document processor.
func NewProcessor(
	database *db.DB,
	embedder Embedder,
	validator *vector.Validator,
	detector *language.Detector,
	machine *pipeline.Machine,
	chunkSize, chunkOverlap int,
) *Processor {
	return &Processor{
		db:           database,
		embedder:     embedder,
		validator:    validator,
		detector:     detector,
		machine:      machine,
		parser:       NewParser(),
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// Process ingests one file. Already-processed files (same hash) are skipped
// and the existing document id returned. On a stage failure the job is
// marked failed with the error detail; the caller decides whether to retry.
func (p *Processor) Process(ctx context.Context, filePath string, folderID *uuid.UUID) (uuid.UUID, error) {
	hash, err := computeFileHash(filePath)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to compute hash: %w", err)
	}

	existing, err := p.db.GetDocumentByHash(ctx, hash)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to check existing document: %w", err)
	}
	if existing != nil {
		logger.Debug("Document %s already processed, skipping", filePath)
		return existing.ID, nil
	}

	fileType, err := detectFileType(filePath)
	if err != nil {
		return uuid.Nil, err
	}

	title := strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	doc, err := p.db.CreateDocument(ctx, title, filePath, hash, fileType, "", folderID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create document record: %w", err)
	}

	job := p.machine.NewJob(doc.ID)
	if err := p.runFrom(ctx, &job, filePath); err != nil {
		if _, failErr := p.machine.Fail(ctx, job, err); failErr != nil {
			logger.Warn("Failed to record failure for %s: %v", doc.ID, failErr)
		}
		return doc.ID, err
	}
	return doc.ID, nil
}

// Reprocess resumes a job sitting in an active stage, after a retry or a
// process restart. Work belonging to earlier stages is redone silently since
// intermediate outputs are not persisted, but only the current stage onward
// emits transitions. The returned job reflects the outcome, so the caller
// can feed it back into another Retry with its retry count intact.
func (p *Processor) Reprocess(ctx context.Context, job pipeline.Job, filePath string) (pipeline.Job, error) {
	if !job.Status.Active() {
		return job, fmt.Errorf("cannot reprocess job in status %q", job.Status)
	}
	if err := p.runFrom(ctx, &job, filePath); err != nil {
		failed, failErr := p.machine.Fail(ctx, job, err)
		if failErr != nil {
			logger.Warn("Failed to record failure for %s: %v", job.DocumentID, failErr)
			return job, err
		}
		return failed, err
	}
	return job, nil
}

// runFrom executes the pipeline from the job's current stage to completion,
// keeping the job pointer current so a failure is recorded against the stage
// that raised it.
func (p *Processor) runFrom(ctx context.Context, job *pipeline.Job, filePath string) error {
	var err error
	docID := job.DocumentID
	from := stageRank[job.Status]

	if from <= stageRank[pipeline.StatusUploading] {
		// The file is already on local disk, so uploading completes
		// immediately.
		if *job, err = p.machine.Advance(ctx, *job, pipeline.StatusUploading, 100); err != nil {
			return err
		}
		if *job, err = p.machine.Advance(ctx, *job, pipeline.StatusExtracting, 0); err != nil {
			return err
		}
	}

	var progress func(pct int)
	if from <= stageRank[pipeline.StatusExtracting] {
		progress = func(pct int) {
			if next, advErr := p.machine.Advance(ctx, *job, pipeline.StatusExtracting, pct); advErr == nil {
				*job = next
			}
		}
	}
	parsed, err := p.parser.Parse(filePath, progress)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}

	lang, conf := p.detector.Detect(parsed.Text())
	if lang != "" {
		logger.Debug("Detected document language %q (confidence %.2f)", lang, conf)
		if err := p.db.UpdateDocumentLanguage(ctx, docID, lang); err != nil {
			logger.Warn("Failed to record document language: %v", err)
		}
	}

	if from <= stageRank[pipeline.StatusChunking] {
		if *job, err = p.machine.Advance(ctx, *job, pipeline.StatusChunking, 0); err != nil {
			return err
		}
	}
	chunks := splitPages(parsed.Pages, p.chunkSize, p.chunkOverlap)
	if from <= stageRank[pipeline.StatusChunking] {
		if *job, err = p.machine.Advance(ctx, *job, pipeline.StatusChunking, 100); err != nil {
			return err
		}
	}

	if *job, err = p.machine.Advance(ctx, *job, pipeline.StatusEmbedding, 0); err != nil {
		return err
	}
	records := make([]*db.Chunk, 0, len(chunks))
	for i, chunk := range chunks {
		embedding, err := p.embedder.Embed(ctx, chunk.Text)
		if err != nil {
			return fmt.Errorf("embed chunk %d: %w", i, err)
		}
		// Reject invalid embeddings outright; never truncate or pad.
		if err := p.validator.Validate(embedding); err != nil {
			return fmt.Errorf("embed chunk %d: %w", i, err)
		}
		vec := pgvector.NewVector(embedding)
		records = append(records, &db.Chunk{
			ID:         uuid.New(),
			DocumentID: docID,
			ChunkIndex: i,
			Content:    chunk.Text,
			Language:   lang,
			PageNumber: chunk.PageNumber,
			Embedding:  &vec,
		})
		pct := (i + 1) * 100 / len(chunks)
		if next, advErr := p.machine.Advance(ctx, *job, pipeline.StatusEmbedding, pct); advErr == nil {
			*job = next
		}
	}
	// A retried embedding stage may have left partial chunks behind.
	if err := p.db.DeleteChunksForDocument(ctx, docID); err != nil {
		return fmt.Errorf("clear stale chunks: %w", err)
	}
	if len(records) > 0 {
		if err := p.db.InsertChunksBatch(ctx, records); err != nil {
			return fmt.Errorf("store chunks: %w", err)
		}
	}

	if *job, err = p.machine.Advance(ctx, *job, pipeline.StatusCompleted, 100); err != nil {
		return err
	}
	return nil
}

func detectFileType(filePath string) (string, error) {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".pdf":
		return "pdf", nil
	case ".epub":
		return "epub", nil
	default:
		return "", fmt.Errorf("unsupported file type: %s", filepath.Ext(filePath))
	}
}

// computeFileHash computes the SHA256 hash of a file.
func computeFileHash(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}
