// Package ingest orchestrates the document pipeline: extraction, chunking,
// embedding and vector indexing, with lifecycle tracking throughout.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bull/docchat/internal/chunker"
	"github.com/bull/docchat/internal/docstore"
	"github.com/bull/docchat/internal/embedding"
	"github.com/bull/docchat/internal/extract"
	"github.com/bull/docchat/internal/lifecycle"
	"github.com/bull/docchat/internal/vectorstore"
)

// SourceDocument is one raw document produced by a Source.
type SourceDocument struct {
	Name string
	Raw  []byte
}

// Source supplies documents for bulk ingestion, typically a repository or
// directory listing.
type Source interface {
	List(ctx context.Context) ([]string, error)
	Fetch(ctx context.Context, path string) (*SourceDocument, error)
}

// Result contains statistics about a bulk ingestion run.
type Result struct {
	TotalDocs      int
	TotalChunks    int
	SuccessfulDocs int
	FailedDocs     []FailedDoc
	Duration       time.Duration
}

// FailedDoc records one document that could not be ingested.
type FailedDoc struct {
	ID     string
	Name   string
	Reason string
}

// Config holds the chunking parameters for the pipeline.
type Config struct {
	ChunkSize    int
	ChunkOverlap int
}

// Pipeline runs documents through extraction, chunking, embedding and
// indexing. A document is indexed all-or-nothing: if any chunk fails to
// embed, no chunks for that document reach the vector store and the
// document ends in the error status.
type Pipeline struct {
	docs     docstore.Store
	tracker  *lifecycle.Tracker
	provider embedding.Provider
	vectors  vectorstore.Store
	cfg      Config
	logger   *slog.Logger
}

// NewPipeline creates an ingestion pipeline over the given components.
func NewPipeline(
	docs docstore.Store,
	tracker *lifecycle.Tracker,
	provider embedding.Provider,
	vectors vectorstore.Store,
	cfg Config,
	logger *slog.Logger,
) *Pipeline {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = chunker.DefaultSize
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = chunker.DefaultOverlap
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		docs:     docs,
		tracker:  tracker,
		provider: provider,
		vectors:  vectors,
		cfg:      cfg,
		logger:   logger,
	}
}

// Add ingests one raw document end to end: extracts its text, creates the
// stored record and runs the indexing stages. It returns the created record
// and the number of chunks committed; consult the store for the terminal
// status after a failure.
func (p *Pipeline) Add(ctx context.Context, name string, raw []byte, owner string) (*docstore.Document, int, error) {
	mediaType := extract.MediaType(name)
	text, err := extract.Text(mediaType, raw)
	if err != nil {
		return nil, 0, fmt.Errorf("extract %s: %w", name, err)
	}

	now := time.Now()
	doc := &docstore.Document{
		ID:        uuid.New().String(),
		Name:      name,
		MediaType: mediaType,
		SizeBytes: int64(len(raw)),
		Owner:     owner,
		Content:   text,
		Status:    docstore.StatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := p.docs.Create(ctx, doc); err != nil {
		return nil, 0, fmt.Errorf("create document record: %w", err)
	}

	chunks, err := p.Ingest(ctx, doc.ID, doc.Name, text)
	if err != nil {
		return doc, 0, err
	}
	return doc, chunks, nil
}

// Ingest runs the indexing stages for an already-stored document and
// returns the number of chunks committed. Any failure marks the document
// as errored and leaves zero chunks for it in the vector store.
func (p *Pipeline) Ingest(ctx context.Context, docID, docName, text string) (int, error) {
	if err := p.tracker.Begin(ctx, docID); err != nil {
		return 0, fmt.Errorf("begin ingestion: %w", err)
	}

	chunks, err := p.index(ctx, docID, docName, text)
	if err != nil {
		p.tracker.Fail(ctx, docID, err)
		return 0, fmt.Errorf("ingest %s: %w", docName, err)
	}

	p.logger.Info("indexed document", "doc", docID, "name", docName, "chunks", chunks)
	return chunks, nil
}

// index performs chunking, embedding and the vector store commit. Nothing
// is written to the vector store until every chunk has an embedding.
func (p *Pipeline) index(ctx context.Context, docID, docName, text string) (int, error) {
	if err := p.tracker.Advance(ctx, docID, lifecycle.StageChunking); err != nil {
		return 0, err
	}
	pieces, err := chunker.Split(text, p.cfg.ChunkSize, p.cfg.ChunkOverlap)
	if err != nil {
		return 0, fmt.Errorf("chunk: %w", err)
	}

	// Fragments too short to carry signal are skipped, with their
	// positional index preserved for the survivors.
	kept := make([]vectorstore.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		if len(piece) < chunker.MinChunkLength && len(pieces) > 1 {
			continue
		}
		kept = append(kept, vectorstore.Chunk{Index: i, Text: piece})
	}
	p.logger.Debug("chunked document", "doc", docID, "chunks", len(kept), "skipped", len(pieces)-len(kept))

	if err := p.tracker.Advance(ctx, docID, lifecycle.StageEmbedding); err != nil {
		return 0, err
	}
	for i := range kept {
		vector, err := p.provider.Embed(ctx, kept[i].Text)
		if err != nil {
			return 0, fmt.Errorf("embed chunk %d: %w", kept[i].Index, err)
		}
		kept[i].Embedding = vector
	}

	if err := p.vectors.UpsertChunks(ctx, docID, docName, kept); err != nil {
		return 0, fmt.Errorf("store chunks: %w", err)
	}

	if err := p.tracker.Advance(ctx, docID, lifecycle.StageIndexed); err != nil {
		return 0, err
	}
	return len(kept), nil
}

// IngestAll fetches every document a source lists and ingests each one.
// Per-document failures are recorded in the result and do not abort the
// run.
func (p *Pipeline) IngestAll(ctx context.Context, src Source, owner string) (*Result, error) {
	start := time.Now()
	result := &Result{}

	paths, err := src.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list source documents: %w", err)
	}
	result.TotalDocs = len(paths)
	p.logger.Info("starting bulk ingestion", "count", len(paths))

	for _, path := range paths {
		fetched, err := src.Fetch(ctx, path)
		if err != nil {
			p.logger.Warn("failed to fetch document", "path", path, "error", err)
			result.FailedDocs = append(result.FailedDocs, FailedDoc{Name: path, Reason: err.Error()})
			continue
		}

		doc, chunks, err := p.Add(ctx, fetched.Name, fetched.Raw, owner)
		if err != nil {
			p.logger.Warn("failed to ingest document", "path", path, "error", err)
			failed := FailedDoc{Name: path, Reason: err.Error()}
			if doc != nil {
				failed.ID = doc.ID
			}
			result.FailedDocs = append(result.FailedDocs, failed)
			continue
		}
		result.SuccessfulDocs++
		result.TotalChunks += chunks
	}

	result.Duration = time.Since(start)
	p.logger.Info("bulk ingestion complete",
		"successful", result.SuccessfulDocs,
		"failed", len(result.FailedDocs),
		"duration", result.Duration,
	)
	return result, nil
}

// Remove deletes a document record and all of its chunks.
func (p *Pipeline) Remove(ctx context.Context, docID string) error {
	if err := p.vectors.RemoveDocument(ctx, docID); err != nil {
		return fmt.Errorf("remove chunks: %w", err)
	}
	if err := p.docs.Delete(ctx, docID); err != nil {
		return fmt.Errorf("remove document record: %w", err)
	}
	return nil
}
