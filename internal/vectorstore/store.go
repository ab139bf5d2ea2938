// Package vectorstore persists chunk embeddings and answers nearest-neighbor
// queries. Two backends are interchangeable behind Store: a Qdrant server
// that ranks similarity remotely, and a local store that holds every vector
// in memory and scans it directly.
package vectorstore

import (
	"context"
	"errors"
)

var (
	// ErrInvalidVector indicates a zero-norm or empty similarity operand.
	ErrInvalidVector = errors.New("invalid vector")

	// ErrDimensionMismatch indicates an embedding whose length does not
	// match the store's configured dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrWriteFailed wraps persistence-layer write errors.
	ErrWriteFailed = errors.New("vector store write failed")

	// ErrReadFailed wraps persistence-layer read errors.
	ErrReadFailed = errors.New("vector store read failed")

	// ErrUnreachable indicates the backing server could not be reached.
	ErrUnreachable = errors.New("vector store unreachable")
)

// Chunk is one embedded unit of a document, as handed to UpsertChunks.
// Index is the zero-based position within the document's chunk sequence.
type Chunk struct {
	Index     int
	Text      string
	Embedding []float32
}

// SearchResult is one ranked match from a similarity query.
type SearchResult struct {
	DocumentID   string
	DocumentName string
	Content      string
	Similarity   float64
	ChunkIndex   int
}

// Store persists chunks and ranks them against query vectors.
//
// UpsertChunks replaces every existing chunk for the document in one
// generation swap: after it returns successfully, a search never observes a
// mixture of the old and new chunk sets for that document.
type Store interface {
	UpsertChunks(ctx context.Context, docID, docName string, chunks []Chunk) error

	// SearchSimilar returns up to topK results ordered by descending cosine
	// similarity. Backends that rank remotely also apply threshold
	// server-side; the retriever applies it again regardless.
	SearchSimilar(ctx context.Context, vector []float32, topK int, threshold float64) ([]SearchResult, error)

	RemoveDocument(ctx context.Context, docID string) error
	Clear(ctx context.Context) error

	// DocumentCount is the number of distinct document ids present across
	// stored chunks; ChunkCount is the total number of stored chunks.
	DocumentCount(ctx context.Context) (int, error)
	ChunkCount(ctx context.Context) (int, error)

	Close() error
}
