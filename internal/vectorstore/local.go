package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// chunkRecord is the durable form of one stored chunk. The snapshot file is
// a flat sequence of these, restored verbatim on start.
type chunkRecord struct {
	ID           string    `json:"id"`
	DocumentID   string    `json:"documentId"`
	DocumentName string    `json:"documentName"`
	Content      string    `json:"content"`
	Embedding    []float32 `json:"embedding"`
	ChunkIndex   int       `json:"chunkIndex"`
}

// LocalStore holds the entire corpus in memory and computes cosine ranking
// with a full linear scan. No index structure; the target corpus is small
// and the scan is the documented trade-off.
//
// Every mutation rewrites the snapshot file so a restart does not lose
// indexed material. An empty path disables persistence.
type LocalStore struct {
	mu      sync.RWMutex
	path    string
	records []chunkRecord
}

// NewLocalStore opens a local store, restoring any existing snapshot at
// path. A missing snapshot is a fresh, empty store.
func NewLocalStore(path string) (*LocalStore, error) {
	s := &LocalStore{path: path}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read snapshot %s: %v", ErrReadFailed, path, err)
	}

	if err := json.Unmarshal(data, &s.records); err != nil {
		return nil, fmt.Errorf("%w: decode snapshot %s: %v", ErrReadFailed, path, err)
	}
	return s, nil
}

// UpsertChunks replaces the document's chunk generation wholesale: existing
// records for docID are discarded before the new set is appended, under one
// lock, so a concurrent search never sees a mixed generation.
func (s *LocalStore) UpsertChunks(ctx context.Context, docID, docName string, chunks []Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	for _, r := range s.records {
		if r.DocumentID != docID {
			kept = append(kept, r)
		}
	}
	s.records = kept

	for _, chunk := range chunks {
		s.records = append(s.records, chunkRecord{
			ID:           fmt.Sprintf("%s_%d", docID, chunk.Index),
			DocumentID:   docID,
			DocumentName: docName,
			Content:      chunk.Text,
			Embedding:    chunk.Embedding,
			ChunkIndex:   chunk.Index,
		})
	}

	return s.flushLocked()
}

// SearchSimilar scans every stored chunk, scores it against the query
// vector, and returns the topK best in descending order. Ties keep
// insertion order. The threshold is left to the retriever; the local
// backend ranks only.
func (s *LocalStore) SearchSimilar(ctx context.Context, vector []float32, topK int, threshold float64) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.records) == 0 {
		return nil, nil
	}
	if topK <= 0 {
		return nil, nil
	}

	results := make([]SearchResult, 0, len(s.records))
	for _, r := range s.records {
		score, err := Cosine(vector, r.Embedding)
		if err != nil {
			return nil, err
		}
		results = append(results, SearchResult{
			DocumentID:   r.DocumentID,
			DocumentName: r.DocumentName,
			Content:      r.Content,
			Similarity:   score,
			ChunkIndex:   r.ChunkIndex,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// RemoveDocument discards every chunk of the document.
func (s *LocalStore) RemoveDocument(ctx context.Context, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	for _, r := range s.records {
		if r.DocumentID != docID {
			kept = append(kept, r)
		}
	}
	s.records = kept
	return s.flushLocked()
}

// Clear discards the whole corpus.
func (s *LocalStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	return s.flushLocked()
}

// DocumentCount returns the number of distinct document ids stored.
func (s *LocalStore) DocumentCount(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, r := range s.records {
		seen[r.DocumentID] = struct{}{}
	}
	return len(seen), nil
}

// ChunkCount returns the total number of stored chunks.
func (s *LocalStore) ChunkCount(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// Close is a no-op; the snapshot is already durable after every mutation.
func (s *LocalStore) Close() error { return nil }

// flushLocked writes the whole corpus snapshot. Callers hold the write lock.
// The write goes through a temp file and rename so a crash mid-write leaves
// the previous snapshot intact.
func (s *LocalStore) flushLocked() error {
	if s.path == "" {
		return nil
	}

	data, err := json.Marshal(s.records)
	if err != nil {
		return fmt.Errorf("%w: encode snapshot: %v", ErrWriteFailed, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrWriteFailed, dir, err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrWriteFailed, tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("%w: replace %s: %v", ErrWriteFailed, s.path, err)
	}
	return nil
}
