package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// DefaultCollection is the Qdrant collection holding all chunk points.
const DefaultCollection = "docchat_chunks"

// upsertBatchSize bounds the number of points per upsert request.
const upsertBatchSize = 100

// QdrantConfig holds connection and collection settings for the server
// backend.
type QdrantConfig struct {
	Host       string
	Port       int
	Collection string

	// Dimensions must match the active embedding provider.
	Dimensions int

	// Owner scopes every query and write to one owner when set.
	Owner string
}

// QdrantStore delegates similarity ranking to a Qdrant server. The query
// carries the vector, the threshold and the result cap; results come back
// pre-ranked and are not re-ordered here.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dimensions int
	owner      string
}

// NewQdrantStore connects to Qdrant, verifies health with retry, and
// ensures the chunk collection exists with the configured dimension.
func NewQdrantStore(ctx context.Context, cfg QdrantConfig) (*QdrantStore, error) {
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive", ErrDimensionMismatch)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: cfg.Host,
		Port: cfg.Port,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create client: %v", ErrUnreachable, err)
	}

	s := &QdrantStore{
		client:     client,
		collection: cfg.Collection,
		dimensions: cfg.Dimensions,
		owner:      cfg.Owner,
	}

	if err := s.healthCheckWithRetry(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	if err := s.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}

	return s, nil
}

// healthCheckWithRetry retries the startup health check with exponential
// backoff. This is connection establishment, not an operation retry;
// ingestion and retrieval calls are never retried.
func (s *QdrantStore) healthCheckWithRetry(ctx context.Context) error {
	exponentialBackoff := backoff.NewExponentialBackOff()
	exponentialBackoff.InitialInterval = 500 * time.Millisecond
	exponentialBackoff.MaxInterval = 10 * time.Second
	exponentialBackoff.MaxElapsedTime = 30 * time.Second

	operation := func() error {
		return s.Health(ctx)
	}

	return backoff.Retry(operation, backoff.WithContext(exponentialBackoff, ctx))
}

// Health performs a single health check against the server.
func (s *QdrantStore) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// ensureCollection creates the chunk collection if missing, with cosine
// distance and the provider's dimension, plus payload indexes for the
// filterable fields. Idempotent.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("%w: list collections: %v", ErrReadFailed, err)
	}
	for _, name := range collections {
		if name == s.collection {
			return nil
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimensions),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("%w: create collection: %v", ErrWriteFailed, err)
	}

	// Without these indexes, filtered queries degrade to full scans.
	for _, field := range []string{"document_id", "owner"} {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("%w: create index for %s: %v", ErrWriteFailed, field, err)
		}
	}
	return nil
}

// UpsertChunks replaces the document's chunk generation: the old points are
// deleted by filter, then the new set is upserted in batches. Qdrant applies
// the delete before the upserts are visible to queries, so a search never
// mixes generations.
func (s *QdrantStore) UpsertChunks(ctx context.Context, docID, docName string, chunks []Chunk) error {
	for i, chunk := range chunks {
		if len(chunk.Embedding) != s.dimensions {
			return fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(chunk.Embedding), s.dimensions)
		}
	}

	if err := s.deleteByDocument(ctx, docID); err != nil {
		return err
	}

	for start := 0; start < len(chunks); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(chunks))
		batch := chunks[start:end]

		points := make([]*qdrant.PointStruct, len(batch))
		for i, chunk := range batch {
			points[i] = &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(uuid.New().String()),
				Vectors: qdrant.NewVectors(chunk.Embedding...),
				Payload: qdrant.NewValueMap(map[string]any{
					"document_id":   docID,
					"document_name": docName,
					"content":       chunk.Text,
					"chunk_index":   chunk.Index,
					"owner":         s.owner,
				}),
			}
		}

		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Points:         points,
		})
		if err != nil {
			return fmt.Errorf("%w: upsert batch %d-%d: %v", ErrWriteFailed, start, end, err)
		}
	}

	return nil
}

// SearchSimilar sends the query vector, cap and threshold to the server and
// returns its ranking as-is.
func (s *QdrantStore) SearchSimilar(ctx context.Context, vector []float32, topK int, threshold float64) ([]SearchResult, error) {
	if len(vector) != s.dimensions {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), s.dimensions)
	}
	if topK <= 0 {
		return nil, nil
	}

	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         s.ownerFilter(),
		Limit:          qdrant.PtrOf(uint64(topK)),
		ScoreThreshold: qdrant.PtrOf(float32(threshold)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", ErrReadFailed, err)
	}

	matches := make([]SearchResult, 0, len(results))
	for _, result := range results {
		payload := result.Payload
		matches = append(matches, SearchResult{
			DocumentID:   payload["document_id"].GetStringValue(),
			DocumentName: payload["document_name"].GetStringValue(),
			Content:      payload["content"].GetStringValue(),
			Similarity:   float64(result.Score),
			ChunkIndex:   int(payload["chunk_index"].GetIntegerValue()),
		})
	}
	return matches, nil
}

// RemoveDocument deletes every chunk of the document.
func (s *QdrantStore) RemoveDocument(ctx context.Context, docID string) error {
	return s.deleteByDocument(ctx, docID)
}

// Clear removes every point in scope. With an owner configured, only that
// owner's points are deleted; other owners sharing the collection keep
// theirs. Unscoped, the whole collection is dropped and recreated.
func (s *QdrantStore) Clear(ctx context.Context) error {
	if s.owner != "" {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: s.collection,
			Points:         qdrant.NewPointsSelectorFilter(s.ownerFilter()),
		})
		if err != nil {
			return fmt.Errorf("%w: clear owner points: %v", ErrWriteFailed, err)
		}
		return nil
	}

	if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
		return fmt.Errorf("%w: delete collection: %v", ErrWriteFailed, err)
	}
	return s.ensureCollection(ctx)
}

// DocumentCount scrolls the collection and counts distinct document ids.
func (s *QdrantStore) DocumentCount(ctx context.Context) (int, error) {
	seen := make(map[string]struct{})
	var offset *qdrant.PointId
	batchSize := uint32(256)

	for {
		results, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.collection,
			Filter:         s.ownerFilter(),
			Limit:          qdrant.PtrOf(batchSize),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayloadInclude("document_id"),
		})
		if err != nil {
			return 0, fmt.Errorf("%w: scroll: %v", ErrReadFailed, err)
		}

		for _, result := range results {
			if id := result.Payload["document_id"].GetStringValue(); id != "" {
				seen[id] = struct{}{}
			}
		}

		if uint32(len(results)) < batchSize {
			break
		}
		offset = results[len(results)-1].Id
	}

	return len(seen), nil
}

// ChunkCount returns the exact number of stored chunk points.
func (s *QdrantStore) ChunkCount(ctx context.Context) (int, error) {
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Filter:         s.ownerFilter(),
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("%w: count: %v", ErrReadFailed, err)
	}
	return int(count), nil
}

// Close closes the client connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// deleteByDocument removes all points carrying the document id.
func (s *QdrantStore) deleteByDocument(ctx context.Context, docID string) error {
	must := []*qdrant.Condition{qdrant.NewMatch("document_id", docID)}
	if s.owner != "" {
		must = append(must, qdrant.NewMatch("owner", s.owner))
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points:         qdrant.NewPointsSelectorFilter(&qdrant.Filter{Must: must}),
	})
	if err != nil {
		return fmt.Errorf("%w: delete document %s: %v", ErrWriteFailed, docID, err)
	}
	return nil
}

// ownerFilter scopes queries to the configured owner, or nil when unscoped.
func (s *QdrantStore) ownerFilter() *qdrant.Filter {
	if s.owner == "" {
		return nil
	}
	return &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch("owner", s.owner)},
	}
}
