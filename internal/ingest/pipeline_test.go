package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/docchat/internal/docstore"
	"github.com/bull/docchat/internal/embedding"
	"github.com/bull/docchat/internal/lifecycle"
	"github.com/bull/docchat/internal/vectorstore"
)

// countingProvider embeds everything identically and fails on a chosen call.
type countingProvider struct {
	calls  int
	failOn int // 1-based call number to fail on; 0 disables
}

func (p *countingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.calls++
	if p.failOn > 0 && p.calls == p.failOn {
		return nil, fmt.Errorf("%w: simulated outage", embedding.ErrUnavailable)
	}
	return []float32{1, 0, 0}, nil
}

func (p *countingProvider) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v, err := p.Embed(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (p *countingProvider) Dimensions() int   { return 3 }
func (p *countingProvider) ModelName() string { return "counting" }

func newTestPipeline(t *testing.T, provider *countingProvider, cfg Config) (*Pipeline, docstore.Store, vectorstore.Store) {
	t.Helper()

	docs := docstore.NewMemoryStore()
	vectors, err := vectorstore.NewLocalStore("")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tracker := lifecycle.NewTracker(docs, logger)
	return NewPipeline(docs, tracker, provider, vectors, cfg, logger), docs, vectors
}

// threeChunkText produces text that splits into exactly three windows at
// size 100 / overlap 20, each long enough to survive the minimum-length
// filter.
func threeChunkText() string {
	return strings.Repeat("x", 250)
}

func TestAdd_IndexesDocument(t *testing.T) {
	provider := &countingProvider{}
	p, docs, vectors := newTestPipeline(t, provider, Config{ChunkSize: 100, ChunkOverlap: 20})

	doc, chunks, err := p.Add(context.Background(), "notes.txt", []byte(threeChunkText()), "alice")
	require.NoError(t, err)
	assert.Equal(t, 3, chunks)
	assert.Equal(t, "notes.txt", doc.Name)
	assert.Equal(t, "alice", doc.Owner)

	stored, err := docs.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, docstore.StatusIndexed, stored.Status)
	assert.Empty(t, stored.ErrorDetail)

	count, err := vectors.ChunkCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

// TestIngest_EmbedFailureCommitsNothing verifies all-or-nothing indexing: a
// failure on the second of three chunks leaves the document errored with
// zero chunks stored.
func TestIngest_EmbedFailureCommitsNothing(t *testing.T) {
	provider := &countingProvider{failOn: 2}
	p, docs, vectors := newTestPipeline(t, provider, Config{ChunkSize: 100, ChunkOverlap: 20})

	doc, _, err := p.Add(context.Background(), "notes.txt", []byte(threeChunkText()), "alice")
	require.Error(t, err)
	assert.ErrorIs(t, err, embedding.ErrUnavailable)

	stored, err := docs.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, docstore.StatusError, stored.Status)
	assert.Contains(t, stored.ErrorDetail, "chunk")

	count, err := vectors.ChunkCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestAdd_SkipsShortFragments(t *testing.T) {
	provider := &countingProvider{}
	p, _, vectors := newTestPipeline(t, provider, Config{ChunkSize: 100, ChunkOverlap: 20})

	// 120 characters split into a full window and a 40-character tail; the
	// tail is below the minimum length and is dropped.
	_, chunks, err := p.Add(context.Background(), "short.txt", []byte(strings.Repeat("y", 120)), "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, chunks)

	count, err := vectors.ChunkCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestAdd_WholeTextBelowMinimumStillIndexed(t *testing.T) {
	provider := &countingProvider{}
	p, docs, _ := newTestPipeline(t, provider, Config{ChunkSize: 100, ChunkOverlap: 20})

	doc, chunks, err := p.Add(context.Background(), "tiny.txt", []byte("just a note"), "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, chunks)

	stored, err := docs.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, docstore.StatusIndexed, stored.Status)
}

// fakeSource serves documents from a map, optionally failing fetches.
type fakeSource struct {
	docs     map[string][]byte
	order    []string
	fetchErr map[string]error
}

func (f *fakeSource) List(ctx context.Context) ([]string, error) {
	return f.order, nil
}

func (f *fakeSource) Fetch(ctx context.Context, path string) (*SourceDocument, error) {
	if err := f.fetchErr[path]; err != nil {
		return nil, err
	}
	raw, ok := f.docs[path]
	if !ok {
		return nil, errors.New("not found")
	}
	return &SourceDocument{Name: path, Raw: raw}, nil
}

// TestIngestAll_PerDocumentIsolation verifies one document's failure does
// not abort the run or taint the others.
func TestIngestAll_PerDocumentIsolation(t *testing.T) {
	provider := &countingProvider{failOn: 2}
	p, docs, vectors := newTestPipeline(t, provider, Config{ChunkSize: 100, ChunkOverlap: 20})

	body := []byte(strings.Repeat("z", 80))
	src := &fakeSource{
		docs:  map[string][]byte{"a.txt": body, "b.txt": body, "c.txt": body},
		order: []string{"a.txt", "b.txt", "c.txt"},
	}

	result, err := p.IngestAll(context.Background(), src, "alice")
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalDocs)
	assert.Equal(t, 2, result.SuccessfulDocs)
	assert.Equal(t, 2, result.TotalChunks)
	require.Len(t, result.FailedDocs, 1)
	assert.Equal(t, "b.txt", result.FailedDocs[0].Name)

	count, err := vectors.ChunkCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	all, err := docs.List(context.Background())
	require.NoError(t, err)
	statuses := map[docstore.Status]int{}
	for _, d := range all {
		statuses[d.Status]++
	}
	assert.Equal(t, 2, statuses[docstore.StatusIndexed])
	assert.Equal(t, 1, statuses[docstore.StatusError])
}

func TestIngestAll_FetchFailureRecorded(t *testing.T) {
	provider := &countingProvider{}
	p, _, _ := newTestPipeline(t, provider, Config{ChunkSize: 100, ChunkOverlap: 20})

	src := &fakeSource{
		docs:     map[string][]byte{"ok.txt": []byte(strings.Repeat("w", 80))},
		order:    []string{"ok.txt", "gone.txt"},
		fetchErr: map[string]error{"gone.txt": errors.New("404")},
	}

	result, err := p.IngestAll(context.Background(), src, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessfulDocs)
	require.Len(t, result.FailedDocs, 1)
	assert.Equal(t, "gone.txt", result.FailedDocs[0].Name)
}

func TestRemove_DeletesRecordAndChunks(t *testing.T) {
	provider := &countingProvider{}
	p, docs, vectors := newTestPipeline(t, provider, Config{ChunkSize: 100, ChunkOverlap: 20})

	doc, _, err := p.Add(context.Background(), "notes.txt", []byte(threeChunkText()), "alice")
	require.NoError(t, err)

	require.NoError(t, p.Remove(context.Background(), doc.ID))

	_, err = docs.Get(context.Background(), doc.ID)
	assert.ErrorIs(t, err, docstore.ErrNotFound)

	count, err := vectors.ChunkCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}
