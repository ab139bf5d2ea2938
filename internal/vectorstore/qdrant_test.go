//go:build integration

package vectorstore

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupQdrant creates a store against a local Qdrant with a throwaway
// collection. Skips when the server is not running.
func setupQdrant(t *testing.T) *QdrantStore {
	t.Helper()
	store, err := NewQdrantStore(context.Background(), QdrantConfig{
		Host:       "localhost",
		Port:       6334,
		Collection: "docchat_test_" + uuid.New().String()[:8],
		Dimensions: 4,
	})
	if err != nil {
		t.Skipf("Qdrant not available: %v", err)
	}
	t.Cleanup(func() {
		_ = store.client.DeleteCollection(context.Background(), store.collection)
		store.Close()
	})
	return store
}

func TestQdrantStore_UpsertSearchRoundTrip(t *testing.T) {
	store := setupQdrant(t)
	ctx := context.Background()

	target := []float32{0.1, 0.9, 0.2, 0.4}
	err := store.UpsertChunks(ctx, "doc-1", "manual.md", []Chunk{
		{Index: 0, Text: "first section", Embedding: target},
		{Index: 1, Text: "second section", Embedding: []float32{-0.5, 0.1, 0.8, 0.2}},
	})
	require.NoError(t, err)

	results, err := store.SearchSimilar(ctx, target, 5, 0.0)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "first section", results[0].Content)
	assert.Equal(t, "manual.md", results[0].DocumentName)
	assert.Equal(t, 0, results[0].ChunkIndex)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-4)
}

func TestQdrantStore_ReplaceGeneration(t *testing.T) {
	store := setupQdrant(t)
	ctx := context.Background()

	first := []Chunk{
		{Index: 0, Text: "old", Embedding: []float32{1, 0, 0, 0}},
		{Index: 1, Text: "old", Embedding: []float32{0, 1, 0, 0}},
		{Index: 2, Text: "old", Embedding: []float32{0, 0, 1, 0}},
	}
	require.NoError(t, store.UpsertChunks(ctx, "doc-1", "doc.txt", first))

	second := []Chunk{
		{Index: 0, Text: "new", Embedding: []float32{0, 0, 0, 1}},
	}
	require.NoError(t, store.UpsertChunks(ctx, "doc-1", "doc.txt", second))

	count, err := store.ChunkCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	docs, err := store.DocumentCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, docs)
}

// TestQdrantStore_ClearIsOwnerScoped verifies clearing one owner's index
// leaves another owner's points in the shared collection untouched.
func TestQdrantStore_ClearIsOwnerScoped(t *testing.T) {
	base := setupQdrant(t)
	ctx := context.Background()

	openStore := func(owner string) *QdrantStore {
		store, err := NewQdrantStore(ctx, QdrantConfig{
			Host:       "localhost",
			Port:       6334,
			Collection: base.collection,
			Dimensions: 4,
			Owner:      owner,
		})
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		return store
	}

	alice := openStore("alice")
	bob := openStore("bob")

	vector := []float32{1, 0, 0, 0}
	require.NoError(t, alice.UpsertChunks(ctx, "doc-a", "a.txt", []Chunk{{Index: 0, Text: "a", Embedding: vector}}))
	require.NoError(t, bob.UpsertChunks(ctx, "doc-b", "b.txt", []Chunk{{Index: 0, Text: "b", Embedding: vector}}))

	require.NoError(t, alice.Clear(ctx))

	aliceCount, err := alice.ChunkCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, aliceCount)

	bobCount, err := bob.ChunkCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, bobCount)
}

func TestQdrantStore_DimensionMismatch(t *testing.T) {
	store := setupQdrant(t)
	ctx := context.Background()

	err := store.UpsertChunks(ctx, "doc-1", "doc.txt", []Chunk{
		{Index: 0, Text: "bad", Embedding: []float32{1, 0}},
	})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = store.SearchSimilar(ctx, []float32{1, 0}, 5, 0)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
