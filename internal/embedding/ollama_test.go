package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeL2(t *testing.T) {
	out := normalizeL2([]float64{3, 4})
	require.Len(t, out, 2)

	var norm float64
	for _, v := range out {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)
	assert.InDelta(t, 0.6, float64(out[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(out[1]), 1e-6)
}

func TestNormalizeL2_ZeroVector(t *testing.T) {
	out := normalizeL2([]float64{0, 0, 0})
	assert.Equal(t, []float32{0, 0, 0}, out)
}

// newFakeOllama serves the embeddings endpoint, counting requests.
func newFakeOllama(t *testing.T, calls *atomic.Int64, vector []float64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.Equal(t, "/api/embeddings", r.URL.Path)
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: vector})
	}))
}

func TestOllamaProvider_EmbedNormalizes(t *testing.T) {
	var calls atomic.Int64
	srv := newFakeOllama(t, &calls, []float64{3, 4})
	defer srv.Close()

	p := NewOllamaProvider(OllamaConfig{BaseURL: srv.URL, Dimensions: 2})
	vector, err := p.Embed(context.Background(), "hello")
	require.NoError(t, err)
	require.Len(t, vector, 2)
	assert.InDelta(t, 0.6, float64(vector[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(vector[1]), 1e-6)
}

// TestOllamaProvider_InitOnce verifies concurrent first calls share one
// warm-up request rather than racing to load the model twice.
func TestOllamaProvider_InitOnce(t *testing.T) {
	var calls atomic.Int64
	srv := newFakeOllama(t, &calls, []float64{1, 0})
	defer srv.Close()

	p := NewOllamaProvider(OllamaConfig{BaseURL: srv.URL, Dimensions: 2})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Embed(context.Background(), "concurrent")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// One warm-up plus one inference per caller.
	assert.Equal(t, int64(9), calls.Load())
}

func TestOllamaProvider_Unreachable(t *testing.T) {
	p := NewOllamaProvider(OllamaConfig{BaseURL: "http://127.0.0.1:1"})
	_, err := p.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

// TestOllamaProvider_UnreachableAfterWarmUp verifies a runtime outage after
// the model has loaded still classifies as unavailable, not as a failed
// call.
func TestOllamaProvider_UnreachableAfterWarmUp(t *testing.T) {
	var calls atomic.Int64
	srv := newFakeOllama(t, &calls, []float64{1, 0})

	p := NewOllamaProvider(OllamaConfig{BaseURL: srv.URL, Dimensions: 2})
	_, err := p.Embed(context.Background(), "hello")
	require.NoError(t, err)

	srv.Close()

	_, err = p.Embed(context.Background(), "hello again")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NotErrorIs(t, err, ErrFailed)
}

// TestOllamaProvider_ServerErrorIsFailed verifies a reachable runtime that
// rejects a call classifies as a failed embedding.
func TestOllamaProvider_ServerErrorIsFailed(t *testing.T) {
	var after atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if after.Load() {
			http.Error(w, "model crashed", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float64{1, 0}})
	}))
	defer srv.Close()

	p := NewOllamaProvider(OllamaConfig{BaseURL: srv.URL, Dimensions: 2})
	_, err := p.Embed(context.Background(), "hello")
	require.NoError(t, err)

	after.Store(true)
	_, err = p.Embed(context.Background(), "hello again")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFailed)
}

func TestOllamaProvider_EmbedAllOrdering(t *testing.T) {
	var calls atomic.Int64
	srv := newFakeOllama(t, &calls, []float64{1, 0})
	defer srv.Close()

	p := NewOllamaProvider(OllamaConfig{BaseURL: srv.URL, Dimensions: 2})
	vectors, err := p.EmbedAll(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for _, v := range vectors {
		assert.Len(t, v, 2)
	}
}
