package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sync"
	"time"
)

const (
	// DefaultOllamaBaseURL is the local Ollama runtime address.
	DefaultOllamaBaseURL = "http://localhost:11434"

	// DefaultOllamaModel is the local embedding model used unless configured.
	DefaultOllamaModel = "nomic-embed-text"

	// DefaultOllamaDimensions is the vector length of nomic-embed-text.
	DefaultOllamaDimensions = 768

	defaultOllamaTimeout = 60 * time.Second
)

// OllamaProvider runs a locally-executed embedding model through an Ollama
// runtime. The model is loaded lazily on first use; concurrent first calls
// share a single initialization. Returned vectors are L2-normalized so that
// cosine similarity between them is meaningful.
type OllamaProvider struct {
	client     *http.Client
	baseURL    string
	model      string
	dimensions int

	initOnce sync.Once
	initErr  error
}

// OllamaConfig holds configuration for the local provider. Zero values fall
// back to the defaults above.
type OllamaConfig struct {
	BaseURL    string
	Model      string
	Dimensions int
	Timeout    time.Duration
}

// NewOllamaProvider creates the local-model provider. No model is loaded
// until the first embedding call.
func NewOllamaProvider(cfg OllamaConfig) *OllamaProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOllamaBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultOllamaDimensions
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultOllamaTimeout
	}

	return &OllamaProvider{
		client:     &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// ensureLoaded warms the model into the runtime exactly once. Callers that
// race on the first embedding call all wait on the same load.
func (p *OllamaProvider) ensureLoaded(ctx context.Context) error {
	p.initOnce.Do(func() {
		// A throwaway-prompt embed forces the runtime to pull the model into
		// memory without producing a vector we care about.
		_, err := p.embedRaw(ctx, "warm-up")
		if err != nil {
			p.initErr = fmt.Errorf("%w: loading model %s: %v", ErrUnavailable, p.model, err)
		}
	})
	return p.initErr
}

// Embed returns the L2-normalized vector for a single text.
func (p *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := p.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	raw, err := p.embedRaw(ctx, text)
	if err != nil {
		return nil, wrapOllamaError(err)
	}
	return normalizeL2(raw), nil
}

// wrapOllamaError classifies a call failure: transport errors mean the
// runtime itself is unreachable, everything else is a failed call against a
// reachable runtime.
func wrapOllamaError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return fmt.Errorf("%w: %v", ErrFailed, err)
}

// EmbedAll embeds texts sequentially; the runtime has no batch endpoint.
// A failure for any text fails the whole call.
func (p *OllamaProvider) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vector, err := p.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
		vectors[i] = vector
	}
	return vectors, nil
}

// Dimensions returns the configured vector length.
func (p *OllamaProvider) Dimensions() int { return p.dimensions }

// ModelName returns the active embedding model identifier.
func (p *OllamaProvider) ModelName() string { return p.model }

// embedRaw issues a single inference call and returns the unnormalized
// vector. Non-2xx responses carry the runtime's status and body.
func (p *OllamaProvider) embedRaw(ctx context.Context, text string) ([]float64, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: p.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama status %d: %s", resp.StatusCode, string(detail))
	}

	var embedResp ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(embedResp.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}
	return embedResp.Embedding, nil
}

// normalizeL2 scales the vector to unit length, converting to float32 for
// storage. A zero vector is returned unchanged; the store rejects it later.
func normalizeL2(raw []float64) []float32 {
	var sum float64
	for _, v := range raw {
		sum += v * v
	}
	norm := math.Sqrt(sum)

	out := make([]float32, len(raw))
	if norm == 0 {
		for i, v := range raw {
			out[i] = float32(v)
		}
		return out
	}
	for i, v := range raw {
		out[i] = float32(v / norm)
	}
	return out
}
