package embedding

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/openai/openai-go"
)

const (
	// DefaultOpenAIModel is the embedding model used unless configured.
	DefaultOpenAIModel = "text-embedding-3-small"

	// DefaultOpenAIDimensions is the vector length of text-embedding-3-small.
	DefaultOpenAIDimensions = 1536
)

// OpenAIProvider generates embeddings via the OpenAI embeddings API.
// Batches are sent in a single request; the API reports one vector per
// input in order.
type OpenAIProvider struct {
	client     *openai.Client
	model      string
	dimensions int
}

// NewOpenAIProvider creates the remote provider. It reads OPENAI_API_KEY
// from the environment and fails fast if it is not set. Empty model or
// zero dimensions fall back to the defaults.
func NewOpenAIProvider(model string, dimensions int) (*OpenAIProvider, error) {
	if os.Getenv("OPENAI_API_KEY") == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY environment variable not set", ErrUnavailable)
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	if dimensions <= 0 {
		dimensions = DefaultOpenAIDimensions
	}

	// openai-go reads OPENAI_API_KEY from the environment itself.
	client := openai.NewClient()

	return &OpenAIProvider{
		client:     &client,
		model:      model,
		dimensions: dimensions,
	}, nil
}

// Embed returns the vector for a single text.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedAll(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedAll embeds all texts in one batch request. Any API failure fails the
// whole batch; the provider never returns a partial result.
func (p *OpenAIProvider) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model: p.model,
	})
	if err != nil {
		return nil, wrapOpenAIError(err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d vectors, got %d", ErrFailed, len(texts), len(resp.Data))
	}

	vectors := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		vectors[i] = toFloat32(data.Embedding)
	}
	return vectors, nil
}

// Dimensions returns the configured vector length.
func (p *OpenAIProvider) Dimensions() int { return p.dimensions }

// ModelName returns the active embedding model identifier.
func (p *OpenAIProvider) ModelName() string { return p.model }

// wrapOpenAIError maps transport failures to ErrUnavailable and API error
// responses to ErrFailed, keeping the service-reported status and body.
func wrapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: openai status %d: %s", ErrFailed, apiErr.StatusCode, apiErr.Message)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// toFloat32 converts the API's float64 vector to the float32 storage form.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
