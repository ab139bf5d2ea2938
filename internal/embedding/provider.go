// Package embedding turns text into fixed-length vectors. Two providers are
// interchangeable behind the Provider interface: a remote OpenAI-backed one
// and a locally-executed model served by an Ollama runtime.
package embedding

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable indicates the backing model or service could not be
	// reached or loaded at all.
	ErrUnavailable = errors.New("embedding provider unavailable")

	// ErrFailed indicates a specific embedding call completed with an error.
	ErrFailed = errors.New("embedding failed")
)

// Provider generates embeddings for text. Vectors from different providers
// (or different models) are never comparable; the caller must not mix them.
type Provider interface {
	// Embed returns the vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedAll returns one vector per input text, index-aligned. It is
	// all-or-nothing: a failure for any input fails the whole call.
	EmbedAll(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed vector length this provider produces.
	Dimensions() int

	// ModelName returns the identifier of the active embedding model.
	ModelName() string
}
