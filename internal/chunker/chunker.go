// Package chunker splits extracted document text into overlapping
// fixed-size windows for embedding and retrieval.
package chunker

import (
	"errors"
	"fmt"
)

// Default window parameters. These match the values the system has always
// shipped with; they are configurable, not derived.
const (
	DefaultSize    = 1000
	DefaultOverlap = 200

	// MinChunkLength is the length below which a chunk is unlikely to carry
	// enough signal to be worth an embedding call. The chunker itself never
	// filters; callers apply this before embedding.
	MinChunkLength = 50
)

// ErrInvalidConfig indicates a size/overlap combination that cannot produce
// an advancing window.
var ErrInvalidConfig = errors.New("invalid chunk configuration")

// Split divides text into overlapping windows of at most size characters.
// The trailing overlap characters of each window are repeated at the start
// of the next. The final window always ends exactly at len(text).
//
// Empty text yields a nil slice. Text shorter than size yields exactly one
// chunk equal to the whole text.
func Split(text string, size, overlap int) ([]string, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size %d must be positive", ErrInvalidConfig, size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: overlap %d must not be negative", ErrInvalidConfig, overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d >= size %d", ErrInvalidConfig, overlap, size)
	}

	if len(text) == 0 {
		return nil, nil
	}

	var chunks []string
	start := 0
	for {
		end := start + size
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			return chunks, nil
		}
		chunks = append(chunks, text[start:end])
		start = end - overlap
	}
}
