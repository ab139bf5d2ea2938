package vectorstore

import (
	"fmt"
	"math"
)

// Cosine computes the cosine similarity dot(a,b) / (|a|*|b|) in [-1, 1].
// Zero-norm operands are a configuration error, not a zero score.
func Cosine(a, b []float32) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, fmt.Errorf("%w: empty operand", ErrInvalidVector)
	}
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, fmt.Errorf("%w: zero-norm operand", ErrInvalidVector)
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
