// Package prompt builds the grounding context and system instruction for
// answer synthesis.
package prompt

import (
	"fmt"
	"strings"

	"github.com/bull/docchat/internal/vectorstore"
)

// NoContextSentinel replaces the context block when retrieval found nothing
// above the threshold, so the model is told grounding is absent instead of
// inferring it from an empty block.
const NoContextSentinel = "No relevant material was found in the uploaded documents."

// BuildContext renders retrieval results as labeled source blocks, one per
// result in the order received (descending similarity), separated by blank
// lines.
func BuildContext(results []vectorstore.SearchResult) string {
	if len(results) == 0 {
		return NoContextSentinel
	}

	blocks := make([]string, len(results))
	for i, r := range results {
		blocks[i] = fmt.Sprintf("[Source: %s]\n%s", r.DocumentName, r.Content)
	}
	return strings.Join(blocks, "\n\n")
}

// SystemInstruction wraps the context block with the grounding rules the
// model must follow.
func SystemInstruction(contextBlock string) string {
	return fmt.Sprintf(`You are a document assistant. Answer the user's question using only the context below.

Rules:
- Answer only from the provided context. Do not use outside knowledge.
- Cite the source document names when possible.
- If the context does not contain the answer, say so explicitly.
- Be concise.

Context:
%s`, contextBlock)
}
