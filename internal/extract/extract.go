// Package extract turns uploaded files into plain text for chunking.
// Binary formats (PDF, DOCX) are out of scope; markdown is flattened so
// formatting syntax does not pollute embeddings, everything else passes
// through verbatim.
package extract

import (
	"path/filepath"
	"strings"
)

// MediaType returns the media type recorded for an uploaded file, inferred
// from its extension.
func MediaType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown":
		return "text/markdown"
	case ".txt":
		return "text/plain"
	case ".json":
		return "application/json"
	case ".csv":
		return "text/csv"
	default:
		return "text/plain"
	}
}

// Text extracts plain text from raw file content according to its media
// type. Unknown types are treated as plain text.
func Text(mediaType string, raw []byte) (string, error) {
	if mediaType == "text/markdown" {
		return markdownText(raw)
	}
	return string(raw), nil
}
