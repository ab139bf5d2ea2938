// Package mcp exposes the document question-answering pipeline over the
// Model Context Protocol.
package mcp

import "time"

// AskInput defines the input parameters for the ask_documents tool.
type AskInput struct {
	// Question is the natural-language question to answer from the indexed documents.
	Question string `json:"question" jsonschema:"required,description=The question to answer from the indexed documents"`
}

// AskOutput contains the grounded answer and its provenance.
type AskOutput struct {
	// Answer is the generated answer text.
	Answer string `json:"answer"`
	// Sources lists the document excerpts the answer was grounded on.
	Sources []SourceRef `json:"sources"`
	// Message provides informational context (e.g. no relevant material found).
	Message string `json:"message,omitempty"`
}

// SourceRef identifies one retrieved excerpt that grounded an answer.
type SourceRef struct {
	// DocumentName is the name of the source document.
	DocumentName string `json:"document_name"`
	// Score is the similarity score (0-1).
	Score float64 `json:"score"`
	// Excerpt is the retrieved chunk text.
	Excerpt string `json:"excerpt"`
}

// SearchChunksInput defines the input parameters for the search_chunks tool.
type SearchChunksInput struct {
	// Query is the semantic search query.
	Query string `json:"query" jsonschema:"required,description=The semantic search query"`
	// MaxResults is the maximum number of chunks to return.
	MaxResults int `json:"max_results,omitempty" jsonschema:"minimum=1,maximum=20,default=4,description=Maximum number of chunks to return"`
}

// SearchChunksOutput contains the raw retrieval results.
type SearchChunksOutput struct {
	// Results is the list of matching chunks in descending similarity order.
	Results []SourceRef `json:"results"`
	// Message provides informational context when nothing matched.
	Message string `json:"message,omitempty"`
}

// ListDocumentsInput defines the input parameters for the list_documents
// tool. It takes no parameters.
type ListDocumentsInput struct{}

// DocumentInfo summarizes one stored document.
type DocumentInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	MediaType string    `json:"media_type"`
	SizeBytes int64     `json:"size_bytes"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ListDocumentsOutput contains every stored document.
type ListDocumentsOutput struct {
	Documents []DocumentInfo `json:"documents"`
	Count     int            `json:"count"`
}

// StatusInput defines the input parameters for the get_index_status tool.
// It takes no parameters.
type StatusInput struct{}

// StatusOutput summarizes the state of the index.
type StatusOutput struct {
	// TotalDocs is the number of stored documents.
	TotalDocs int `json:"total_docs"`
	// IndexedDocs is the number of documents whose chunks are searchable.
	IndexedDocs int `json:"indexed_docs"`
	// ProcessingDocs is the number of documents still being ingested.
	ProcessingDocs int `json:"processing_docs"`
	// ErroredDocs is the number of documents that failed ingestion.
	ErroredDocs int `json:"errored_docs"`
	// TotalChunks is the number of chunks in the vector store.
	TotalChunks int `json:"total_chunks"`
}
