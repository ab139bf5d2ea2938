package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/docchat/internal/docstore"
	"github.com/bull/docchat/internal/prompt"
	"github.com/bull/docchat/internal/retriever"
	"github.com/bull/docchat/internal/synthesis"
	"github.com/bull/docchat/internal/vectorstore"
)

// makeAskHandler creates the ask_documents tool handler. Flow:
// 1. Retrieve the top chunks above the relevance threshold
// 2. Assemble the grounded prompt and synthesize an answer
// 3. Return the answer with the excerpts that grounded it
func makeAskHandler(r *retriever.Retriever, s *synthesis.Synthesizer) func(
	context.Context, *mcp.CallToolRequest, AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskInput) (
		*mcp.CallToolResult, AskOutput, error,
	) {
		results, err := r.Retrieve(ctx, input.Question)
		if err != nil {
			return nil, AskOutput{}, fmt.Errorf("retrieval failed: %w", err)
		}

		msg, err := s.Answer(ctx, input.Question, nil, results)
		if err != nil {
			return nil, AskOutput{}, fmt.Errorf("synthesis failed: %w", err)
		}

		out := AskOutput{
			Answer:  msg.Content,
			Sources: toSourceRefs(results),
		}
		if len(results) == 0 {
			out.Message = prompt.NoContextSentinel
		}
		return nil, out, nil
	}
}

// makeSearchHandler creates the search_chunks tool handler, exposing the
// raw retrieval layer without answer synthesis.
func makeSearchHandler(r *retriever.Retriever) func(
	context.Context, *mcp.CallToolRequest, SearchChunksInput,
) (*mcp.CallToolResult, SearchChunksOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchChunksInput) (
		*mcp.CallToolResult, SearchChunksOutput, error,
	) {
		results, err := r.RetrieveN(ctx, input.Query, input.MaxResults)
		if err != nil {
			return nil, SearchChunksOutput{}, fmt.Errorf("search failed: %w", err)
		}

		out := SearchChunksOutput{Results: toSourceRefs(results)}
		if len(out.Results) == 0 {
			out.Message = "No matching chunks found. Try broader search terms."
		}
		return nil, out, nil
	}
}

// makeListHandler creates the list_documents tool handler.
func makeListHandler(docs docstore.Store) func(
	context.Context, *mcp.CallToolRequest, ListDocumentsInput,
) (*mcp.CallToolResult, ListDocumentsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListDocumentsInput) (
		*mcp.CallToolResult, ListDocumentsOutput, error,
	) {
		all, err := docs.List(ctx)
		if err != nil {
			return nil, ListDocumentsOutput{}, fmt.Errorf("failed to list documents: %w", err)
		}

		infos := make([]DocumentInfo, 0, len(all))
		for _, d := range all {
			infos = append(infos, DocumentInfo{
				ID:        d.ID,
				Name:      d.Name,
				MediaType: d.MediaType,
				SizeBytes: d.SizeBytes,
				Status:    string(d.Status),
				Error:     d.ErrorDetail,
				CreatedAt: d.CreatedAt,
			})
		}
		return nil, ListDocumentsOutput{Documents: infos, Count: len(infos)}, nil
	}
}

// makeStatusHandler creates the get_index_status tool handler, summarizing
// document lifecycle states and the chunk count.
func makeStatusHandler(docs docstore.Store, vectors vectorstore.Store) func(
	context.Context, *mcp.CallToolRequest, StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (
		*mcp.CallToolResult, StatusOutput, error,
	) {
		all, err := docs.List(ctx)
		if err != nil {
			return nil, StatusOutput{}, fmt.Errorf("failed to list documents: %w", err)
		}

		out := StatusOutput{TotalDocs: len(all)}
		for _, d := range all {
			switch d.Status {
			case docstore.StatusIndexed:
				out.IndexedDocs++
			case docstore.StatusProcessing:
				out.ProcessingDocs++
			case docstore.StatusError:
				out.ErroredDocs++
			}
		}

		chunks, err := vectors.ChunkCount(ctx)
		if err != nil {
			return nil, StatusOutput{}, fmt.Errorf("failed to count chunks: %w", err)
		}
		out.TotalChunks = chunks

		return nil, out, nil
	}
}

func toSourceRefs(results []vectorstore.SearchResult) []SourceRef {
	refs := make([]SourceRef, 0, len(results))
	for _, r := range results {
		refs = append(refs, SourceRef{
			DocumentName: r.DocumentName,
			Score:        r.Similarity,
			Excerpt:      r.Content,
		})
	}
	return refs
}
