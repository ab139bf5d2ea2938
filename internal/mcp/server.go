package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/docchat/internal/docstore"
	"github.com/bull/docchat/internal/retriever"
	"github.com/bull/docchat/internal/synthesis"
	"github.com/bull/docchat/internal/vectorstore"
)

// Server wraps the MCP server with its pipeline dependencies.
type Server struct {
	server *mcp.Server
}

// Config holds server dependencies.
type Config struct {
	Docs        docstore.Store
	Vectors     vectorstore.Store
	Retriever   *retriever.Retriever
	Synthesizer *synthesis.Synthesizer
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	impl := &mcp.Implementation{
		Name:    "docchat-server",
		Version: "v0.1.0",
	}

	server := mcp.NewServer(impl, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask_documents",
		Description: "Answer a question from the indexed documents. The answer is grounded in retrieved excerpts and cites its source documents.",
	}, makeAskHandler(cfg.Retriever, cfg.Synthesizer))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_chunks",
		Description: "Semantically search the indexed document chunks. Returns matching excerpts with similarity scores, without answer synthesis.",
	}, makeSearchHandler(cfg.Retriever))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_documents",
		Description: "List all stored documents with their ingestion status.",
	}, makeListHandler(cfg.Docs))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_index_status",
		Description: "Get the current status of the document index including per-status document counts and the total chunk count.",
	}, makeStatusHandler(cfg.Docs, cfg.Vectors))

	return &Server{server: server}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
// Used by transport handlers that need to wrap the server.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
