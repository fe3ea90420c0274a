package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/docsync/internal/app"
	"github.com/bull/docsync/internal/storage"
)

// Store is the read side of the chunk store the tools query.
type Store interface {
	app.QueryStore
	GetByDocument(ctx context.Context, sourceFile string) ([]*storage.ChunkRecord, error)
	ListDocuments(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
}

// Server wraps the MCP server with dependencies.
type Server struct {
	server *mcp.Server
}

// Config holds server dependencies.
type Config struct {
	Store    Store
	Embedder app.QueryEmbedder

	// WatchDir and StateDir locate the folder and hash record for get_index_status.
	WatchDir string
	StateDir string
	// Accept reports whether a file name is a supported document.
	Accept func(name string) bool

	// Overlap is the chunk overlap used at ingestion, needed to reassemble documents.
	Overlap int
	// DefaultResults is the passage count when a search does not set one.
	DefaultResults int
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	impl := &mcp.Implementation{
		Name:    "docsync",
		Version: "v0.1.0",
	}

	server := mcp.NewServer(impl, nil)

	searcher := &app.Searcher{Embedder: cfg.Embedder, Store: cfg.Store}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_chunks",
		Description: "Search the synchronized documents semantically. Returns the most similar passages with their source file and score.",
	}, makeSearchHandler(searcher, cfg.DefaultResults))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_document_chunks",
		Description: "Retrieve the stored chunks of a document by file name, in order, together with the text reassembled from them.",
	}, makeGetDocumentHandler(cfg.Store, cfg.Overlap))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_documents",
		Description: "List the file names of all indexed documents.",
	}, makeListHandler(cfg.Store))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_index_status",
		Description: "Get the status of the document index including document and chunk counts, last sync time, and files changed since the last sync.",
	}, makeStatusHandler(cfg.Store, cfg.WatchDir, cfg.StateDir, cfg.Accept))

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
