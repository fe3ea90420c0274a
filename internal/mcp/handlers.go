package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/docsync/internal/app"
	"github.com/bull/docsync/internal/chunker"
)

const maxSearchResults = 20

// makeSearchHandler creates the search_chunks tool handler.
// Asks the store for MaxResults passages, then drops those below MinScore.
func makeSearchHandler(searcher *app.Searcher, defaultResults int) func(
	context.Context, *mcp.CallToolRequest, SearchChunksInput,
) (*mcp.CallToolResult, SearchChunksOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchChunksInput) (
		*mcp.CallToolResult, SearchChunksOutput, error,
	) {
		maxResults := input.MaxResults
		if maxResults <= 0 {
			maxResults = defaultResults
		}
		maxResults = min(maxResults, maxSearchResults)

		chunks, err := searcher.Search(ctx, input.Query, maxResults)
		if err != nil {
			return nil, SearchChunksOutput{}, err
		}

		results := make([]Passage, 0, len(chunks))
		for _, chunk := range chunks {
			if chunk.Score < input.MinScore {
				continue
			}
			results = append(results, Passage{
				SourceFile: chunk.SourceFile,
				ChunkIndex: chunk.ChunkIndex,
				Score:      chunk.Score,
				Title:      chunk.Title,
				Content:    chunk.Content,
				IndexedAt:  formatTime(chunk.IndexedAt),
			})
		}

		if len(results) == 0 {
			return nil, SearchChunksOutput{
				Results: []Passage{},
				Message: "No matching passages found. Try broader search terms.",
			}, nil
		}

		return nil, SearchChunksOutput{Results: results}, nil
	}
}

// makeGetDocumentHandler creates the get_document_chunks tool handler.
func makeGetDocumentHandler(store Store, overlap int) func(
	context.Context, *mcp.CallToolRequest, GetDocumentChunksInput,
) (*mcp.CallToolResult, GetDocumentChunksOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input GetDocumentChunksInput) (
		*mcp.CallToolResult, GetDocumentChunksOutput, error,
	) {
		records, err := store.GetByDocument(ctx, input.SourceFile)
		if err != nil {
			return nil, GetDocumentChunksOutput{}, fmt.Errorf("failed to fetch document: %w", err)
		}
		if len(records) == 0 {
			return nil, GetDocumentChunksOutput{
				SourceFile: input.SourceFile,
				Found:      false,
				Chunks:     []ChunkText{},
			}, nil
		}

		// Records come back in chunk order.
		chunks := make([]ChunkText, len(records))
		contents := make([]string, len(records))
		var indexedAt time.Time
		for i, r := range records {
			chunks[i] = ChunkText{Index: r.ChunkIndex, Content: r.Content}
			contents[i] = r.Content
			if r.IndexedAt.After(indexedAt) {
				indexedAt = r.IndexedAt
			}
		}

		first := records[0]
		return nil, GetDocumentChunksOutput{
			SourceFile:  input.SourceFile,
			Found:       true,
			Title:       first.Title,
			ContentHash: first.ContentHash,
			IndexedAt:   formatTime(indexedAt),
			Chunks:      chunks,
			Content:     chunker.Join(contents, overlap),
		}, nil
	}
}

// makeListHandler creates the list_documents tool handler.
func makeListHandler(store Store) func(
	context.Context, *mcp.CallToolRequest, ListDocumentsInput,
) (*mcp.CallToolResult, ListDocumentsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListDocumentsInput) (
		*mcp.CallToolResult, ListDocumentsOutput, error,
	) {
		files, err := store.ListDocuments(ctx)
		if err != nil {
			return nil, ListDocumentsOutput{}, fmt.Errorf("failed to list documents: %w", err)
		}
		if files == nil {
			files = []string{}
		}

		return nil, ListDocumentsOutput{
			SourceFiles: files,
			Count:       len(files),
		}, nil
	}
}

// makeStatusHandler creates the get_index_status tool handler.
func makeStatusHandler(
	store Store,
	watchDir, stateDir string,
	accept func(name string) bool,
) func(context.Context, *mcp.CallToolRequest, StatusInput) (*mcp.CallToolResult, StatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (
		*mcp.CallToolResult, StatusOutput, error,
	) {
		status, err := app.Status(ctx, store, watchDir, stateDir, accept)
		if err != nil {
			return nil, StatusOutput{}, fmt.Errorf("status_error: %w", err)
		}

		out := StatusOutput{
			TotalDocs:    len(status.Documents),
			TotalChunks:  status.TotalChunks,
			TrackedDocs:  status.TrackedDocs,
			LastSyncTime: formatTime(status.LastSync),
			PendingFiles: status.Pending,
			RemovedFiles: status.Removed,
		}
		if lag := status.Lag(); lag > 0 {
			out.StaleWarning = fmt.Sprintf("%d file(s) changed since the last sync. Run docsync sync or keep docsync watch running.", lag)
		}

		return nil, out, nil
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
