// Package mcp exposes the synchronized document index over the Model Context Protocol.
package mcp

// SearchChunksInput defines the input parameters for the search_chunks tool.
type SearchChunksInput struct {
	// Query is the natural-language question.
	Query string `json:"query" jsonschema:"the question to find relevant passages for"`
	// MaxResults is the maximum number of passages to return.
	MaxResults int `json:"max_results,omitempty" jsonschema:"maximum number of passages to return (1-20)"`
	// MinScore drops passages below this similarity (0-1).
	MinScore float64 `json:"min_score,omitempty" jsonschema:"minimum similarity score between 0 and 1"`
}

// SearchChunksOutput contains the matching passages.
type SearchChunksOutput struct {
	Results []Passage `json:"results"`
	// Message explains an empty result.
	Message string `json:"message,omitempty"`
}

// Passage is one stored chunk returned by a search.
type Passage struct {
	SourceFile string  `json:"source_file"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
	Title      string  `json:"title,omitempty"`
	Content    string  `json:"content"`
	IndexedAt  string  `json:"indexed_at,omitempty"` // RFC3339
}

// GetDocumentChunksInput defines the input parameters for the get_document_chunks tool.
type GetDocumentChunksInput struct {
	// SourceFile is the document identity, its file name in the watched folder.
	SourceFile string `json:"source_file" jsonschema:"file name of the document in the watched folder"`
}

// GetDocumentChunksOutput contains a document's stored chunks in index order.
type GetDocumentChunksOutput struct {
	SourceFile  string      `json:"source_file"`
	Found       bool        `json:"found"`
	Title       string      `json:"title,omitempty"`
	ContentHash string      `json:"content_hash,omitempty"`
	IndexedAt   string      `json:"indexed_at,omitempty"` // RFC3339, latest chunk
	Chunks      []ChunkText `json:"chunks"`
	// Content is the document text reassembled from the chunks.
	Content string `json:"content,omitempty"`
}

// ChunkText is one stored chunk of a document.
type ChunkText struct {
	Index   int    `json:"index"`
	Content string `json:"content"`
}

// ListDocumentsInput takes no parameters.
type ListDocumentsInput struct{}

// ListDocumentsOutput contains every indexed document identity.
type ListDocumentsOutput struct {
	SourceFiles []string `json:"source_files"`
	Count       int      `json:"count"`
}

// StatusInput takes no parameters.
type StatusInput struct{}

// StatusOutput describes the index and how far it lags the watched folder.
type StatusOutput struct {
	// TotalDocs is the number of documents with chunks in the store.
	TotalDocs int `json:"total_docs"`
	// TotalChunks is the number of stored chunks.
	TotalChunks int `json:"total_chunks"`
	// TrackedDocs is the number of documents in the hash record.
	TrackedDocs int `json:"tracked_docs"`
	// LastSyncTime is when the hash record was last written (RFC3339), empty before the first sync.
	LastSyncTime string `json:"last_sync_time,omitempty"`
	// PendingFiles are files in the folder that are new or changed since the last sync.
	PendingFiles []string `json:"pending_files"`
	// RemovedFiles are tracked documents no longer in the folder.
	RemovedFiles []string `json:"removed_files"`
	// StaleWarning is set when the index lags the folder.
	StaleWarning string `json:"stale_warning,omitempty"`
}
