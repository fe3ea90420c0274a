package embedding

import "errors"

var (
	// ErrEmbedding marks a failed embedding call or a malformed model response.
	ErrEmbedding = errors.New("embedding failed")

	// ErrMissingAPIKey is returned when the OpenAI provider has no API key.
	ErrMissingAPIKey = errors.New("OPENAI_API_KEY not set")
)
