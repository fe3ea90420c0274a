// Package fingerprint computes stable content hashes for source documents.
//
// The hash covers a document's extracted text rather than its raw bytes, so a
// re-save that leaves the text unchanged does not look like a modification.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/bull/docsync/internal/extract"
)

// Extractor produces the text a Fingerprinter hashes.
type Extractor interface {
	Extract(ctx context.Context, path string) (extract.Content, error)
}

// Fingerprint is a document's content hash together with the text it was computed from.
type Fingerprint struct {
	Hash    string
	Content extract.Content
}

// Fingerprinter hashes documents through an Extractor.
type Fingerprinter struct {
	extractor Extractor
}

// New creates a Fingerprinter backed by the given extractor.
func New(extractor Extractor) *Fingerprinter {
	return &Fingerprinter{extractor: extractor}
}

// Fingerprint extracts the document at path and hashes its text.
// Failures are reported as extract.ErrUnsupportedFormat or extract.ErrExtraction;
// context cancellation is returned unchanged.
func (f *Fingerprinter) Fingerprint(ctx context.Context, path string) (*Fingerprint, error) {
	content, err := f.extractor.Extract(ctx, path)
	if err != nil {
		switch {
		case errors.Is(err, extract.ErrUnsupportedFormat),
			errors.Is(err, extract.ErrExtraction),
			errors.Is(err, context.Canceled),
			errors.Is(err, context.DeadlineExceeded):
			return nil, err
		default:
			return nil, fmt.Errorf("%w: %v", extract.ErrExtraction, err)
		}
	}

	return &Fingerprint{
		Hash:    Sum(content.Text),
		Content: content,
	}, nil
}

// Sum returns the hex-encoded SHA-256 digest of text.
func Sum(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
