package extract

import "errors"

var (
	// ErrUnsupportedFormat indicates a file extension with no registered format.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrExtraction indicates an unreadable or corrupt document.
	ErrExtraction = errors.New("text extraction failed")
)
