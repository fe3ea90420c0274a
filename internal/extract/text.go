package extract

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"
)

// PlainText reads UTF-8 text files. Line endings are normalized to "\n".
type PlainText struct{}

// NewPlainText creates the flow plain text format.
func NewPlainText() *PlainText {
	return &PlainText{}
}

// Name returns "text".
func (f *PlainText) Name() string { return "text" }

// Kind returns Flow.
func (f *PlainText) Kind() Kind { return Flow }

// Extensions returns the plain text extension.
func (f *PlainText) Extensions() []string { return []string{".txt"} }

// Extract reads the whole file. Invalid UTF-8 is reported as ErrExtraction.
func (f *PlainText) Extract(ctx context.Context, path string) (Content, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Content{}, fmt.Errorf("%w: read %s: %v", ErrExtraction, path, err)
	}
	if !utf8.Valid(data) {
		return Content{}, fmt.Errorf("%w: %s is not valid UTF-8", ErrExtraction, path)
	}
	return Content{Text: strings.ReplaceAll(string(data), "\r\n", "\n")}, nil
}
