// Package extract converts supported document files into a linear text stream.
//
// Each supported file format implements Format. A Registry resolves the format
// once per document from the file extension and concatenates the format's
// textual units (pages, paragraphs, blocks) in document order.
package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Kind distinguishes how a format divides its text.
type Kind int

const (
	// Paginated formats (PDF) yield one textual unit per page.
	Paginated Kind = iota
	// Flow formats (DOCX, Markdown, plain text) yield paragraphs or blocks.
	Flow
)

// String returns the kind name used in logs.
func (k Kind) String() string {
	switch k {
	case Paginated:
		return "paginated"
	case Flow:
		return "flow"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Content is the text extracted from a single document.
type Content struct {
	Text  string // Textual units joined by the format's separator
	Title string // Document title when the format carries one
}

// Format extracts text from one document format.
type Format interface {
	// Name identifies the format in logs ("pdf", "docx").
	Name() string
	// Kind reports whether the format is paginated or flowing.
	Kind() Kind
	// Extensions lists the lower-case file extensions handled, with leading dot.
	Extensions() []string
	// Extract reads the file at path. A valid document without text returns
	// empty Content and no error.
	Extract(ctx context.Context, path string) (Content, error)
}

// Registry maps file extensions to formats.
type Registry struct {
	formats map[string]Format
}

// DefaultFormats returns every format this package implements.
func DefaultFormats() []Format {
	return []Format{
		NewPDF(),
		NewDOCX(),
		NewMarkdown(),
		NewPlainText(),
	}
}

// NewRegistry creates a registry over the given formats. A later format
// replaces an earlier one registered for the same extension.
func NewRegistry(formats ...Format) *Registry {
	r := &Registry{formats: make(map[string]Format)}
	for _, f := range formats {
		for _, ext := range f.Extensions() {
			r.formats[strings.ToLower(ext)] = f
		}
	}
	return r
}

// Restrict returns a registry limited to the given extensions. Every extension
// must already be supported, otherwise ErrUnsupportedFormat is returned.
func (r *Registry) Restrict(extensions []string) (*Registry, error) {
	if len(extensions) == 0 {
		return r, nil
	}

	restricted := &Registry{formats: make(map[string]Format, len(extensions))}
	for _, ext := range extensions {
		ext = normalizeExt(ext)
		f, ok := r.formats[ext]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
		}
		restricted.formats[ext] = f
	}
	return restricted, nil
}

// Extensions returns the registered extensions in sorted order.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.formats))
	for ext := range r.formats {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Resolve returns the format for path, or ErrUnsupportedFormat.
func (r *Registry) Resolve(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	f, ok := r.formats[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Base(path))
	}
	return f, nil
}

// Supports reports whether path has a registered extension.
func (r *Registry) Supports(path string) bool {
	_, ok := r.formats[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Extract resolves the format for path and extracts its text.
func (r *Registry) Extract(ctx context.Context, path string) (Content, error) {
	f, err := r.Resolve(path)
	if err != nil {
		return Content{}, err
	}
	return f.Extract(ctx, path)
}

// IsIgnoredName reports whether a file name is hidden or an editor temp file.
func IsIgnoredName(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~")
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
