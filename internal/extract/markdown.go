package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

// Markdown extracts block text from markdown documents with markup removed.
// Blocks (headings, paragraphs, list items, code blocks) are joined by a newline.
type Markdown struct {
	parser goldmark.Markdown
}

// NewMarkdown creates the flow Markdown format configured with a goldmark parser.
func NewMarkdown() *Markdown {
	md := goldmark.New(
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	return &Markdown{parser: md}
}

// Name returns "markdown".
func (f *Markdown) Name() string { return "markdown" }

// Kind returns Flow.
func (f *Markdown) Kind() Kind { return Flow }

// Extensions returns the markdown extensions.
func (f *Markdown) Extensions() []string { return []string{".md", ".markdown"} }

// Extract parses the file and returns its block text and first heading.
func (f *Markdown) Extract(ctx context.Context, path string) (Content, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return Content{}, fmt.Errorf("%w: read %s: %v", ErrExtraction, path, err)
	}
	if err := ctx.Err(); err != nil {
		return Content{}, err
	}
	return f.extractSource(source)
}

func (f *Markdown) extractSource(source []byte) (Content, error) {
	doc := f.parser.Parser().Parse(text.NewReader(source))

	var blocks []string
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch n.Kind() {
		case ast.KindHeading, ast.KindParagraph, ast.KindTextBlock:
			blocks = append(blocks, inlineText(n, source))
			return ast.WalkSkipChildren, nil
		case ast.KindFencedCodeBlock, ast.KindCodeBlock:
			blocks = append(blocks, blockLines(n, source))
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return Content{}, fmt.Errorf("%w: walk markdown: %v", ErrExtraction, err)
	}

	return Content{
		Text:  strings.Join(blocks, "\n"),
		Title: markdownTitle(doc, source),
	}, nil
}

// inlineText concatenates the literal text beneath an inline container.
func inlineText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(source))
			switch {
			case t.HardLineBreak():
				buf.WriteByte('\n')
			case t.SoftLineBreak():
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(buf.String())
}

// blockLines returns the raw lines of a code block.
func blockLines(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		segment := lines.At(i)
		buf.Write(segment.Value(source))
	}
	return strings.TrimRight(buf.String(), "\n")
}

// markdownTitle returns the first H1 or H2 heading, if any.
func markdownTitle(doc ast.Node, source []byte) string {
	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(2),
		toc.Compact(true),
	)
	if err != nil || len(tree.Items) == 0 {
		return ""
	}
	return strings.TrimSpace(string(tree.Items[0].Title))
}
