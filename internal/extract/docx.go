package extract

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// DOCX extracts paragraph text from Office Open XML word documents.
// Paragraphs are joined by a newline.
type DOCX struct{}

// NewDOCX creates the flow DOCX format.
func NewDOCX() *DOCX {
	return &DOCX{}
}

// Name returns "docx".
func (f *DOCX) Name() string { return "docx" }

// Kind returns Flow.
func (f *DOCX) Kind() Kind { return Flow }

// Extensions returns the DOCX extension.
func (f *DOCX) Extensions() []string { return []string{".docx"} }

// Extract reads word/document.xml and returns its body paragraphs in order.
func (f *DOCX) Extract(ctx context.Context, path string) (Content, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return Content{}, fmt.Errorf("%w: open %s: %v", ErrExtraction, path, err)
	}
	defer reader.Close()

	var body []byte
	var title string
	for _, file := range reader.File {
		switch file.Name {
		case "word/document.xml":
			body, err = readZipFile(file)
			if err != nil {
				return Content{}, fmt.Errorf("%w: %s: %v", ErrExtraction, path, err)
			}
		case "docProps/core.xml":
			if data, err := readZipFile(file); err == nil {
				title = parseCoreTitle(data)
			}
		}
	}

	if body == nil {
		return Content{}, fmt.Errorf("%w: %s: missing word/document.xml", ErrExtraction, path)
	}
	if err := ctx.Err(); err != nil {
		return Content{}, err
	}

	paragraphs, err := parseDocumentXML(body)
	if err != nil {
		return Content{}, fmt.Errorf("%w: %s: %v", ErrExtraction, path, err)
	}

	return Content{
		Text:  strings.Join(paragraphs, "\n"),
		Title: title,
	}, nil
}

func readZipFile(file *zip.File) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// documentXML represents the structure of word/document.xml.
type documentXML struct {
	Body struct {
		Paragraphs []paragraph `xml:"p"`
	} `xml:"body"`
}

type paragraph struct {
	Runs []run `xml:"r"`
}

type run struct {
	Text []textElement `xml:"t"`
}

type textElement struct {
	Content string `xml:",chardata"`
}

// parseDocumentXML returns the text of each top-level body paragraph.
func parseDocumentXML(content []byte) ([]string, error) {
	var doc documentXML
	if err := xml.Unmarshal(content, &doc); err != nil {
		return nil, err
	}

	paragraphs := make([]string, 0, len(doc.Body.Paragraphs))
	for _, para := range doc.Body.Paragraphs {
		var b strings.Builder
		for _, r := range para.Runs {
			for _, t := range r.Text {
				b.WriteString(t.Content)
			}
		}
		paragraphs = append(paragraphs, b.String())
	}
	return paragraphs, nil
}

// coreXML represents the structure of docProps/core.xml.
type coreXML struct {
	Title string `xml:"title"`
}

func parseCoreTitle(content []byte) string {
	var core coreXML
	if err := xml.Unmarshal(content, &core); err != nil {
		return ""
	}
	return strings.TrimSpace(core.Title)
}
