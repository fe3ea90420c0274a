package fingerprint

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/docsync/internal/extract"
)

type stubExtractor struct {
	content extract.Content
	err     error
}

func (s *stubExtractor) Extract(_ context.Context, _ string) (extract.Content, error) {
	return s.content, s.err
}

func TestSum_Deterministic(t *testing.T) {
	assert.Equal(t, Sum("hello"), Sum("hello"))
	assert.NotEqual(t, Sum("hello"), Sum("hello!"))
	assert.Len(t, Sum(""), 64)
}

func TestFingerprint_HashesExtractedText(t *testing.T) {
	f := New(&stubExtractor{content: extract.Content{Text: "page one page two", Title: "T"}})

	fp, err := f.Fingerprint(context.Background(), "doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, Sum("page one page two"), fp.Hash)
	assert.Equal(t, "T", fp.Content.Title)
}

func TestFingerprint_FormattingNeutral(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.md")
	b := filepath.Join(dir, "b.md")
	require.NoError(t, os.WriteFile(a, []byte("# Notes\n\nSame *text* here.\n"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("Notes\n=====\n\nSame _text_ here.\n\n\n"), 0o644))

	f := New(extract.NewRegistry(extract.DefaultFormats()...))

	fa, err := f.Fingerprint(context.Background(), a)
	require.NoError(t, err)
	fb, err := f.Fingerprint(context.Background(), b)
	require.NoError(t, err)

	assert.Equal(t, fa.Hash, fb.Hash)
}

func TestFingerprint_Errors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{"unsupported passes through", extract.ErrUnsupportedFormat, extract.ErrUnsupportedFormat},
		{"extraction passes through", extract.ErrExtraction, extract.ErrExtraction},
		{"cancellation passes through", context.Canceled, context.Canceled},
		{"unknown becomes extraction", errors.New("disk on fire"), extract.ErrExtraction},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := New(&stubExtractor{err: tc.err})
			fp, err := f.Fingerprint(context.Background(), "doc.pdf")
			assert.Nil(t, fp)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}
