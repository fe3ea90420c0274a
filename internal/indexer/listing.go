package indexer

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bull/docsync/internal/extract"
)

// File is one document found in the watched folder.
type File struct {
	Name    string // Document identity
	Path    string
	Size    int64
	ModTime time.Time
}

// List returns the regular files directly inside dir that accept admits,
// sorted by name. Hidden names and editor lock files (leading "." or "~") are
// always skipped, as are files that vanish while listing.
func List(dir string, accept func(name string) bool) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read folder %s: %w", dir, err)
	}

	files := make([]File, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || extract.IsIgnoredName(name) {
			continue
		}
		if accept != nil && !accept(name) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		files = append(files, File{
			Name:    name,
			Path:    filepath.Join(dir, name),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return files, nil
}
