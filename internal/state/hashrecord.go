package state

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/renameio"
)

// HashRecordFile is the file name of the content hash record inside the state directory.
const HashRecordFile = "content_hashes.txt"

// HashRecord maps document identities to the content hash they were last synced at.
// It is persisted as one "identity,hash" line per document and rewritten in
// full on every Save.
type HashRecord struct {
	path   string
	hashes map[string]string
}

// LoadHashRecord reads the record at path. A missing file yields an empty record.
func LoadHashRecord(path string) (*HashRecord, error) {
	r := &HashRecord{path: path, hashes: make(map[string]string)}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read hash record: %w", err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")
		if text == "" {
			continue
		}
		// Hashes are hex, so the last comma separates; identities may contain commas.
		i := strings.LastIndexByte(text, ',')
		if i <= 0 || i == len(text)-1 {
			return nil, fmt.Errorf("%w: %s line %d", ErrCorruptState, path, line)
		}
		r.hashes[text[:i]] = text[i+1:]
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptState, path, err)
	}

	return r, nil
}

// Path returns the file the record is saved to.
func (r *HashRecord) Path() string { return r.path }

// Get returns the recorded hash for identity.
func (r *HashRecord) Get(identity string) (string, bool) {
	h, ok := r.hashes[identity]
	return h, ok
}

// Set records hash for identity in memory. Call Save to persist.
func (r *HashRecord) Set(identity, hash string) {
	r.hashes[identity] = hash
}

// Delete forgets identity in memory. Call Save to persist.
func (r *HashRecord) Delete(identity string) {
	delete(r.hashes, identity)
}

// Identities returns every recorded identity, sorted.
func (r *HashRecord) Identities() []string {
	ids := make([]string, 0, len(r.hashes))
	for id := range r.hashes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of recorded documents.
func (r *HashRecord) Len() int { return len(r.hashes) }

// Save atomically replaces the file with the current contents.
func (r *HashRecord) Save() error {
	var buf bytes.Buffer
	for _, id := range r.Identities() {
		fmt.Fprintf(&buf, "%s,%s\n", id, r.hashes[id])
	}
	return writeFile(r.path, buf.Bytes())
}

// writeFile creates the parent directory and swaps the file in via rename,
// so a crash mid-write leaves the previous version intact.
func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
