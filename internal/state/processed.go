package state

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
)

// ProcessedLogFile is the file name of the processed-files log inside the state directory.
const ProcessedLogFile = "processed_files.txt"

// ProcessedLog is the set of identities that have been ingested at least once.
// It only drives first-ingest bookkeeping and never affects sync decisions.
type ProcessedLog struct {
	path  string
	names map[string]struct{}
}

// LoadProcessedLog reads the log at path. A missing file yields an empty log.
func LoadProcessedLog(path string) (*ProcessedLog, error) {
	l := &ProcessedLog{path: path, names: make(map[string]struct{})}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read processed log: %w", err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if name := strings.TrimRight(scanner.Text(), "\r"); name != "" {
			l.names[name] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptState, path, err)
	}
	return l, nil
}

// Contains reports whether identity has been ingested before.
func (l *ProcessedLog) Contains(identity string) bool {
	_, ok := l.names[identity]
	return ok
}

// Add marks identity as ingested and persists the log.
// Adding a known identity is a no-op.
func (l *ProcessedLog) Add(identity string) error {
	if l.Contains(identity) {
		return nil
	}
	l.names[identity] = struct{}{}
	return l.save()
}

// Len returns the number of identities in the log.
func (l *ProcessedLog) Len() int { return len(l.names) }

func (l *ProcessedLog) save() error {
	names := make([]string, 0, len(l.names))
	for n := range l.names {
		names = append(names, n)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	for _, n := range names {
		buf.WriteString(n)
		buf.WriteByte('\n')
	}
	return writeFile(l.path, buf.Bytes())
}
