// Package state persists what the sync engine knows between cycles and runs:
// the content hash of every synced document, the set of documents ever
// ingested, and a lock that keeps a second writer out of the same directory.
package state

import "path/filepath"

// Store bundles the persisted state of one watched folder.
type Store struct {
	Dir       string
	Hashes    *HashRecord
	Processed *ProcessedLog

	lock *Lock
}

// Open locks dir and loads its state files.
func Open(dir string) (*Store, error) {
	lock, err := AcquireLock(dir)
	if err != nil {
		return nil, err
	}

	hashes, err := LoadHashRecord(filepath.Join(dir, HashRecordFile))
	if err != nil {
		_ = lock.Release()
		return nil, err
	}

	processed, err := LoadProcessedLog(filepath.Join(dir, ProcessedLogFile))
	if err != nil {
		_ = lock.Release()
		return nil, err
	}

	return &Store{
		Dir:       dir,
		Hashes:    hashes,
		Processed: processed,
		lock:      lock,
	}, nil
}

// Reset forgets every recorded hash and persists the empty record.
// The processed log is kept.
func (s *Store) Reset() error {
	s.Hashes.hashes = make(map[string]string)
	return s.Hashes.Save()
}

// Close releases the directory lock.
func (s *Store) Close() error {
	return s.lock.Release()
}
