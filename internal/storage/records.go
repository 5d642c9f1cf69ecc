package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// RecordStore persists the full record collection as a single JSON
// document. Every write rewrites the document via a temp file and rename
// so a failed write never leaves partial content behind. The mutex
// serialises read-modify-write cycles across concurrent requests.
type RecordStore struct {
	path string
	mu   sync.Mutex
}

func NewRecordStore(path string) *RecordStore {
	return &RecordStore{path: path}
}

// ReadAll returns every persisted record. A store file that does not
// exist yet reads as an empty collection.
func (s *RecordStore) ReadAll() ([]PostRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

// Append adds a single record to the end of the collection.
func (s *RecordStore) Append(rec PostRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readLocked()
	if err != nil {
		return err
	}

	return s.writeLocked(append(records, rec))
}

// Insert runs build against the current collection and appends its result,
// all under the store lock. Reference allocation has to happen in here:
// computing the next reference outside the lock and appending afterwards
// would let two concurrent ingestions claim the same number. A context
// cancelled before the append is observed and nothing is written.
func (s *RecordStore) Insert(ctx context.Context, build func(existing []PostRecord) (PostRecord, error)) (PostRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readLocked()
	if err != nil {
		return PostRecord{}, err
	}

	rec, err := build(records)
	if err != nil {
		return PostRecord{}, err
	}

	if err := ctx.Err(); err != nil {
		return PostRecord{}, err
	}

	if err := s.writeLocked(append(records, rec)); err != nil {
		return PostRecord{}, err
	}

	return rec, nil
}

func (s *RecordStore) readLocked() ([]PostRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			// fresh store, no seeded file required
			return []PostRecord{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var records []PostRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
	}

	return records, nil
}

func (s *RecordStore) writeLocked(records []PostRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// temp in the same directory so the rename is atomic
	tmp, err := os.CreateTemp(dir, ".records-*.json")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return nil
}
