package store

import (
	"sync"

	"github.com/pagescribe/pagescribe/constants"
	"github.com/pagescribe/pagescribe/internal/pages"
)

// MemStore keeps artifacts in memory. Useful for tests and dry runs.
type MemStore struct {
	mu       sync.Mutex
	byIndex  map[int]string
	writeErr error
	writes   int
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{byIndex: make(map[int]string)}
}

// FailWrites makes every subsequent Write return err (nil restores normal
// behavior). Lets tests exercise the write-retry path.
func (s *MemStore) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

// Exists reports whether an artifact was written for p.
func (s *MemStore) Exists(p pages.Page) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byIndex[p.Index]
	return ok, nil
}

// Write stores text for p, overwriting any previous value.
func (s *MemStore) Write(p pages.Page, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if s.writeErr != nil {
		return s.writeErr
	}
	s.byIndex[p.Index] = text
	return nil
}

// Path reports a stable pseudo-path for p.
func (s *MemStore) Path(p pages.Page) string {
	return "mem://" + p.Stem + constants.ArtifactExtension
}

// Get returns the stored text for index and whether it exists.
func (s *MemStore) Get(index int) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.byIndex[index]
	return text, ok
}

// Len reports how many artifacts are stored.
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byIndex)
}

// Writes reports how many Write calls were made, including failed ones.
func (s *MemStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
