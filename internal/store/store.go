package store

import (
	"fmt"
	"sort"
	"sync"

	"research-enricher/internal/models"
)

// Store holds the persisted DocumentRecords keyed by filename.
// A single process is assumed to own the output directory.
type Store struct {
	mu      sync.RWMutex
	path    string
	records []models.DocumentRecord
	index   map[string]int
}

// Open loads the JSON array at path; a missing file yields an empty store
func Open(path string) (*Store, error) {
	s := &Store{path: path, index: make(map[string]int)}

	var records []models.DocumentRecord
	if _, err := ReadJSON(path, &records); err != nil {
		return nil, err
	}
	for _, rec := range records {
		s.put(rec)
	}
	return s, nil
}

// Path returns the JSON file backing the store
func (s *Store) Path() string {
	return s.path
}

// Has reports whether a record for filename exists
func (s *Store) Has(filename string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[filename]
	return ok
}

// Get returns the record for filename
func (s *Store) Get(filename string) (models.DocumentRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[filename]
	if !ok {
		return models.DocumentRecord{}, false
	}
	return s.records[i], true
}

// Put adds a record, replacing any existing record with the same filename
func (s *Store) Put(rec models.DocumentRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(rec)
}

func (s *Store) put(rec models.DocumentRecord) {
	if i, ok := s.index[rec.Filename]; ok {
		s.records[i] = rec
		return
	}
	s.index[rec.Filename] = len(s.records)
	s.records = append(s.records, rec)
}

// Len returns the number of records
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Records returns a copy of all records in insertion order
func (s *Store) Records() []models.DocumentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.DocumentRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Filenames returns the processed filenames sorted
func (s *Store) Filenames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.index))
	for name := range s.index {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WithTag returns the records carrying tag, highest relevance first
func (s *Store) WithTag(tag string) []models.DocumentRecord {
	var out []models.DocumentRecord
	for _, rec := range s.Records() {
		if rec.HasTag(tag) {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RelevanceScore > out[j].RelevanceScore
	})
	return out
}

// Save rewrites the full JSON array
func (s *Store) Save() error {
	s.mu.RLock()
	records := make([]models.DocumentRecord, len(s.records))
	copy(records, s.records)
	s.mu.RUnlock()

	if err := WriteJSON(s.path, records, "  "); err != nil {
		return fmt.Errorf("failed to save results: %w", err)
	}
	return nil
}
