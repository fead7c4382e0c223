package blob

import (
	"fmt"
	"sort"
	"sync"
)

// Store manages content-addressed immutable blobs in memory.
type Store struct {
	mu    sync.RWMutex
	blobs map[ID]Blob
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{blobs: make(map[ID]Blob)}
}

// Put hashes b and stores it, returning its ID.
// If an identical blob already exists, this is a no-op.
func (s *Store) Put(b Blob) (ID, error) {
	if err := b.validate(); err != nil {
		return "", err
	}
	id, err := b.Hash()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[id]; ok {
		return id, nil // already exists
	}
	data := make([]float32, len(b.Data))
	copy(data, b.Data)
	s.blobs[id] = Blob{Shape: b.Shape, Data: data}
	return id, nil
}

// Get reads a blob by ID. The returned blob shares storage with the store
// and must not be modified.
func (s *Store) Get(id ID) (Blob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[id]
	if !ok {
		return Blob{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return b, nil
}

// Has checks if a blob exists.
func (s *Store) Has(id ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[id]
	return ok
}

// Len returns the number of stored blobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// IDs returns all blob ids in sorted order.
func (s *Store) IDs() []ID {
	s.mu.RLock()
	ids := make([]ID, 0, len(s.blobs))
	for id := range s.blobs {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
