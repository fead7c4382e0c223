package api

import (
	"sync"
)

// DefaultRunCapacity bounds the runs kept by a RunStore.
const DefaultRunCapacity = 256

// RunStore keeps recent run responses for lookup by id. The oldest run is
// dropped once capacity is reached.
type RunStore struct {
	mu       sync.Mutex
	runs     map[string]RunResponse
	order    []string
	capacity int
}

func NewRunStore(capacity int) *RunStore {
	if capacity <= 0 {
		capacity = DefaultRunCapacity
	}
	return &RunStore{
		runs:     make(map[string]RunResponse),
		capacity: capacity,
	}
}

func (s *RunStore) Save(resp RunResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[resp.ID]; !ok {
		s.order = append(s.order, resp.ID)
	}
	s.runs[resp.ID] = resp
	for len(s.order) > s.capacity {
		delete(s.runs, s.order[0])
		s.order = s.order[1:]
	}
}

func (s *RunStore) Get(id string) (RunResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp, ok := s.runs[id]
	return resp, ok
}

func (s *RunStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}
