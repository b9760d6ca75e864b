package results

import (
	"context"
	"sync"
	"time"

	"github.com/isdmx/coderunner/sandbox"
)

// DefaultMaxEntries bounds the memory store when no size is configured.
const DefaultMaxEntries = 1024

// MemoryStore is a TTL map with a size limit. The oldest entries are evicted
// first once the limit is reached.
type MemoryStore struct {
	mu    sync.Mutex
	m     map[string]memoryEntry
	order []string
	cap   int
	ttl   time.Duration
	now   func() time.Time
}

type memoryEntry struct {
	at   time.Time
	resp sandbox.Response
}

// NewMemoryStore creates a MemoryStore.
func NewMemoryStore(capacity int, ttl time.Duration) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMaxEntries
	}
	return &MemoryStore{
		m:   make(map[string]memoryEntry, capacity),
		cap: capacity,
		ttl: ttl,
		now: time.Now,
	}
}

func (s *MemoryStore) Put(_ context.Context, id string, resp sandbox.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.m[id]; !ok {
		s.order = append(s.order, id)
	}
	s.m[id] = memoryEntry{at: s.now(), resp: resp}

	for len(s.m) > s.cap && len(s.order) > 0 {
		victim := s.order[0]
		s.order = s.order[1:]
		delete(s.m, victim)
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (sandbox.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.m[id]
	if !ok {
		return sandbox.Response{}, ErrNotFound
	}
	if s.ttl > 0 && s.now().Sub(e.at) > s.ttl {
		delete(s.m, id)
		s.dropFromOrder(id)
		return sandbox.Response{}, ErrNotFound
	}
	return e.resp, nil
}

// Len returns the number of stored entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) dropFromOrder(id string) {
	for i, k := range s.order {
		if k == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}
