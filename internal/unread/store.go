package unread

import (
	"log"
	"sync"

	"github.com/Carl4WebDev/vet-user/internal/observability"
)

// Persister is the durable storage boundary for the unread-count map.
type Persister interface {
	Save(counts map[string]int) error
	Load() (map[string]int, error)
}

// Store is the single source of truth for per-peer unread counts. Every
// mutation is followed by a best-effort synchronous write to the persister;
// a failed write is logged and swallowed, the in-memory map stays
// authoritative for the session.
type Store struct {
	mu        sync.Mutex
	counts    map[string]int
	persister Persister
}

// NewStore builds a Store rehydrated from the persister. A load failure
// yields an empty map rather than an error.
func NewStore(persister Persister) *Store {
	counts, err := persister.Load()
	if err != nil {
		log.Printf("unread store load failed, starting empty: %v", err)
		counts = nil
	}
	if counts == nil {
		counts = make(map[string]int)
	}

	s := &Store{counts: counts, persister: persister}
	observability.SetUnreadTotal(s.Total())
	return s
}

// Increment adds one to the count for a peer and returns the new value.
func (s *Store) Increment(peerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counts[peerID]++
	value := s.counts[peerID]
	s.persist()
	return value
}

// Reset zeroes the count for a peer.
func (s *Store) Reset(peerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counts[peerID] = 0
	s.persist()
}

// Get returns the current count for a peer.
func (s *Store) Get(peerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[peerID]
}

// Total is derived by summing the map, never cached.
func (s *Store) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalLocked()
}

// Snapshot returns a copy of the full count map.
func (s *Store) Snapshot() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[string]int, len(s.counts))
	for peerID, count := range s.counts {
		snapshot[peerID] = count
	}
	return snapshot
}

func (s *Store) totalLocked() int {
	total := 0
	for _, count := range s.counts {
		total += count
	}
	return total
}

// persist must be called with the lock held.
func (s *Store) persist() {
	observability.SetUnreadTotal(s.totalLocked())
	if err := s.persister.Save(s.counts); err != nil {
		log.Printf("unread store persist failed: %v", err)
	}
}
