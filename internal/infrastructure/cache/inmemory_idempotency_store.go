package cache

import (
	"context"
	"sync"
	"time"

	"github.com/carelink/backend/internal/domain/shared"
)

// InMemoryIdempotencyStore tracks processed event IDs in process memory.
// Suitable for single-instance deployments and tests.
type InMemoryIdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	done    chan struct{}
	once    sync.Once
}

// NewInMemoryIdempotencyStore creates a store with a background sweep
// that evicts expired entries.
func NewInMemoryIdempotencyStore(sweepInterval time.Duration) *InMemoryIdempotencyStore {
	s := &InMemoryIdempotencyStore{
		entries: make(map[string]time.Time),
		done:    make(chan struct{}),
	}
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	go s.sweep(sweepInterval)
	return s
}

// MarkProcessed records an event ID. It returns true when the ID was not
// seen before and false when it is a duplicate still inside its TTL.
func (s *InMemoryIdempotencyStore) MarkProcessed(_ context.Context, eventID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if expiry, ok := s.entries[eventID]; ok && expiry.After(now) {
		return false, nil
	}
	s.entries[eventID] = now.Add(ttl)
	return true, nil
}

// IsProcessed reports whether an event ID has been recorded and is still
// inside its TTL.
func (s *InMemoryIdempotencyStore) IsProcessed(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, ok := s.entries[eventID]
	if !ok {
		return false, nil
	}
	return expiry.After(time.Now()), nil
}

// Close stops the background sweep
func (s *InMemoryIdempotencyStore) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *InMemoryIdempotencyStore) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			for id, expiry := range s.entries {
				if !expiry.After(now) {
					delete(s.entries, id)
				}
			}
			s.mu.Unlock()
		}
	}
}

var _ shared.IdempotencyStore = (*InMemoryIdempotencyStore)(nil)
