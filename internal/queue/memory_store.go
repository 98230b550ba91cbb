package queue

import (
	"context"
	"sync"

	"github.com/nmehta6/riskgate/internal/event"
)

// MemoryStore is an in-memory queue for demo/test use.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Envelope
	nextID  int64
}

// NewMemoryStore creates an empty in-memory queue.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Enqueue(_ context.Context, txn *event.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	s.entries = append(s.entries, Envelope{ID: s.nextID, Event: *txn})
	return nil
}

func (s *MemoryStore) ReadBatch(_ context.Context, limit int) ([]Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit > len(s.entries) {
		limit = len(s.entries)
	}
	batch := make([]Envelope, limit)
	copy(batch, s.entries[:limit])
	return batch, nil
}

func (s *MemoryStore) Ack(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acked := make(map[int64]bool, len(ids))
	for _, id := range ids {
		acked[id] = true
	}

	remaining := s.entries[:0]
	for _, e := range s.entries {
		if !acked[e.ID] {
			remaining = append(remaining, e)
		}
	}
	s.entries = remaining
	return nil
}

func (s *MemoryStore) Depth(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries), nil
}
