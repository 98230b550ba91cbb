package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore creates an in-memory processed-transaction store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) IsProcessed(_ context.Context, txnID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.records[txnID]
	return ok, nil
}

func (s *MemoryStore) MarkProcessed(_ context.Context, txnID, decision, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[txnID]; ok {
		return ErrAlreadyProcessed
	}
	s.records[txnID] = Record{
		TransactionID: txnID,
		Decision:      decision,
		Source:        source,
		ProcessedAt:   time.Now(),
	}
	return nil
}
