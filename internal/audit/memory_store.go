package audit

import (
	"context"
	"sync"

	"github.com/nmehta6/riskgate/internal/decision"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu      sync.RWMutex
	ordered []*decision.Record
	byTxn   map[string]*decision.Record
}

// NewMemoryStore creates an in-memory audit log.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byTxn: make(map[string]*decision.Record)}
}

func (s *MemoryStore) Append(_ context.Context, rec *decision.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Keep the first record for a transaction id; a redelivered event
	// replays its append.
	if _, ok := s.byTxn[rec.TransactionID]; ok {
		return nil
	}

	cp := *rec
	s.ordered = append(s.ordered, &cp)
	s.byTxn[rec.TransactionID] = &cp
	return nil
}

func (s *MemoryStore) GetByTxnID(_ context.Context, txnID string) (*decision.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byTxn[txnID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) Recent(_ context.Context, n int) ([]*decision.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n > len(s.ordered) {
		n = len(s.ordered)
	}

	out := make([]*decision.Record, 0, n)
	for i := len(s.ordered) - 1; i >= len(s.ordered)-n; i-- {
		cp := *s.ordered[i]
		out = append(out, &cp)
	}
	return out, nil
}
