package graph

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu     sync.RWMutex
	edges  map[string]*EdgeStats // keyed by edgeKey(payer, payee)
	payees map[string]map[string]bool
	payers map[string]map[string]bool
}

// NewMemoryStore creates an in-memory graph store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		edges:  make(map[string]*EdgeStats),
		payees: make(map[string]map[string]bool),
		payers: make(map[string]map[string]bool),
	}
}

func edgeKey(payer, payee string) string {
	return payer + "\x00" + payee
}

func (s *MemoryStore) RecordTransaction(_ context.Context, payer, payee string, amount float64, timestamp time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := edgeKey(payer, payee)
	edge, ok := s.edges[key]
	if !ok {
		edge = &EdgeStats{Payer: payer, Payee: payee, CreatedAt: timestamp}
		s.edges[key] = edge

		if s.payees[payer] == nil {
			s.payees[payer] = make(map[string]bool)
		}
		s.payees[payer][payee] = true

		if s.payers[payee] == nil {
			s.payers[payee] = make(map[string]bool)
		}
		s.payers[payee][payer] = true
	}

	edge.Count++
	edge.TotalAmount += amount
	edge.LastSeen = timestamp
	return nil
}

func (s *MemoryStore) EdgeStats(_ context.Context, payer, payee string) (*EdgeStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	edge, ok := s.edges[edgeKey(payer, payee)]
	if !ok {
		return nil, nil
	}
	cp := *edge
	return &cp, nil
}

func (s *MemoryStore) UniquePayees(_ context.Context, payer string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.payees[payer]), nil
}

func (s *MemoryStore) UniquePayers(_ context.Context, payee string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.payers[payee]), nil
}
