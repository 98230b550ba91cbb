package thresholds

import (
	"context"
	"sync"

	"github.com/nmehta6/riskgate/internal/decision"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu sync.Mutex
	th decision.Thresholds
}

// NewMemoryStore creates an in-memory store seeded with the defaults.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{th: decision.Thresholds{Block: DefaultBlock, StepUp: DefaultStepUp}}
}

func (s *MemoryStore) Get(_ context.Context) (decision.Thresholds, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.th, nil
}

func (s *MemoryStore) Tighten(_ context.Context) (decision.Thresholds, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := tighten(s.th)
	changed := next != s.th
	s.th = next
	return next, changed, nil
}

func (s *MemoryStore) Relax(_ context.Context) (decision.Thresholds, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := relax(s.th)
	changed := next != s.th
	s.th = next
	return next, changed, nil
}
