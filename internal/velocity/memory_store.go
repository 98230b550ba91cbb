package velocity

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]Record // payer → records in insertion order
}

// NewMemoryStore creates an in-memory velocity store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]Record)}
}

func (s *MemoryStore) Record(_ context.Context, payer string, amount float64, timestamp time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[payer] = append(s.records[payer], Record{
		Payer:     payer,
		Amount:    amount,
		Timestamp: timestamp,
	})
	return nil
}

func (s *MemoryStore) Features(_ context.Context, payer string, now time.Time) (Features, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var f Features
	var sum7d float64
	var n7d int

	hourAgo := now.Add(-WindowShort)
	dayAgo := now.Add(-WindowDay)
	weekAgo := now.Add(-WindowWeek)

	for _, r := range s.records[payer] {
		if r.Timestamp.Before(weekAgo) || r.Timestamp.After(now) {
			continue
		}
		sum7d += r.Amount
		n7d++
		if !r.Timestamp.Before(dayAgo) {
			f.Count24h++
		}
		if !r.Timestamp.Before(hourAgo) {
			f.Count1h++
		}
	}

	if n7d > 0 {
		f.AvgAmount7d = sum7d / float64(n7d)
	}
	return f, nil
}
