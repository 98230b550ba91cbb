package riskprofile

import (
	"context"
	"sync"
	"time"

	"github.com/nmehta6/riskgate/internal/decision"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	params   Params
	mu       sync.Mutex
	profiles map[string]*Profile
}

// NewMemoryStore creates an in-memory profile store.
func NewMemoryStore(params Params) *MemoryStore {
	return &MemoryStore{
		params:   params,
		profiles: make(map[string]*Profile),
	}
}

// getOrCreate returns the payer's profile, creating the default one if
// missing. Caller holds s.mu.
func (s *MemoryStore) getOrCreate(payer string, at time.Time) (*Profile, bool) {
	if p, ok := s.profiles[payer]; ok {
		return p, true
	}
	p := &Profile{
		Payer:      payer,
		RiskScore:  DefaultScore,
		Thresholds: s.params.ThresholdsFor(DefaultScore),
		CreatedAt:  at,
		UpdatedAt:  at,
	}
	s.profiles[payer] = p
	return p, false
}

func (s *MemoryStore) GetThresholds(_ context.Context, payer string) (decision.Thresholds, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, existed := s.getOrCreate(payer, time.Now().UTC())
	return p.Thresholds, existed, nil
}

func (s *MemoryStore) ApplyDecision(_ context.Context, payer string, outcome decision.Outcome, at time.Time) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, _ := s.getOrCreate(payer, at)
	p.RiskScore = clampScore(p.RiskScore + DeltaFor(outcome))
	p.Thresholds = s.params.ThresholdsFor(p.RiskScore)
	p.UpdatedAt = at

	switch outcome {
	case decision.Block:
		p.BlockCount++
	case decision.StepUp:
		p.StepUpCount++
	default:
		p.AllowCount++
	}

	cp := *p
	return &cp, nil
}

func (s *MemoryStore) AdjustScore(_ context.Context, payer string, delta int, at time.Time) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, _ := s.getOrCreate(payer, at)
	p.RiskScore = clampScore(p.RiskScore + delta)
	p.Thresholds = s.params.ThresholdsFor(p.RiskScore)
	p.UpdatedAt = at

	cp := *p
	return &cp, nil
}

func (s *MemoryStore) Get(_ context.Context, payer string) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[payer]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}
