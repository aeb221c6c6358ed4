// Package store persists portfolio checkpoints and pricing memory.
package store

import (
	"context"
	"sync"

	"github.com/zappabad/cloutmarket/internal/portfolio"
	"github.com/zappabad/cloutmarket/internal/pricing"
)

// Store is the persistence boundary. Load methods report found=false for an
// absent key; that is not an error.
type Store interface {
	LoadPortfolio(ctx context.Context, userID string) (portfolio.Checkpoint, bool, error)
	SavePortfolio(ctx context.Context, cp portfolio.Checkpoint) error
	LoadPricingMemory(ctx context.Context, instrumentID string) (pricing.Memory, bool, error)
	SavePricingMemory(ctx context.Context, instrumentID string, m pricing.Memory) error
	Close() error
}

// MemoryStore keeps checkpoints in process. It is used when no redis
// address is configured and in tests.
type MemoryStore struct {
	mu         sync.RWMutex
	portfolios map[string]portfolio.Checkpoint
	memory     map[string]pricing.Memory
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		portfolios: make(map[string]portfolio.Checkpoint),
		memory:     make(map[string]pricing.Memory),
	}
}

func (s *MemoryStore) LoadPortfolio(ctx context.Context, userID string) (portfolio.Checkpoint, bool, error) {
	if err := ctx.Err(); err != nil {
		return portfolio.Checkpoint{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.portfolios[userID]
	if ok {
		cp.Holdings = append([]portfolio.HoldingCheckpoint(nil), cp.Holdings...)
	}
	return cp, ok, nil
}

func (s *MemoryStore) SavePortfolio(ctx context.Context, cp portfolio.Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp.Holdings = append([]portfolio.HoldingCheckpoint(nil), cp.Holdings...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.portfolios[cp.UserID] = cp
	return nil
}

func (s *MemoryStore) LoadPricingMemory(ctx context.Context, instrumentID string) (pricing.Memory, bool, error) {
	if err := ctx.Err(); err != nil {
		return pricing.Memory{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memory[instrumentID]
	return m, ok, nil
}

func (s *MemoryStore) SavePricingMemory(ctx context.Context, instrumentID string, m pricing.Memory) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memory[instrumentID] = m
	return nil
}

func (s *MemoryStore) Close() error { return nil }
