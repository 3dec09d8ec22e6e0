// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/domain"
)

type MemoryStore struct {
	mu     sync.RWMutex
	chains map[string]domain.Chain
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{chains: make(map[string]domain.Chain)}
}

func (s *MemoryStore) Put(_ context.Context, chain domain.Chain) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.chains[chain.ID] = chain.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (domain.Chain, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chain, ok := s.chains[id]
	if !ok {
		return domain.Chain{}, false, nil
	}
	return chain.Clone(), true, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chains[id]; !ok {
		return false, nil
	}
	delete(s.chains, id)
	return true, nil
}

func (s *MemoryStore) List(_ context.Context) ([]domain.Chain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Chain, 0, len(s.chains))
	for _, chain := range s.chains {
		out = append(out, chain.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
