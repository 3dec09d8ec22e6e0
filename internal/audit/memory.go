// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"sync"

	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/domain"
)

type MemoryStore struct {
	mu      sync.RWMutex
	entries []domain.AuditEntry
	seq     int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, entry domain.AuditEntry) (domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	entry.Seq = s.seq
	s.entries = append(s.entries, entry)
	return entry, nil
}

func (s *MemoryStore) Query(_ context.Context, executionID string) ([]domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.AuditEntry, 0, 16)
	for _, entry := range s.entries {
		if executionID == "" || entry.ExecutionID == executionID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = nil
	return nil
}
