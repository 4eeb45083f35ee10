package store

import (
	"context"
	"sort"
	"sync"

	"github.com/leo2971998/trustagent/pkg/ap2"
)

// Memory is the in-process mandate registry. All reads return copies, so
// callers can never mutate stored state behind the lock.
type Memory struct {
	mu       sync.RWMutex
	mandates map[string]ap2.Mandate
}

func NewMemory() *Memory {
	return &Memory{mandates: map[string]ap2.Mandate{}}
}

func (s *Memory) CreateMandate(_ context.Context, m ap2.Mandate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mandates[m.ID] = m
	return nil
}

func (s *Memory) GetMandate(_ context.Context, id string) (ap2.Mandate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.mandates[id]
	if !ok {
		return ap2.Mandate{}, ErrNotFound
	}
	return m, nil
}

func (s *Memory) ListMandates(_ context.Context, userID string, status *ap2.Status) ([]ap2.Mandate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ap2.Mandate
	for _, m := range s.mandates {
		if m.UserID != userID {
			continue
		}
		if status != nil && m.Status != *status {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Memory) UpdateMandate(_ context.Context, m ap2.Mandate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.mandates[m.ID]; !ok {
		return ErrNotFound
	}
	s.mandates[m.ID] = m
	return nil
}
