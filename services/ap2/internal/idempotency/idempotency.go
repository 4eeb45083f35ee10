// Package idempotency replays mandate-creation responses so a retried create
// call never mints a second mandate for the same key.
package idempotency

import (
	"context"
	"encoding/json"
	"sync"
)

// Store persists recorded responses keyed by user, idempotency key, and
// endpoint.
type Store interface {
	GetRecord(ctx context.Context, userID, key, endpoint string) (int, json.RawMessage, bool, error)
	SaveRecord(ctx context.Context, userID, key, endpoint string, status int, body json.RawMessage) error
}

// Replay returns the recorded response for the key, if any. An empty key
// disables replay.
func Replay(ctx context.Context, st Store, userID, key, endpoint string) (int, json.RawMessage, bool, error) {
	if key == "" {
		return 0, nil, false, nil
	}
	return st.GetRecord(ctx, userID, key, endpoint)
}

// Save records a response for later replay. An empty key is a no-op.
func Save(ctx context.Context, st Store, userID, key, endpoint string, status int, body json.RawMessage) error {
	if key == "" {
		return nil
	}
	return st.SaveRecord(ctx, userID, key, endpoint, status, body)
}

// Memory is the in-process record store. Creation records are small and
// short-lived, so process-local retention is enough for every deployment the
// service currently has.
type Memory struct {
	mu      sync.RWMutex
	records map[string]record
}

type record struct {
	status int
	body   json.RawMessage
}

func NewMemory() *Memory {
	return &Memory{records: map[string]record{}}
}

func (s *Memory) GetRecord(_ context.Context, userID, key, endpoint string) (int, json.RawMessage, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[userID+"\x00"+key+"\x00"+endpoint]
	if !ok {
		return 0, nil, false, nil
	}
	return rec.status, rec.body, true, nil
}

func (s *Memory) SaveRecord(_ context.Context, userID, key, endpoint string, status int, body json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[userID+"\x00"+key+"\x00"+endpoint] = record{status: status, body: body}
	return nil
}
