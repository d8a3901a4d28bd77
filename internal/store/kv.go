package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// KV is the scoped key-value persistence the answer store is built on.
// Implementations must be durable enough to survive a client reload within
// a section; the engine never assumes a specific storage medium.
type KV interface {
	// Get unmarshals the value for key into dest and reports whether the
	// key existed.
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
	Delete(ctx context.Context, key string) error
}

// Scope identifies one (session, test, section) triple. The token is part
// of the key so two independent sessions can never collide.
type Scope struct {
	Token     string
	TestID    string
	SectionID string
}

func (s Scope) Key() string {
	return fmt.Sprintf("session:%s:test:%s:section:%s", s.Token, s.TestID, s.SectionID)
}

type memoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryKV returns a process-local KV. It is not durable and is meant
// for tests and for running the service without a backing store.
func NewMemoryKV() KV {
	return &memoryKV{data: make(map[string][]byte)}
}

func (m *memoryKV) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	m.mu.RLock()
	raw, ok := m.data[key]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("failed to decode stored value for %s: %w", key, err)
	}
	return true, nil
}

func (m *memoryKV) Set(ctx context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode value for %s: %w", key, err)
	}
	m.mu.Lock()
	m.data[key] = raw
	m.mu.Unlock()
	return nil
}

func (m *memoryKV) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}
