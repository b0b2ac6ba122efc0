// Package idempotency remembers which side effects were already applied so
// a retried step does not apply them twice.
package idempotency

import (
	"context"
	"fmt"
	"sync"
)

type Store interface {
	Seen(ctx context.Context, key string) (bool, error)
	Remember(ctx context.Context, key string) error
}

// Key identifies one side effect of one node evaluation.
func Key(executionID, nodeID string, epoch int64) string {
	return fmt.Sprintf("%s:%s:%d", executionID, nodeID, epoch)
}

// Memory is an in-process Store.
type Memory struct {
	mu   sync.RWMutex
	keys map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{keys: make(map[string]struct{})}
}

func (m *Memory) Seen(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.keys[key]

	return ok, nil
}

func (m *Memory) Remember(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.keys[key] = struct{}{}

	return nil
}
