// Package checkpoint holds the in-process and file-backed implementations of
// workflow.Checkpointer. Both store the encoded form so a resumed state is
// byte-identical to what was saved.
package checkpoint

import (
	"context"
	"sync"

	"book_ghostwriter/workflow"
)

// MemoryStore keeps checkpoints in a map. It is safe for concurrent use.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Load(ctx context.Context, id string) (workflow.State, error) {
	if err := ctx.Err(); err != nil {
		return workflow.State{}, err
	}
	m.mu.RLock()
	raw, ok := m.data[id]
	m.mu.RUnlock()
	if !ok {
		return workflow.State{}, workflow.ErrCheckpointNotFound
	}
	return workflow.DecodeState(id, raw)
}

func (m *MemoryStore) Save(ctx context.Context, id string, st workflow.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := workflow.EncodeState(st)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[id] = raw
	m.mu.Unlock()
	return nil
}

// Raw returns a copy of the stored bytes for id.
func (m *MemoryStore) Raw(id string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	raw, ok := m.data[id]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), raw...), true
}

// PutRaw stores bytes for id without validating them.
func (m *MemoryStore) PutRaw(id string, raw []byte) {
	m.mu.Lock()
	m.data[id] = append([]byte(nil), raw...)
	m.mu.Unlock()
}

// IDs lists the stored conversation ids.
func (m *MemoryStore) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.data))
	for id := range m.data {
		ids = append(ids, id)
	}
	return ids
}
