package checkpoint

import (
	"context"
	"sync"
)

// Memory keeps checkpoints in process memory. It is meant for tests and
// one-shot replays.
type Memory struct {
	mu  sync.Mutex
	cps map[int]Checkpoint
	// FailSave, when set, is returned by Save instead of storing.
	FailSave error
}

func NewMemory() *Memory {
	return &Memory{cps: make(map[int]Checkpoint)}
}

func (m *Memory) Load(_ context.Context, shard int) (Checkpoint, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.cps[shard]
	return cp, ok, nil
}

func (m *Memory) Save(_ context.Context, cp Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSave != nil {
		return m.FailSave
	}
	prev, ok := m.cps[cp.Shard]
	if err := advance(prev, ok, cp); err != nil {
		return err
	}
	m.cps[cp.Shard] = cp
	return nil
}

func (m *Memory) Close() error { return nil }
