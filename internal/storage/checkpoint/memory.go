package checkpoint

import (
	"context"
	"sync"
	"time"
)

// Memory is a Journal that lives as long as the process. It backs runs
// configured without a journal path.
type Memory struct {
	mu      sync.RWMutex
	runs    map[string]Checkpoint
	history map[string][]Transition
}

func NewMemory() *Memory {
	return &Memory{
		runs:    make(map[string]Checkpoint),
		history: make(map[string][]Transition),
	}
}

func (m *Memory) Load(ctx context.Context, runID string) (Checkpoint, bool, error) {
	if runID == "" {
		return Checkpoint{}, false, ErrRunIDRequired
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp, ok := m.runs[runID]
	return cp, ok, nil
}

func (m *Memory) Save(ctx context.Context, cp Checkpoint, tr Transition) error {
	if cp.RunID == "" {
		return ErrRunIDRequired
	}
	now := time.Now().UTC()
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = now
	}
	if tr.CreatedAt.IsZero() {
		tr.CreatedAt = now
	}
	tr.State = cp.State
	cp.Pending = Pending{}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[cp.RunID] = cp
	m.history[cp.RunID] = append(m.history[cp.RunID], tr)
	return nil
}

func (m *Memory) SavePending(ctx context.Context, cp Checkpoint) error {
	if cp.RunID == "" {
		return ErrRunIDRequired
	}
	cp.UpdatedAt = time.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[cp.RunID] = cp
	return nil
}

func (m *Memory) History(ctx context.Context, runID string) ([]Transition, error) {
	if runID == "" {
		return nil, ErrRunIDRequired
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Transition(nil), m.history[runID]...), nil
}

func (m *Memory) Close() error { return nil }

var _ Journal = (*Memory)(nil)
