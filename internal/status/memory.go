package status

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/inkyu/botkeeper/internal/worker"
)

// Memory is an in-process Store for tests and single-node development.
type Memory struct {
	mu      sync.RWMutex
	rows    map[int64]Record
	configs map[int64]worker.Config
}

func NewMemory() *Memory {
	return &Memory{
		rows:    make(map[int64]Record),
		configs: make(map[int64]worker.Config),
	}
}

func (m *Memory) EnsureSchema(context.Context) error { return nil }

func (m *Memory) SetStatus(_ context.Context, owner int64, st Status, message string) error {
	m.mu.Lock()
	m.rows[owner] = Record{Owner: owner, Status: st, Message: message, UpdatedAt: time.Now().UTC()}
	m.mu.Unlock()
	return nil
}

func (m *Memory) GetStatus(_ context.Context, owner int64) (Record, error) {
	m.mu.RLock()
	rec, ok := m.rows[owner]
	m.mu.RUnlock()
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *Memory) List(context.Context) ([]Record, error) {
	m.mu.RLock()
	out := make([]Record, 0, len(m.rows))
	for _, rec := range m.rows {
		out = append(out, rec)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Owner < out[j].Owner })
	return out, nil
}

func (m *Memory) SaveConfig(_ context.Context, owner int64, cfg worker.Config) error {
	m.mu.Lock()
	m.configs[owner] = cfg
	m.mu.Unlock()
	return nil
}

func (m *Memory) GetConfig(_ context.Context, owner int64) (worker.Config, error) {
	m.mu.RLock()
	cfg, ok := m.configs[owner]
	m.mu.RUnlock()
	if !ok {
		return worker.Config{}, ErrNotFound
	}
	return cfg, nil
}

func (m *Memory) DeleteConfig(_ context.Context, owner int64) error {
	m.mu.Lock()
	delete(m.configs, owner)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }
