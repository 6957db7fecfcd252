package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Memory is a fixed-window limiter kept in process memory.
type Memory struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	start time.Time
	count int
}

// NewMemory allows limit events per key within each window.
// A limit <= 0 disables limiting.
func NewMemory(limit int, per time.Duration) *Memory {
	if per <= 0 {
		per = time.Minute
	}
	return &Memory{
		limit:   limit,
		window:  per,
		now:     time.Now,
		windows: make(map[string]*window),
	}
}

// Allow counts one event for key.
func (m *Memory) Allow(_ context.Context, key string) (bool, error) {
	if m == nil || m.limit <= 0 {
		return true, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w, ok := m.windows[key]
	if !ok || now.Sub(w.start) >= m.window {
		m.windows[key] = &window{start: now, count: 1}
		return true, nil
	}
	w.count++
	return w.count <= m.limit, nil
}

// Forget drops the state for key, e.g. when its connection closes.
func (m *Memory) Forget(key string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	delete(m.windows, key)
	m.mu.Unlock()
}
