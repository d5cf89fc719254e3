package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Backend stores raw values with a TTL. Get reports a miss with ok=false
// and a nil error.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// DeleteMatching removes every key containing substr and returns how
	// many were removed.
	DeleteMatching(ctx context.Context, substr string) (int, error)
	Stats(ctx context.Context) (Stats, error)
	Name() string
}

type Stats struct {
	Type        string `json:"type"`
	Entries     int64  `json:"num_entries"`
	MemoryUsed  int64  `json:"memory_used,omitempty"`
	MemoryHuman string `json:"memory_human,omitempty"`
	Connected   bool   `json:"connected"`
	Error       string `json:"error,omitempty"`
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryBackend is a process-local Backend. Expired entries are dropped
// lazily on access and by Sweep.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *MemoryBackend) Name() string { return "in-memory" }

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil, false, nil
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	e := memoryEntry{value: stored}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryBackend) DeleteMatching(_ context.Context, substr string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.entries {
		if strings.Contains(k, substr) {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

// Sweep drops expired entries and returns how many were removed.
func (m *MemoryBackend) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for k, e := range m.entries {
		if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
			delete(m.entries, k)
			n++
		}
	}
	return n
}

func (m *MemoryBackend) Stats(_ context.Context) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{Type: m.Name(), Entries: int64(len(m.entries)), Connected: true}, nil
}
