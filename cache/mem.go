package cache

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemBackend keeps entries in process memory.
type MemBackend struct {
	mu      sync.Mutex
	entries map[string]*memEntry
	hints   map[string]Hint
}

func NewMemBackend() *MemBackend {
	return &MemBackend{
		entries: make(map[string]*memEntry),
		hints:   make(map[string]Hint),
	}
}

func (m *MemBackend) OpenEntry(ctx context.Context, key string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

func (m *MemBackend) CreateEntry(ctx context.Context, key string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; ok {
		return nil, ErrExists
	}
	e := &memEntry{backend: m, key: key}
	m.entries[key] = e
	return e, nil
}

func (m *MemBackend) DoomEntry(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *MemBackend) Hint(key string) Hint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hints[key]
}

func (m *MemBackend) SetHint(key string, hint Hint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hint == HintNone {
		delete(m.hints, key)
		return
	}
	m.hints[key] = hint
}

func (m *MemBackend) AllKeys(prefix string, cb func(string)) {
	m.mu.Lock()
	keys := make([]string, 0, len(m.entries))
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	m.mu.Unlock()
	sort.Strings(keys)
	for _, key := range keys {
		cb(key)
	}
}

// Len returns the number of live (not doomed) entries.
func (m *MemBackend) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *MemBackend) Close() error {
	return nil
}

type memEntry struct {
	backend *MemBackend
	key     string

	mu      sync.RWMutex
	streams [numStreams][]byte
	sparse  extents
}

func (e *memEntry) Key() string {
	return e.key
}

func (e *memEntry) DataSize(stream int) int64 {
	if validStream(stream) != nil {
		return 0
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return int64(len(e.streams[stream]))
}

func (e *memEntry) ReadData(ctx context.Context, stream int, offset int64, p []byte) (int, error) {
	if err := validStream(stream); err != nil {
		return 0, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return readAt(e.streams[stream], offset, p)
}

func (e *memEntry) WriteData(ctx context.Context, stream int, offset int64, p []byte, truncate bool) (int, error) {
	if err := validStream(stream); err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.streams[stream] = splice(e.streams[stream], offset, p, truncate)
	return len(p), nil
}

func (e *memEntry) ReadSparseData(ctx context.Context, offset int64, p []byte) (int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sparse.read(offset, p), nil
}

func (e *memEntry) WriteSparseData(ctx context.Context, offset int64, p []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sparse = e.sparse.write(offset, p)
	return len(p), nil
}

func (e *memEntry) GetAvailableRange(ctx context.Context, offset, length int64) (int64, int64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	start, n := e.sparse.available(offset, length)
	return start, n, nil
}

func (e *memEntry) Doom() error {
	m := e.backend
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries[e.key] == e {
		delete(m.entries, e.key)
	}
	return nil
}

func (e *memEntry) Close() error {
	return nil
}
