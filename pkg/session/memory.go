package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps snapshots in process memory. Snapshots survive session
// eviction but not a restart; use SQLStore for that.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	closed  bool
	done    chan struct{}
	wg      sync.WaitGroup
	now     func() time.Time
}

// MemoryStoreOption configures MemoryStore behavior.
type MemoryStoreOption func(*memoryStoreConfig)

type memoryStoreConfig struct {
	cleanupInterval time.Duration
}

// WithCleanupInterval sets how often expired snapshots are dropped.
// Default: 1 minute.
func WithCleanupInterval(d time.Duration) MemoryStoreOption {
	return func(c *memoryStoreConfig) {
		if d > 0 {
			c.cleanupInterval = d
		}
	}
}

// NewMemoryStore creates an in-memory store. Close stops its cleanup
// goroutine.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	cfg := &memoryStoreConfig{cleanupInterval: time.Minute}
	for _, opt := range opts {
		opt(cfg)
	}

	m := &MemoryStore{
		records: make(map[string]Record),
		done:    make(chan struct{}),
		now:     time.Now,
	}
	m.wg.Add(1)
	go m.cleanupLoop(cfg.cleanupInterval)
	return m
}

// Save stores a copy of data.
func (m *MemoryStore) Save(ctx context.Context, sessionID string, data []byte, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	m.records[sessionID] = Record{Data: clone(data), ExpiresAt: expiresAt}
	return nil
}

// Load returns a copy of the snapshot if it exists and hasn't expired.
func (m *MemoryStore) Load(ctx context.Context, sessionID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	rec, ok := m.records[sessionID]
	if !ok || !m.now().Before(rec.ExpiresAt) {
		return nil, nil
	}
	return clone(rec.Data), nil
}

// Delete removes a snapshot.
func (m *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	delete(m.records, sessionID)
	return nil
}

// SaveAll stores every record under one lock.
func (m *MemoryStore) SaveAll(ctx context.Context, records map[string]Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	for id, rec := range records {
		m.records[id] = Record{Data: clone(rec.Data), ExpiresAt: rec.ExpiresAt}
	}
	return nil
}

// Close drops all snapshots and stops the cleanup goroutine.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.done)
	m.records = nil
	m.mu.Unlock()

	m.wg.Wait()
	return nil
}

// Count returns the number of stored snapshots, expired ones included.
func (m *MemoryStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *MemoryStore) cleanupLoop(interval time.Duration) {
	defer m.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanup()
		case <-m.done:
			return
		}
	}
}

func (m *MemoryStore) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	now := m.now()
	for id, rec := range m.records {
		if !now.Before(rec.ExpiresAt) {
			delete(m.records, id)
		}
	}
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
