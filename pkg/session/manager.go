package session

import (
	"container/list"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager owns the live sessions of a server. It enforces per-IP and total
// limits, expires idle sessions and, when a Store is configured, keeps a
// snapshot of every evicted session so the visitor can resume it within
// ResumeWindow.
type Manager struct {
	mu sync.Mutex

	sessions map[string]*Session

	// Sessions in LRU order (front = most recently used).
	lru      *list.List
	lruIndex map[string]*list.Element

	sessionsByIP map[string]int

	config ManagerConfig
	store  Store
	logger *slog.Logger
	now    func() time.Time
	newID  func() string

	done    chan struct{}
	wg      sync.WaitGroup
	stopped bool
}

// ManagerConfig configures the session manager.
type ManagerConfig struct {
	// MaxSessions is the number of live sessions kept before the least
	// recently used one is evicted. Zero means no limit.
	// Default: 10000.
	MaxSessions int

	// MaxSessionsPerIP is the maximum number of live sessions per IP address.
	// Zero means no limit.
	// Default: 100.
	MaxSessionsPerIP int

	// IdleTimeout is how long a session may go unused before it is evicted.
	// Default: 30 minutes.
	IdleTimeout time.Duration

	// ResumeWindow is how long the snapshot of an evicted session stays
	// restorable.
	// Default: 24 hours.
	ResumeWindow time.Duration

	// CleanupInterval is how often idle sessions are looked for.
	// Default: 1 minute.
	CleanupInterval time.Duration
}

// DefaultManagerConfig returns a ManagerConfig with sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		MaxSessions:      10000,
		MaxSessionsPerIP: 100,
		IdleTimeout:      30 * time.Minute,
		ResumeWindow:     24 * time.Hour,
		CleanupInterval:  time.Minute,
	}
}

// Error types for session management.
var (
	// ErrTooManySessionsFromIP is returned when the per-IP session limit is exceeded.
	ErrTooManySessionsFromIP = errors.New("too many sessions from this IP address")

	// ErrManagerStopped is returned when operations are attempted on a stopped manager.
	ErrManagerStopped = errors.New("session manager is stopped")
)

// NewManager creates a session manager. store may be nil, in which case
// evicted sessions are simply dropped.
func NewManager(store Store, config ManagerConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultManagerConfig()
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = def.IdleTimeout
	}
	if config.ResumeWindow <= 0 {
		config.ResumeWindow = def.ResumeWindow
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = def.CleanupInterval
	}

	m := &Manager{
		sessions:     make(map[string]*Session),
		lru:          list.New(),
		lruIndex:     make(map[string]*list.Element),
		sessionsByIP: make(map[string]int),
		config:       config,
		store:        store,
		logger:       logger.With("component", "session_manager"),
		now:          time.Now,
		newID:        uuid.NewString,
		done:         make(chan struct{}),
	}

	m.wg.Add(1)
	go m.cleanupLoop()
	return m
}

// GetOrCreate returns the live session with the given id, restores it from
// the store if it was evicted within the resume window, or creates a fresh
// session. A fresh session never reuses a client-supplied id.
func (m *Manager) GetOrCreate(ctx context.Context, id, ip string) (*Session, error) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil, ErrManagerStopped
	}
	now := m.now()
	if sess, ok := m.sessions[id]; ok && id != "" {
		sess.touch(now)
		m.lru.MoveToFront(m.lruIndex[id])
		m.mu.Unlock()
		return sess, nil
	}
	if err := m.checkIPLocked(ip); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.mu.Unlock()

	// The store is consulted without holding the manager lock.
	var sess *Session
	if id != "" && m.store != nil {
		snap, err := m.loadSnapshot(ctx, id)
		if err != nil {
			m.logger.Warn("session snapshot unreadable", "session_id", id, "error", err)
		}
		if snap != nil {
			sess = restoreSession(snap, ip, now)
		}
	}
	if sess == nil {
		sess = newSession(m.newID(), ip, now)
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil, ErrManagerStopped
	}
	if existing, ok := m.sessions[sess.ID]; ok {
		// Lost a race with a concurrent restore of the same id.
		existing.touch(now)
		m.lru.MoveToFront(m.lruIndex[sess.ID])
		m.mu.Unlock()
		return existing, nil
	}
	if err := m.checkIPLocked(ip); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.addLocked(sess)
	var evicted []*Session
	for m.config.MaxSessions > 0 && len(m.sessions) > m.config.MaxSessions {
		if victim := m.popLRULocked(); victim != nil {
			evicted = append(evicted, victim)
		}
	}
	m.mu.Unlock()

	m.logger.Debug("session opened",
		"session_id", sess.ID,
		"ip", ip,
		"restored", sess.ID == id)
	m.persist(evicted, "session_limit")
	return sess, nil
}

// Get returns the live session with the given id, or nil.
func (m *Manager) Get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

// Close ends a session. Its snapshot, if any, is discarded.
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	if sess, ok := m.sessions[id]; ok {
		m.removeLocked(sess)
	}
	m.mu.Unlock()

	if m.store == nil {
		return nil
	}
	return m.store.Delete(ctx, id)
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown stops background cleanup and snapshots every live session.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	close(m.done)
	live := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		live = append(live, sess)
	}
	m.mu.Unlock()
	m.wg.Wait()

	if m.store == nil || len(live) == 0 {
		return nil
	}
	expiresAt := m.now().Add(m.config.ResumeWindow)
	records := make(map[string]Record, len(live))
	for _, sess := range live {
		data, err := EncodeSnapshot(sess.snapshot())
		if err != nil {
			return err
		}
		records[sess.ID] = Record{Data: data, ExpiresAt: expiresAt}
	}
	if err := m.store.SaveAll(ctx, records); err != nil {
		m.logger.Warn("failed to persist sessions on shutdown",
			"error", err,
			"count", len(records))
		return err
	}
	m.logger.Info("persisted sessions on shutdown", "count", len(records))
	return nil
}

func (m *Manager) checkIPLocked(ip string) error {
	if m.config.MaxSessionsPerIP > 0 && m.sessionsByIP[ip] >= m.config.MaxSessionsPerIP {
		return ErrTooManySessionsFromIP
	}
	return nil
}

func (m *Manager) addLocked(sess *Session) {
	m.sessions[sess.ID] = sess
	m.sessionsByIP[sess.IP]++
	m.lruIndex[sess.ID] = m.lru.PushFront(sess.ID)
}

func (m *Manager) removeLocked(sess *Session) {
	delete(m.sessions, sess.ID)
	m.sessionsByIP[sess.IP]--
	if m.sessionsByIP[sess.IP] <= 0 {
		delete(m.sessionsByIP, sess.IP)
	}
	if elem, ok := m.lruIndex[sess.ID]; ok {
		m.lru.Remove(elem)
		delete(m.lruIndex, sess.ID)
	}
}

// popLRULocked removes and returns the least recently used session.
func (m *Manager) popLRULocked() *Session {
	back := m.lru.Back()
	if back == nil {
		return nil
	}
	sess := m.sessions[back.Value.(string)]
	if sess == nil {
		m.lru.Remove(back)
		return nil
	}
	m.removeLocked(sess)
	return sess
}

func (m *Manager) loadSnapshot(ctx context.Context, id string) (*Snapshot, error) {
	data, err := m.store.Load(ctx, id)
	if err != nil || data == nil {
		return nil, err
	}
	snap, err := DecodeSnapshot(data)
	if err != nil {
		return nil, err
	}
	if err := m.store.Delete(ctx, id); err != nil {
		m.logger.Warn("failed to drop restored snapshot", "session_id", id, "error", err)
	}
	return snap, nil
}

// persist snapshots evicted sessions. It must be called without the
// manager lock.
func (m *Manager) persist(evicted []*Session, reason string) {
	for _, sess := range evicted {
		m.logger.Debug("evicted session", "session_id", sess.ID, "reason", reason)
		if m.store == nil {
			continue
		}
		data, err := EncodeSnapshot(sess.snapshot())
		if err != nil {
			m.logger.Warn("failed to encode session snapshot", "session_id", sess.ID, "error", err)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = m.store.Save(ctx, sess.ID, data, m.now().Add(m.config.ResumeWindow))
		cancel()
		if err != nil {
			m.logger.Warn("failed to persist evicted session", "session_id", sess.ID, "error", err)
		}
	}
}

func (m *Manager) cleanupLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.expireIdle()
		case <-m.done:
			return
		}
	}
}

// expireIdle evicts sessions unused for longer than IdleTimeout.
func (m *Manager) expireIdle() int {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return 0
	}
	now := m.now()
	var idle []*Session
	for _, sess := range m.sessions {
		if now.Sub(sess.LastActive()) > m.config.IdleTimeout {
			idle = append(idle, sess)
		}
	}
	for _, sess := range idle {
		m.removeLocked(sess)
	}
	remaining := len(m.sessions)
	m.mu.Unlock()

	if len(idle) > 0 {
		m.logger.Debug("expired idle sessions",
			"count", len(idle),
			"remaining", remaining)
	}
	m.persist(idle, "idle")
	return len(idle)
}
