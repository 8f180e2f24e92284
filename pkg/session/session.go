package session

import (
	"sync"
	"time"

	"github.com/vango-dev/params/pkg/params"
)

// Session is one visitor's page state. Render passes for a session must not
// overlap; Run serializes them.
type Session struct {
	// ID is the unique session identifier, also sent as the session cookie.
	ID string

	// IP is the client IP address for per-IP limiting.
	IP string

	// CreatedAt is when the session was created.
	CreatedAt time.Time

	mu         sync.Mutex
	state      *State
	lastActive time.Time
	query      string
	resume     string
}

func newSession(id, ip string, now time.Time) *Session {
	return &Session{
		ID:         id,
		IP:         ip,
		CreatedAt:  now,
		state:      NewState(),
		lastActive: now,
	}
}

// State returns the session's key/value store.
func (s *Session) State() *State {
	return s.state
}

// Run calls fn with the session state while holding the session lock.
func (s *Session) Run(fn func(*State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()
	return fn(s.state)
}

// LastActive returns when the session last ran a render pass or was fetched
// from the manager.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// SetQuery records the query string most recently exported for the session.
// It is what a snapshot preserves.
func (s *Session) SetQuery(raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.query = raw
}

// Query returns the query string most recently exported for the session.
func (s *Session) Query() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query
}

// TakeResumeQuery returns the query string saved with a restored session
// and clears it, so only the first render pass after a restore sees it.
// It returns "" for sessions that were not restored.
func (s *Session) TakeResumeQuery() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.resume
	s.resume = ""
	return q
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastActive = now
	s.mu.Unlock()
}

// snapshot captures what survives eviction: the exported query and the
// export-all flag. Parameters themselves are rebuilt from the query on the
// next render pass.
func (s *Session) snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, _ := s.state.Get(params.ExportAllKey).(bool)
	return &Snapshot{
		ID:         s.ID,
		IP:         s.IP,
		CreatedAt:  s.CreatedAt,
		LastActive: s.lastActive,
		Query:      s.query,
		ExportAll:  all,
	}
}

func restoreSession(snap *Snapshot, ip string, now time.Time) *Session {
	s := newSession(snap.ID, ip, now)
	if !snap.CreatedAt.IsZero() {
		s.CreatedAt = snap.CreatedAt
	}
	s.query = snap.Query
	s.resume = snap.Query
	s.state.Set(params.ExportAllKey, snap.ExportAll)
	return s
}
