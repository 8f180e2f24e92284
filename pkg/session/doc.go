// Package session provides per-visitor page state and its lifecycle.
//
// A Session owns a State, the key/value store widgets write to and the params
// registry keeps its table in. Render passes for one session are serialized
// with Session.Run.
//
// # Lifecycle
//
// The Manager hands out sessions by ID, enforces per-IP and total limits,
// and evicts sessions that stay idle past IdleTimeout:
//
//	manager := session.NewManager(store, session.ManagerConfig{
//	    MaxSessions:      10000,
//	    MaxSessionsPerIP: 100,
//	    IdleTimeout:      30 * time.Minute,
//	    ResumeWindow:     24 * time.Hour,
//	}, logger)
//	sess, err := manager.GetOrCreate(ctx, cookieID, clientIP)
//
// # Snapshots
//
// An evicted session is written to the Store as a Snapshot: its last exported
// query string and export mode. Asking the manager for the same ID within
// ResumeWindow restores it, and the first render pass replays the saved
// query. Two stores are provided:
//
//	store := session.NewMemoryStore()
//	// or
//	store := session.NewSQLStore(db, session.WithSQLDialect(session.DialectPostgreSQL))
package session
