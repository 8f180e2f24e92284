package session

import (
	"context"
	"errors"
	"time"
)

// Store persists snapshots of evicted sessions for the resume window.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save persists a snapshot. An existing entry for sessionID is overwritten.
	Save(ctx context.Context, sessionID string, data []byte, expiresAt time.Time) error

	// Load retrieves a snapshot by ID.
	// Returns (nil, nil) if the entry doesn't exist or has expired.
	Load(ctx context.Context, sessionID string) ([]byte, error)

	// Delete removes an entry. Deleting a missing entry is not an error.
	Delete(ctx context.Context, sessionID string) error

	// SaveAll persists several snapshots, atomically where the backend allows.
	// Used on shutdown.
	SaveAll(ctx context.Context, records map[string]Record) error

	// Close releases resources held by the store.
	Close() error
}

// Record is one snapshot with its expiry.
type Record struct {
	Data      []byte
	ExpiresAt time.Time
}

// ErrStoreClosed is returned when operations are attempted on a closed store.
var ErrStoreClosed = errors.New("session store is closed")
