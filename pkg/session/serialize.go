package session

import (
	"encoding/json"
	"fmt"
	"time"
)

// Snapshot is the persisted form of an evicted session.
type Snapshot struct {
	// ID is the session identifier.
	ID string `json:"id"`

	// IP is the client address the session was created for.
	IP string `json:"ip,omitempty"`

	// CreatedAt is when the session was created.
	CreatedAt time.Time `json:"created_at"`

	// LastActive is when the session last ran a render pass.
	LastActive time.Time `json:"last_active"`

	// Query is the last exported query string, already encoded.
	Query string `json:"query"`

	// ExportAll is the session's export mode.
	ExportAll bool `json:"export_all"`

	// Version is the serialization format version.
	Version int `json:"version"`
}

// CurrentSnapshotVersion is the current version of the snapshot format.
const CurrentSnapshotVersion = 1

// EncodeSnapshot converts a snapshot to bytes.
func EncodeSnapshot(snap *Snapshot) ([]byte, error) {
	snap.Version = CurrentSnapshotVersion
	return json.Marshal(snap)
}

// DecodeSnapshot converts bytes back to a snapshot.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	if snap.Version > CurrentSnapshotVersion {
		return nil, fmt.Errorf("session: snapshot version %d is newer than %d", snap.Version, CurrentSnapshotVersion)
	}
	if snap.ID == "" {
		return nil, fmt.Errorf("session: snapshot without id")
	}
	return &snap, nil
}
