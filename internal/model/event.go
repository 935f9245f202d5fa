package model

import "time"

// SignalKind marks whether a signal opens or closes an event lifecycle.
type SignalKind string

const (
	SignalStarted SignalKind = "started"
	SignalEnded   SignalKind = "ended"
)

// Signal is emitted by pipeline business logic when an occupancy event
// starts or ends. Signals sharing an EventID belong to one lifecycle;
// seat-change events emit both kinds in the same frame.
type Signal struct {
	Kind      SignalKind `json:"kind"`
	EventID   string     `json:"eventId"`
	Detection Detection  `json:"detection"`
}

// Event is a persisted occupancy event record.
// This is a pure domain model with no database-specific dependencies or tags.
type Event struct {
	ID           string     `json:"id"`
	EventID      string     `json:"event_id"`
	StreamID     string     `json:"stream_id"`
	Kind         SignalKind `json:"kind"`
	Detection    Detection  `json:"detection"`
	SnapshotPath string     `json:"snapshot_path,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
