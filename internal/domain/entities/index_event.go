package entities

import "time"

// IndexEventType represents the type of index lifecycle event
type IndexEventType string

const (
	IndexEventRebuilt IndexEventType = "index_rebuilt"
	IndexEventFailed  IndexEventType = "index_rebuild_failed"
)

// IndexEvent is broadcast to other replicas after the shared index cache changes.
type IndexEvent struct {
	ID          string         `json:"id"`
	Type        IndexEventType `json:"type"`
	Origin      string         `json:"origin"`
	Fingerprint string         `json:"fingerprint"`
	Model       string         `json:"model"`
	Entries     int            `json:"entries"`
	Error       string         `json:"error,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}
