// Package asset holds the persistent video asset model and its lifecycle.
package asset

import (
	"fmt"
	"time"
)

// Status is the processing state of an asset. The set is closed; every
// transition goes through CanTransition.
type Status string

const (
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
)

// ParseStatus validates a stored status value.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusUploading, StatusProcessing, StatusReady, StatusFailed:
		return Status(s), nil
	default:
		return "", fmt.Errorf("unknown asset status %q", s)
	}
}

// CanTransition reports whether moving from s to next is a legal lifecycle
// step. Only the ingest coordinator (uploading → ready/processing/failed) and
// the processing callback (processing → ready/failed) produce transitions;
// ready and failed are terminal.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusUploading:
		return next == StatusReady || next == StatusProcessing || next == StatusFailed
	case StatusProcessing:
		return next == StatusReady || next == StatusFailed
	default:
		return false
	}
}

// Streamable reports whether the read path may serve files for this status.
func (s Status) Streamable() bool {
	return s == StatusReady
}

// Asset is the logical video: a committed bundle plus metadata.
type Asset struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"owner_id"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	MasterPlaylist string    `json:"master_playlist"`
	FileCount      int       `json:"file_count"`
	TotalSize      int64     `json:"total_size"`
	DurationSec    *int      `json:"duration,omitempty"`
	ThumbnailPath  *string   `json:"thumbnail_path,omitempty"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
