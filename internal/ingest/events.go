package ingest

import "time"

// ProcessingJob is published after a bundle commits, asking the external
// media processor for duration and a thumbnail.
type ProcessingJob struct {
	AssetID        string    `json:"asset_id"`
	Directory      string    `json:"directory"`
	MasterPlaylist string    `json:"master_playlist"`
	FileCount      int       `json:"file_count"`
	TotalSize      int64     `json:"total_size"`
	Checksum       string    `json:"checksum"`
	RequestedAt    time.Time `json:"requested_at"`
}

// ProcessingResult is consumed from the media processor. Either Error is set
// or Duration/ThumbnailPath carry the extracted metadata.
type ProcessingResult struct {
	AssetID       string    `json:"asset_id"`
	DurationSec   *int      `json:"duration,omitempty"`
	ThumbnailPath *string   `json:"thumbnail_path,omitempty"`
	Error         string    `json:"error,omitempty"`
	CompletedAt   time.Time `json:"completed_at"`
}
