package model

import "time"

// CleanupJob is a queued request to remove an object whose deletion failed
// while its database record was already removed.
type CleanupJob struct {
	StorageKey string    `json:"storage_key"`
	FileID     string    `json:"file_id"`
	UserID     string    `json:"user_id"`
	Reason     string    `json:"reason"`
	QueuedAt   time.Time `json:"queued_at"`
}

// FileEvent is published when a submission is created or removed.
type FileEvent struct {
	Type       string    `json:"type"`
	FileID     string    `json:"file_id,omitempty"`
	UserID     string    `json:"user_id"`
	Field      string    `json:"field,omitempty"`
	Size       int64     `json:"size,omitempty"`
	ActorID    string    `json:"actor_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

const (
	EventFileUploaded = "file.uploaded"
	EventFileDeleted  = "file.deleted"
	EventUserDeleted  = "user.deleted"
)
