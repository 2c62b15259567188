package model

import "time"

// UploadedFile is a submission stored in the object store under StorageKey.
// Size is the byte count reported by the store, never the client's claim.
type UploadedFile struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	Field       string    `db:"field" json:"field"`
	Title       string    `db:"title" json:"title"`
	Size        int64     `db:"size" json:"size"`
	StorageKey  string    `db:"storage_key" json:"storage_key"`
	ContentType string    `db:"content_type" json:"content_type"`
	UploadedAt  time.Time `db:"uploaded_at" json:"uploaded_at"`
}

// ReviewFile is a submission as seen by a field reviewer, with owner details.
type ReviewFile struct {
	UploadedFile
	Username string `db:"username" json:"username"`
	Region   string `db:"region" json:"region"`
}

// PhaseState is the persisted workflow switch.
type PhaseState struct {
	IsPhaseOne bool      `db:"is_phase_one" json:"is_phase_one"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}
