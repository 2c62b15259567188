package dto

import "time"

// PhaseDTO is both the phase read response and the update request
type PhaseDTO struct {
	Phase     string     `json:"phase" validate:"required,oneof=one two"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}
