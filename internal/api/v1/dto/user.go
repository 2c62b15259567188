package dto

import "time"

// UserCreateDTO is used for incoming admin create-user requests
type UserCreateDTO struct {
	Username         string `json:"username" validate:"required,max=150"`
	Password         string `json:"password" validate:"required,max=72"`
	UserType         string `json:"user_type" validate:"required,oneof=normal field_manager"`
	Region           string `json:"region" validate:"required"`
	Field            string `json:"field,omitempty" validate:"required_if=UserType field_manager"`
	AllowedStorageGB *int64 `json:"allowed_storage_gb,omitempty" validate:"omitempty,min=0,max=8589934591"`
}

// UserStorageUpdateDTO changes a user's allowance
type UserStorageUpdateDTO struct {
	AllowedStorageGB *int64 `json:"allowed_storage_gb" validate:"required,min=0,max=8589934591"`
}

// UserResponseDTO is returned in API responses
type UserResponseDTO struct {
	UserID         string    `json:"user_id"`
	Username       string    `json:"username"`
	IsSuperuser    bool      `json:"is_superuser"`
	UserType       string    `json:"user_type,omitempty"`
	Region         string    `json:"region,omitempty"`
	Field          *string   `json:"field,omitempty"`
	AllowedStorage int64     `json:"allowed_storage"`
	CreatedAt      time.Time `json:"created_at"`
}

// UserStorageResponseDTO is a row of the admin user overview
type UserStorageResponseDTO struct {
	UserResponseDTO
	UsedStorage    int64             `json:"used_storage"`
	PercentageUsed float64           `json:"percentage_used"`
	Files          []FileResponseDTO `json:"files"`
}

// DeleteResponseDTO is returned by file and user deletion
type DeleteResponseDTO struct {
	Deleted  string   `json:"deleted"`
	Warnings []string `json:"warnings"`
}
