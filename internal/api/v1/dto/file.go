package dto

import "time"

// FileResponseDTO is returned for a single submission
type FileResponseDTO struct {
	FileID      string    `json:"file_id"`
	UserID      string    `json:"user_id"`
	Field       string    `json:"field"`
	Title       string    `json:"title"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// OwnFilesResponseDTO lists the caller's submissions and quota usage
type OwnFilesResponseDTO struct {
	Files          []FileResponseDTO `json:"files"`
	UsedStorage    int64             `json:"used_storage"`
	AllowedStorage int64             `json:"allowed_storage"`
	PercentageUsed float64           `json:"percentage_used"`
}

// ReviewFileResponseDTO is a submission as listed for field review
type ReviewFileResponseDTO struct {
	FileResponseDTO
	Username string `json:"username"`
	Region   string `json:"region"`
}

// UploadInitiateDTO requests a presigned upload
type UploadInitiateDTO struct {
	Field    string `json:"field" validate:"required"`
	Title    string `json:"title" validate:"max=255"`
	Filename string `json:"filename"`
	Size     int64  `json:"size" validate:"required,gt=0"`
}

// UploadInitiateResponseDTO carries the presigned upload target
type UploadInitiateResponseDTO struct {
	StorageKey string    `json:"storage_key"`
	UploadURL  string    `json:"upload_url"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// UploadCompleteDTO records an object uploaded through a presigned URL
type UploadCompleteDTO struct {
	Field       string `json:"field" validate:"required"`
	Title       string `json:"title" validate:"max=255"`
	StorageKey  string `json:"storage_key" validate:"required"`
	ContentType string `json:"content_type"`
}

// DownloadURLResponseDTO carries a presigned download link
type DownloadURLResponseDTO struct {
	FileID string `json:"file_id"`
	URL    string `json:"url"`
}
