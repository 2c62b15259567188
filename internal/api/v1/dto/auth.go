package dto

import "time"

// LoginDTO is used for incoming login requests
type LoginDTO struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponseDTO carries the issued access token
type LoginResponseDTO struct {
	AccessToken string          `json:"access_token"`
	TokenType   string          `json:"token_type"`
	ExpiresAt   time.Time       `json:"expires_at"`
	User        UserResponseDTO `json:"user"`
}
