package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"portal/internal/api/v1/dto"
	"portal/internal/middleware"
	"portal/internal/model"
	"portal/internal/policy"
	"portal/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeServiceError maps service errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error, logger zerolog.Logger) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		http.Error(w, verr.Error(), http.StatusBadRequest)
	case errors.Is(err, service.ErrInvalidCredentials):
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
	case errors.Is(err, service.ErrProtectedUser):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, service.ErrForbidden):
		http.Error(w, "Forbidden: "+err.Error(), http.StatusForbidden)
	case errors.Is(err, service.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, service.ErrDuplicateField):
		http.Error(w, "duplicate_field: you already submitted a file for this field", http.StatusConflict)
	case errors.Is(err, service.ErrUsernameTaken):
		http.Error(w, "username_taken: username already exists", http.StatusConflict)
	case errors.Is(err, service.ErrQuotaExceeded):
		http.Error(w, "quota_exceeded: upload exceeds your storage allowance", http.StatusRequestEntityTooLarge)
	case errors.Is(err, service.ErrStore):
		logger.Error().Err(err).Msg("Object store failure")
		http.Error(w, "store_error: storage backend failed", http.StatusBadGateway)
	default:
		logger.Error().Err(err).Msg("Internal error")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, validate *validator.Validate, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func actorFrom(w http.ResponseWriter, r *http.Request) (policy.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized: user not found in context", http.StatusUnauthorized)
	}
	return actor, ok
}

func toFileDTO(f model.UploadedFile) dto.FileResponseDTO {
	return dto.FileResponseDTO{
		FileID:      f.ID,
		UserID:      f.UserID,
		Field:       f.Field,
		Title:       f.Title,
		Size:        f.Size,
		ContentType: f.ContentType,
		UploadedAt:  f.UploadedAt,
	}
}

func toFileDTOs(files []model.UploadedFile) []dto.FileResponseDTO {
	out := make([]dto.FileResponseDTO, 0, len(files))
	for _, f := range files {
		out = append(out, toFileDTO(f))
	}
	return out
}

func toUserDTO(u model.UserWithProfile) dto.UserResponseDTO {
	resp := dto.UserResponseDTO{
		UserID:      u.ID,
		Username:    u.Username,
		IsSuperuser: u.IsSuperuser,
		CreatedAt:   u.CreatedAt,
	}
	if u.Profile != nil {
		resp.UserType = string(u.Profile.UserType)
		resp.Region = u.Profile.Region
		resp.Field = u.Profile.Field
		resp.AllowedStorage = u.Profile.AllowedStorage
	}
	return resp
}
