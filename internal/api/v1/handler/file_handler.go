package handler

import (
	"io"
	"mime"
	"net/http"
	"strconv"

	"portal/internal/api/v1/dto"
	"portal/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// multipartMemory is how much of a multipart body is kept in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

// FileHandler serves the caller's own submissions
type FileHandler struct {
	fileService    service.FileService
	validate       *validator.Validate
	maxUploadBytes int64
	logger         zerolog.Logger
}

// NewFileHandler creates a new FileHandler
func NewFileHandler(fileService service.FileService, validate *validator.Validate, maxUploadBytes int64, logger zerolog.Logger) *FileHandler {
	return &FileHandler{
		fileService:    fileService,
		validate:       validate,
		maxUploadBytes: maxUploadBytes,
		logger:         logger.With().Str("handler", "FileHandler").Logger(),
	}
}

// RegisterRoutes mounts file routes under /files
func (h *FileHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("GET /files", authMw(http.HandlerFunc(h.listFiles)))
	mux.Handle("POST /files", authMw(http.HandlerFunc(h.uploadFile)))
	mux.Handle("POST /files/uploads", authMw(http.HandlerFunc(h.initiateUpload)))
	mux.Handle("POST /files/uploads/complete", authMw(http.HandlerFunc(h.completeUpload)))
	mux.Handle("GET /files/{fileId}", authMw(http.HandlerFunc(h.getFile)))
	mux.Handle("DELETE /files/{fileId}", authMw(http.HandlerFunc(h.deleteFile)))
	mux.Handle("GET /files/{fileId}/download", authMw(http.HandlerFunc(h.downloadURL)))
	mux.Handle("GET /files/{fileId}/content", authMw(http.HandlerFunc(h.downloadContent)))
}

// listFiles godoc
// @Summary List own files
// @Description Lists the caller's submissions with used and allowed storage.
// @Tags files
// @Produce json
// @Success 200 {object} dto.OwnFilesResponseDTO
// @Failure 401 {string} string "Unauthorized"
// @Router /files [get]
func (h *FileHandler) listFiles(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	own, err := h.fileService.ListOwn(r.Context(), actor)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, dto.OwnFilesResponseDTO{
		Files:          toFileDTOs(own.Files),
		UsedStorage:    own.UsedStorage,
		AllowedStorage: own.AllowedStorage,
		PercentageUsed: own.PercentageUsed,
	})
}

// uploadFile godoc
// @Summary Upload a file
// @Description Uploads one file for a field as multipart/form-data (field, title, file).
// @Tags files
// @Accept mpfd
// @Produce json
// @Success 201 {object} dto.FileResponseDTO
// @Failure 400 {string} string "Invalid upload"
// @Failure 403 {string} string "Forbidden"
// @Failure 409 {string} string "duplicate_field"
// @Failure 413 {string} string "quota_exceeded"
// @Failure 502 {string} string "store_error"
// @Router /files [post]
func (h *FileHandler) uploadFile(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartMemory)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		http.Error(w, "Invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Missing file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	f, err := h.fileService.Upload(r.Context(), actor, service.UploadInput{
		Field:       r.FormValue("field"),
		Title:       r.FormValue("title"),
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, toFileDTO(*f))
}

// initiateUpload godoc
// @Summary Start a direct upload
// @Description Checks policy, uniqueness and quota against the declared size and returns a presigned PUT URL.
// @Tags files
// @Accept json
// @Produce json
// @Param upload body dto.UploadInitiateDTO true "Upload request"
// @Success 200 {object} dto.UploadInitiateResponseDTO
// @Router /files/uploads [post]
func (h *FileHandler) initiateUpload(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req dto.UploadInitiateDTO
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}
	ticket, err := h.fileService.InitiateUpload(r.Context(), actor, service.InitiateUploadInput{
		Field:    req.Field,
		Title:    req.Title,
		Filename: req.Filename,
		Size:     req.Size,
	})
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, dto.UploadInitiateResponseDTO{
		StorageKey: ticket.StorageKey,
		UploadURL:  ticket.UploadURL,
		ExpiresAt:  ticket.ExpiresAt,
	})
}

// completeUpload godoc
// @Summary Complete a direct upload
// @Description Records an object uploaded through a presigned URL, sized by the object store.
// @Tags files
// @Accept json
// @Produce json
// @Param upload body dto.UploadCompleteDTO true "Completion request"
// @Success 201 {object} dto.FileResponseDTO
// @Router /files/uploads/complete [post]
func (h *FileHandler) completeUpload(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req dto.UploadCompleteDTO
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}
	f, err := h.fileService.CompleteUpload(r.Context(), actor, service.CompleteUploadInput{
		Field:       req.Field,
		Title:       req.Title,
		StorageKey:  req.StorageKey,
		ContentType: req.ContentType,
	})
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, toFileDTO(*f))
}

// getFile godoc
// @Summary Get a file
// @Tags files
// @Produce json
// @Param fileId path string true "File ID"
// @Success 200 {object} dto.FileResponseDTO
// @Failure 403 {string} string "Forbidden"
// @Failure 404 {string} string "Not found"
// @Router /files/{fileId} [get]
func (h *FileHandler) getFile(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	f, err := h.fileService.Get(r.Context(), actor, r.PathValue("fileId"))
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, toFileDTO(*f))
}

// deleteFile godoc
// @Summary Delete a file
// @Description Deletes the record; a failed object removal is returned as a warning.
// @Tags files
// @Produce json
// @Param fileId path string true "File ID"
// @Success 200 {object} dto.DeleteResponseDTO
// @Failure 403 {string} string "Forbidden"
// @Failure 404 {string} string "Not found"
// @Router /files/{fileId} [delete]
func (h *FileHandler) deleteFile(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	fileID := r.PathValue("fileId")
	res, err := h.fileService.Delete(r.Context(), actor, fileID)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, dto.DeleteResponseDTO{Deleted: fileID, Warnings: res.Warnings})
}

// downloadURL godoc
// @Summary Get a download link
// @Tags files
// @Produce json
// @Param fileId path string true "File ID"
// @Success 200 {object} dto.DownloadURLResponseDTO
// @Router /files/{fileId}/download [get]
func (h *FileHandler) downloadURL(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	url, f, err := h.fileService.DownloadURL(r.Context(), actor, r.PathValue("fileId"))
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, dto.DownloadURLResponseDTO{FileID: f.ID, URL: url})
}

// downloadContent godoc
// @Summary Download file bytes
// @Tags files
// @Produce octet-stream
// @Param fileId path string true "File ID"
// @Success 200 {file} file
// @Router /files/{fileId}/content [get]
func (h *FileHandler) downloadContent(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	content, err := h.fileService.OpenContent(r.Context(), actor, r.PathValue("fileId"))
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	defer content.Body.Close()

	w.Header().Set("Content-Type", content.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": content.Filename}))
	if content.File.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(content.File.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, content.Body); err != nil {
		h.logger.Warn().Err(err).Str("file_id", content.File.ID).Msg("Download interrupted")
	}
}
