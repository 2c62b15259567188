package handler

import (
	"net/http"

	"portal/internal/api/v1/dto"
	"portal/internal/service"

	"github.com/rs/zerolog"
)

// ReviewHandler serves field review listings
type ReviewHandler struct {
	fileService service.FileService
	logger      zerolog.Logger
}

func NewReviewHandler(fileService service.FileService, logger zerolog.Logger) *ReviewHandler {
	return &ReviewHandler{
		fileService: fileService,
		logger:      logger.With().Str("handler", "ReviewHandler").Logger(),
	}
}

func (h *ReviewHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("GET /review/files", authMw(http.HandlerFunc(h.listFieldFiles)))
}

// listFieldFiles godoc
// @Summary List a field's submissions
// @Description Field managers list every submission of their field during phase two, optionally by region.
// @Tags review
// @Produce json
// @Param field query string false "Field (superusers only; managers default to their own)"
// @Param region query string false "Region filter"
// @Success 200 {array} dto.ReviewFileResponseDTO
// @Failure 403 {string} string "Forbidden"
// @Router /review/files [get]
func (h *ReviewHandler) listFieldFiles(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	files, err := h.fileService.ReviewField(r.Context(), actor, q.Get("field"), q.Get("region"))
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	resp := make([]dto.ReviewFileResponseDTO, 0, len(files))
	for _, f := range files {
		resp = append(resp, dto.ReviewFileResponseDTO{
			FileResponseDTO: toFileDTO(f.UploadedFile),
			Username:        f.Username,
			Region:          f.Region,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
