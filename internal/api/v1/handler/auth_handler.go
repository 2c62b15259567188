package handler

import (
	"net/http"

	"portal/internal/api/v1/dto"
	"portal/internal/model"
	"portal/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// AuthHandler issues access tokens and serves public reference data
type AuthHandler struct {
	authService service.AuthService
	validate    *validator.Validate
	logger      zerolog.Logger
}

func NewAuthHandler(authService service.AuthService, validate *validator.Validate, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		validate:    validate,
		logger:      logger.With().Str("handler", "AuthHandler").Logger(),
	}
}

// RegisterRoutes mounts the unauthenticated routes
func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/login", h.login)
	mux.HandleFunc("GET /catalog", h.catalog)
}

// login godoc
// @Summary Log in
// @Tags auth
// @Accept json
// @Produce json
// @Param credentials body dto.LoginDTO true "Credentials"
// @Success 200 {object} dto.LoginResponseDTO
// @Failure 401 {string} string "Invalid credentials"
// @Router /auth/login [post]
func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginDTO
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}
	res, err := h.authService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, dto.LoginResponseDTO{
		AccessToken: res.Token,
		TokenType:   "Bearer",
		ExpiresAt:   res.ExpiresAt,
		User:        toUserDTO(*res.User),
	})
}

// catalog godoc
// @Summary List fields and regions
// @Tags catalog
// @Produce json
// @Success 200 {object} dto.CatalogResponseDTO
// @Router /catalog [get]
func (h *AuthHandler) catalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dto.CatalogResponseDTO{
		Fields:  toChoiceDTOs(model.Fields),
		Regions: toChoiceDTOs(model.Regions),
	})
}

func toChoiceDTOs(cs []model.Choice) []dto.ChoiceDTO {
	out := make([]dto.ChoiceDTO, 0, len(cs))
	for _, c := range cs {
		out = append(out, dto.ChoiceDTO{Code: c.Code, Name: c.Name})
	}
	return out
}
