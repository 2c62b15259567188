package handler

import (
	"net/http"

	"portal/internal/api/v1/dto"
	"portal/internal/model"
	"portal/internal/policy"
	"portal/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// AdminHandler serves superuser account and phase management
type AdminHandler struct {
	userService  service.UserService
	phaseService service.PhaseService
	validate     *validator.Validate
	logger       zerolog.Logger
}

func NewAdminHandler(userService service.UserService, phaseService service.PhaseService, validate *validator.Validate, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		userService:  userService,
		phaseService: phaseService,
		validate:     validate,
		logger:       logger.With().Str("handler", "AdminHandler").Logger(),
	}
}

// RegisterRoutes mounts /admin routes and the read-only /phase route
func (h *AdminHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("POST /admin/users", authMw(http.HandlerFunc(h.createUser)))
	mux.Handle("GET /admin/users", authMw(http.HandlerFunc(h.listUsers)))
	mux.Handle("PATCH /admin/users/{userId}/storage", authMw(http.HandlerFunc(h.updateStorage)))
	mux.Handle("DELETE /admin/users/{userId}", authMw(http.HandlerFunc(h.deleteUser)))
	mux.Handle("GET /admin/phase", authMw(http.HandlerFunc(h.getPhase)))
	mux.Handle("PUT /admin/phase", authMw(http.HandlerFunc(h.setPhase)))
	mux.Handle("GET /phase", authMw(http.HandlerFunc(h.getPhase)))
}

// createUser godoc
// @Summary Create a user
// @Description Creates a normal user or field manager with a profile.
// @Tags admin
// @Accept json
// @Produce json
// @Param user body dto.UserCreateDTO true "User data"
// @Success 201 {object} dto.UserResponseDTO
// @Failure 400 {string} string "Validation failed"
// @Failure 403 {string} string "Forbidden"
// @Failure 409 {string} string "username_taken"
// @Router /admin/users [post]
func (h *AdminHandler) createUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req dto.UserCreateDTO
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}
	u, err := h.userService.CreateUser(r.Context(), actor, service.CreateUserInput{
		Username:         req.Username,
		Password:         req.Password,
		UserType:         model.UserType(req.UserType),
		Region:           req.Region,
		Field:            req.Field,
		AllowedStorageGB: req.AllowedStorageGB,
	})
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, toUserDTO(*u))
}

// listUsers godoc
// @Summary List users with storage usage
// @Tags admin
// @Produce json
// @Success 200 {array} dto.UserStorageResponseDTO
// @Failure 403 {string} string "Forbidden"
// @Router /admin/users [get]
func (h *AdminHandler) listUsers(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	users, err := h.userService.ListUsers(r.Context(), actor)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	resp := make([]dto.UserStorageResponseDTO, 0, len(users))
	for _, u := range users {
		var allowed int64
		if u.Profile != nil {
			allowed = u.Profile.AllowedStorage
		}
		resp = append(resp, dto.UserStorageResponseDTO{
			UserResponseDTO: toUserDTO(u.UserWithProfile),
			UsedStorage:     u.UsedStorage,
			PercentageUsed:  service.PercentageUsed(u.UsedStorage, allowed),
			Files:           toFileDTOs(u.Files),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// updateStorage godoc
// @Summary Update a user's storage allowance
// @Tags admin
// @Accept json
// @Produce json
// @Param userId path string true "User ID"
// @Param storage body dto.UserStorageUpdateDTO true "Allowance in GiB"
// @Success 200 {object} dto.UserResponseDTO
// @Router /admin/users/{userId}/storage [patch]
func (h *AdminHandler) updateStorage(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req dto.UserStorageUpdateDTO
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}
	u, err := h.userService.UpdateAllowedStorage(r.Context(), actor, r.PathValue("userId"), *req.AllowedStorageGB)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(*u))
}

// deleteUser godoc
// @Summary Delete a user and all their files
// @Tags admin
// @Produce json
// @Param userId path string true "User ID"
// @Success 200 {object} dto.DeleteResponseDTO
// @Failure 403 {string} string "Forbidden"
// @Failure 404 {string} string "Not found"
// @Router /admin/users/{userId} [delete]
func (h *AdminHandler) deleteUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	userID := r.PathValue("userId")
	res, err := h.userService.DeleteUser(r.Context(), actor, userID)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, dto.DeleteResponseDTO{Deleted: userID, Warnings: res.Warnings})
}

// getPhase godoc
// @Summary Get the workflow phase
// @Tags phase
// @Produce json
// @Success 200 {object} dto.PhaseDTO
// @Router /phase [get]
func (h *AdminHandler) getPhase(w http.ResponseWriter, r *http.Request) {
	if _, ok := actorFrom(w, r); !ok {
		return
	}
	phase, err := h.phaseService.Current(r.Context())
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, dto.PhaseDTO{Phase: phase.String()})
}

// setPhase godoc
// @Summary Set the workflow phase
// @Tags admin
// @Accept json
// @Produce json
// @Param phase body dto.PhaseDTO true "Phase"
// @Success 200 {object} dto.PhaseDTO
// @Failure 403 {string} string "Forbidden"
// @Router /admin/phase [put]
func (h *AdminHandler) setPhase(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req dto.PhaseDTO
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}
	phase, err := policy.ParsePhase(req.Phase)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	state, err := h.phaseService.Set(r.Context(), actor, phase)
	if err != nil {
		writeServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, dto.PhaseDTO{Phase: phase.String(), UpdatedAt: &state.UpdatedAt})
}
