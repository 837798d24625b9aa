package grants

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridianhr/meridian/internal/platform/httpx"
	"github.com/meridianhr/meridian/internal/shared"
)

// Handler exposes assignment and override administration over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers grant routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/users/{userID}/assignments", h.listAssignments)
	r.Post("/assignments", h.assignRole)
	r.Delete("/users/{userID}/assignments/{roleID}", h.removeRole)
	r.Get("/users/{userID}/overrides", h.listOverrides)
	r.Post("/overrides", h.setOverride)
	r.Delete("/overrides/{overrideID}", h.removeOverride)
}

func (h *Handler) listAssignments(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	list, err := h.service.ListAssignments(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"userId": userID, "assignments": list})
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	var req AssignRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	assignment, err := h.service.AssignRole(r.Context(), req, actorID)
	if err != nil {
		h.logger.Error("assign role", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, assignment)
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	roleID, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	if err := h.service.RemoveRole(r.Context(), userID, roleID, r.URL.Query().Get("reason"), actorID); err != nil {
		h.logger.Error("remove role", slog.Int64("user_id", userID), slog.Int64("role_id", roleID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listOverrides(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	list, err := h.service.ListOverrides(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"userId": userID, "overrides": list})
}

func (h *Handler) setOverride(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	var req SetOverrideRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	override, err := h.service.SetOverride(r.Context(), req, actorID)
	if err != nil {
		h.logger.Error("set override", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, override)
}

func (h *Handler) removeOverride(w http.ResponseWriter, r *http.Request) {
	actorID, ok := actor(w, r)
	if !ok {
		return
	}
	overrideID, ok := pathID(w, r, "overrideID")
	if !ok {
		return
	}
	if err := h.service.RemoveOverride(r.Context(), overrideID, r.URL.Query().Get("reason"), actorID); err != nil {
		h.logger.Error("remove override", slog.Int64("override_id", overrideID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func actor(w http.ResponseWriter, r *http.Request) (int64, bool) {
	actorID, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "acting user not identified")
		return 0, false
	}
	return actorID, true
}
