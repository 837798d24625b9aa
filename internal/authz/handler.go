package authz

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/meridianhr/meridian/internal/platform/httpx"
)

// Handler exposes the decision operations over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers decision routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/check", h.checkPermission)
	r.Get("/users/{userID}/permissions", h.listEffectivePermissions)
}

func (h *Handler) checkPermission(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("userId"), 10, 64)
	if err != nil || userID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "userId must be a positive integer")
		return
	}
	moduleCode := strings.TrimSpace(r.URL.Query().Get("module"))
	permissionCode := strings.TrimSpace(r.URL.Query().Get("permission"))
	if moduleCode == "" || permissionCode == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "module and permission are required")
		return
	}

	decision, err := h.service.CheckPermission(r.Context(), userID, moduleCode, permissionCode)
	if err != nil {
		h.logger.Error("check permission", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, decision)
}

func (h *Handler) listEffectivePermissions(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "user ID must be a positive integer")
		return
	}
	perms, err := h.service.ListEffectivePermissions(r.Context(), userID)
	if err != nil {
		h.logger.Error("list effective permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"userId": userID, "permissions": perms})
}
