package audit

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridianhr/meridian/internal/platform/httpx"
)

// Handler exposes the audit log read surface.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.query)
}

func (h *Handler) query(w http.ResponseWriter, r *http.Request) {
	var filters QueryFilters
	if raw := r.URL.Query().Get("userId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "userId must be a positive integer")
			return
		}
		filters.SubjectID = &id
	}
	if raw := r.URL.Query().Get("sinceDays"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days < 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "sinceDays must be a non-negative integer")
			return
		}
		filters.SinceDays = days
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "limit must be a non-negative integer")
			return
		}
		filters.Limit = limit
	}

	entries, err := h.service.Query(r.Context(), filters)
	if err != nil {
		h.logger.Error("query audit log", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}
