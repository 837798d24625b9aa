package authz

import (
	"log/slog"
	"net/http"

	"github.com/meridianhr/meridian/internal/shared"
)

// Middleware wires authorization checks for HTTP handlers. The guarded
// controllers never consult store state directly; they go through
// HasPermission only.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// Require ensures the current user holds the given module permission.
// Store failures respond 500, never a silent grant.
func (m Middleware) Require(moduleCode, permissionCode string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := shared.ActorFromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			granted, err := m.Service.HasPermission(r.Context(), userID, moduleCode, permissionCode)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("authz check failed",
						slog.Int64("user_id", userID),
						slog.String("module", moduleCode),
						slog.String("permission", permissionCode),
						slog.Any("error", err))
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if !granted {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
