package httpx

import (
	"errors"
	"net/http"

	"github.com/meridianhr/meridian/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrSystemRoleImmutable):
		Problem(w, http.StatusForbidden, "System Role Immutable", err.Error())
	case errors.Is(err, shared.ErrRoleInUse):
		Problem(w, http.StatusConflict, "Role In Use", err.Error())
	case errors.Is(err, shared.ErrDuplicateRoleCode):
		Problem(w, http.StatusConflict, "Duplicate Role Code", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
