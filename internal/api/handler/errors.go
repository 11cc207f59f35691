package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/kiranshivaraju/selfservice/internal/api/response"
	"github.com/kiranshivaraju/selfservice/internal/selfservice"
)

// classify maps a key service error to an HTTP status and error code.
func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, selfservice.ErrInvalidUser):
		return http.StatusForbidden, "INVALID_USER", "Invalid user"
	case errors.Is(err, selfservice.ErrInvalidSlot):
		return http.StatusBadRequest, "INVALID_SLOT", "Invalid slot"
	case errors.Is(err, selfservice.ErrLoaderNotFound):
		return http.StatusNotFound, "LOADER_NOT_FOUND", "Unable to locate loader"
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := classify(err)
	if status == http.StatusInternalServerError {
		slog.Error("key service request failed", "path", r.URL.Path, "error", err)
	}
	response.Error(w, status, code, msg, nil)
}

func missingUser(w http.ResponseWriter) {
	response.Error(w, http.StatusInternalServerError, "MISSING_REMOTE_USER", "No remote user supplied by the proxy", nil)
}
