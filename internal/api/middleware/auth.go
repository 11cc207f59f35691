package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/selfservice/internal/api/response"
	"github.com/kiranshivaraju/selfservice/internal/selfservice"
	"github.com/kiranshivaraju/selfservice/pkg/models"
)

// Authenticator resolves a presented loader credential.
type Authenticator interface {
	AuthenticateLoader(ctx context.Context, credential string) (*models.Loader, error)
}

// LoaderAuth authenticates loaders by their bearer key.
type LoaderAuth struct {
	auth Authenticator
}

// NewLoaderAuth creates a new LoaderAuth middleware.
func NewLoaderAuth(a Authenticator) *LoaderAuth {
	return &LoaderAuth{auth: a}
}

// Authenticate validates the Bearer token and sets the loader in the
// request context.
func (a *LoaderAuth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawKey := extractBearerToken(r)
		if rawKey == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}

		l, err := a.auth.AuthenticateLoader(r.Context(), rawKey)
		if errors.Is(err, selfservice.ErrInvalidCredential) {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid loader key", nil)
			return
		}
		if err != nil {
			slog.Error("loader authentication failed", "error", err)
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to validate loader key", nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(SetLoader(r.Context(), l)))
	})
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
