package middleware

import (
	"net/http"

	"github.com/kiranshivaraju/selfservice/internal/api/response"
	"github.com/kiranshivaraju/selfservice/internal/selfservice"
)

const defaultRemoteUserHeader = "REMOTE_USER"

// RemoteUser trusts the identity the fronting proxy puts in a request header.
type RemoteUser struct {
	header string
}

// NewRemoteUser creates a RemoteUser middleware reading the given header.
func NewRemoteUser(header string) *RemoteUser {
	if header == "" {
		header = defaultRemoteUserHeader
	}
	return &RemoteUser{header: header}
}

// Require rejects requests without a well-formed remote user and stores the
// user in the request context. A missing header means the proxy is
// misconfigured, so it is reported as a server error.
func (ru *RemoteUser) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := r.Header.Get(ru.header)
		if user == "" {
			response.Error(w, http.StatusInternalServerError,
				"MISSING_REMOTE_USER", "No remote user supplied by the proxy", nil)
			return
		}
		if err := selfservice.ValidateUser(user); err != nil {
			response.Error(w, http.StatusForbidden,
				"INVALID_USER", "Invalid user", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(SetRemoteUser(r.Context(), user)))
	})
}
