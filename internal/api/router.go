package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/selfservice/internal/api/handler"
	mw "github.com/kiranshivaraju/selfservice/internal/api/middleware"
	"github.com/kiranshivaraju/selfservice/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	RemoteUser *mw.RemoteUser
	LoaderAuth *mw.LoaderAuth
	RateLimit  *mw.RateLimit

	HealthHandler    http.HandlerFunc
	PanelPage        http.HandlerFunc
	PanelGenerate    http.HandlerFunc
	PanelRemove      http.HandlerFunc
	KeyStatusHandler http.HandlerFunc
	WatchHandler     http.HandlerFunc
	NewKeyHandler    http.HandlerFunc
	DelKeyHandler    http.HandlerFunc
	HeartbeatHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public checks
	r.Get("/ping", handler.Ping)
	r.Get("/health", orNotImplemented(deps.HealthHandler))

	// Loader check-ins authenticate with their own key
	r.Group(func(r chi.Router) {
		r.Use(deps.LoaderAuth.Authenticate)

		r.Post("/loader/heartbeat", orNotImplemented(deps.HeartbeatHandler))
	})

	// Self-service routes behind the authenticating proxy
	r.Group(func(r chi.Router) {
		r.Use(deps.RemoteUser.Require)

		r.Get("/", orNotImplemented(deps.PanelPage))
		r.Get("/keystatus", orNotImplemented(deps.KeyStatusHandler))
		r.Get("/keystatus/watch", orNotImplemented(deps.WatchHandler))

		// Mutations must come from this site and are rate limited per user
		r.Group(func(r chi.Router) {
			r.Use(mw.SameOrigin)
			r.Use(deps.RateLimit.Limit)

			r.Post("/panel/{slot}/generate", orNotImplemented(deps.PanelGenerate))
			r.Post("/panel/{slot}/remove", orNotImplemented(deps.PanelRemove))
			r.Post("/newkey", orNotImplemented(deps.NewKeyHandler))
			r.Post("/delkey", orNotImplemented(deps.DelKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
