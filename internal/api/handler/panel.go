package handler

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/selfservice/internal/api/middleware"
	"github.com/kiranshivaraju/selfservice/internal/api/response"
	"github.com/kiranshivaraju/selfservice/internal/panel"
	"github.com/kiranshivaraju/selfservice/internal/selfservice"
)

// ErrActionNotBound is returned when a posted action is not the one the
// slot's row currently offers, for example a stale page resubmitted.
var ErrActionNotBound = errors.New("action is not available for this slot")

// Panel serves the server-rendered key panel.
type Panel struct {
	svc      KeyService
	renderer panel.Renderer
}

// NewPanel creates a Panel backed by svc.
func NewPanel(svc KeyService, renderer panel.Renderer) *Panel {
	if renderer == nil {
		renderer = panel.NewHTMLRenderer()
	}
	return &Panel{svc: svc, renderer: renderer}
}

// Show handles GET /: load the user's slots and render the table.
func (p *Panel) Show(w http.ResponseWriter, r *http.Request) {
	user, ok := mw.GetRemoteUser(r)
	if !ok {
		missingUser(w)
		return
	}

	ctrl := panel.NewController(panel.NewLocalClient(p.svc, user))
	t, err := ctrl.Load(r.Context())
	p.render(w, r, user, t, err)
}

// Action returns the handler for POST /panel/{slot}/generate or /remove.
// The panel is loaded first so the posted action only runs when it is the
// one bound to the slot's row.
func (p *Panel) Action(want panel.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := mw.GetRemoteUser(r)
		if !ok {
			missingUser(w)
			return
		}

		ctrl := panel.NewController(panel.NewLocalClient(p.svc, user))
		t, err := ctrl.Load(r.Context())
		if err != nil {
			p.render(w, r, user, t, err)
			return
		}

		slot, ok := panel.ParseSlot(chi.URLParam(r, "slot"))
		if !ok {
			p.render(w, r, user, t, fmt.Errorf("%w: %q", selfservice.ErrInvalidSlot, chi.URLParam(r, "slot")))
			return
		}
		if b, bound := ctrl.Binding(slot); !bound || b.Action != want {
			p.render(w, r, user, t, fmt.Errorf("%w: %s", ErrActionNotBound, slot))
			return
		}

		t, err = ctrl.Dispatch(r.Context(), slot)
		p.render(w, r, user, t, err)
	}
}

func (p *Panel) render(w http.ResponseWriter, r *http.Request, user string, t panel.Table, viewErr error) {
	status := http.StatusOK
	if viewErr != nil {
		status, _, _ = classify(viewErr)
		if errors.Is(viewErr, ErrActionNotBound) {
			status = http.StatusConflict
		}
		if status == http.StatusInternalServerError {
			slog.Error("panel request failed", "path", r.URL.Path, "user", user, "error", viewErr)
		}
	}

	var buf bytes.Buffer
	if err := p.renderer.Render(&buf, panel.View{User: user, Table: t, Err: viewErr}); err != nil {
		slog.Error("render panel", "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to render panel", nil)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	response.HTML(w, status, buf.Bytes())
}
