package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	mw "github.com/kiranshivaraju/selfservice/internal/api/middleware"
	"github.com/kiranshivaraju/selfservice/internal/api/response"
	"github.com/kiranshivaraju/selfservice/pkg/models"
)

// Heartbeater records loader check-ins.
type Heartbeater interface {
	Heartbeat(ctx context.Context, l *models.Loader, agentName string) error
}

// NewHeartbeatHandler returns an http.HandlerFunc for POST /loader/heartbeat.
// The body is optional; when present it may carry the loader's agent name.
func NewHeartbeatHandler(svc Heartbeater) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l, ok := mw.GetLoader(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing loader", nil)
			return
		}

		var req struct {
			AgentName string `json:"agentname"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if err := svc.Heartbeat(r.Context(), l, req.AgentName); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
