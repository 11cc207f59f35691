package handler

import (
	"context"
	"encoding/json"
	"net/http"

	mw "github.com/kiranshivaraju/selfservice/internal/api/middleware"
	"github.com/kiranshivaraju/selfservice/internal/api/response"
	"github.com/kiranshivaraju/selfservice/pkg/models"
)

// KeyService is the per-user key management the panel endpoints drive.
type KeyService interface {
	KeyStatus(ctx context.Context, remoteUser string) ([]*models.Loader, error)
	NewKey(ctx context.Context, remoteUser, slotID string) (*models.LoaderKey, error)
	DelKey(ctx context.Context, remoteUser, slotID string) error
}

type slotRequest struct {
	Slot string `json:"slot"`
}

type keyStatusResponse struct {
	Loaders []*models.Loader `json:"loaders"`
}

// NewKeyStatusHandler returns an http.HandlerFunc for GET /keystatus.
func NewKeyStatusHandler(svc KeyService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := mw.GetRemoteUser(r)
		if !ok {
			missingUser(w)
			return
		}

		loaders, err := svc.KeyStatus(r.Context(), user)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if loaders == nil {
			loaders = []*models.Loader{}
		}
		response.Write(w, http.StatusOK, keyStatusResponse{Loaders: loaders})
	}
}

// NewNewKeyHandler returns an http.HandlerFunc for POST /newkey.
func NewNewKeyHandler(svc KeyService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := mw.GetRemoteUser(r)
		if !ok {
			missingUser(w)
			return
		}
		slot, ok := decodeSlot(w, r)
		if !ok {
			return
		}

		key, err := svc.NewKey(r.Context(), user, slot)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.Write(w, http.StatusOK, key)
	}
}

// NewDelKeyHandler returns an http.HandlerFunc for POST /delkey.
func NewDelKeyHandler(svc KeyService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := mw.GetRemoteUser(r)
		if !ok {
			missingUser(w)
			return
		}
		slot, ok := decodeSlot(w, r)
		if !ok {
			return
		}

		if err := svc.DelKey(r.Context(), user, slot); err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.Text(w, http.StatusOK, "OK")
	}
}

func decodeSlot(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req slotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
		return "", false
	}
	if req.Slot == "" {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "slot is required", nil)
		return "", false
	}
	return req.Slot, true
}
