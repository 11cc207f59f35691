package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/selfservice/internal/api/middleware"
	"github.com/kiranshivaraju/selfservice/internal/panel"
	"github.com/kiranshivaraju/selfservice/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func panelRouter(p *Panel) http.Handler {
	r := chi.NewRouter()
	r.Get("/", p.Show)
	r.Post("/panel/{slot}/generate", p.Action(panel.ActionGenerate))
	r.Post("/panel/{slot}/remove", p.Action(panel.ActionRemove))
	return r
}

func servePanel(t *testing.T, svc KeyService, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, path, nil)
	r = r.WithContext(mw.SetRemoteUser(r.Context(), testUser))
	rec := httptest.NewRecorder()
	panelRouter(NewPanel(svc, nil)).ServeHTTP(rec, r)
	return rec
}

func TestPanel_Show(t *testing.T) {
	svc := &mockKeyService{loaders: []*models.Loader{{Name: "migss-alice@example.com-2", Enabled: true}}}
	rec := servePanel(t, svc, http.MethodGet, "/")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	body := rec.Body.String()
	assert.Contains(t, body, `action="/panel/slot1/generate"`)
	assert.Contains(t, body, `action="/panel/slot2/remove"`)
	assert.Contains(t, body, `action="/panel/slot3/generate"`)
}

func TestPanel_ShowLoadError(t *testing.T) {
	svc := &mockKeyService{statusErr: errors.New("db down")}
	rec := servePanel(t, svc, http.MethodGet, "/")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `role="alert"`)
	assert.Contains(t, rec.Body.String(), panel.StatusLoading)
}

func TestPanel_GenerateRevealsKey(t *testing.T) {
	svc := &mockKeyService{}
	rec := servePanel(t, svc, http.MethodPost, "/panel/slot3/generate")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "AbCdEfGhrawkey")
	assert.Contains(t, body, string(panel.ActionCreated))
	assert.NotContains(t, body, `action="/panel/slot3/`)
	assert.Contains(t, svc.calls, "new:"+testUser+":slot3")
}

func TestPanel_RemoveReloads(t *testing.T) {
	svc := &mockKeyService{loaders: []*models.Loader{{Name: "migss-alice@example.com-1", Enabled: true}}}
	rec := servePanel(t, svc, http.MethodPost, "/panel/1/remove")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `action="/panel/slot1/generate"`)
	assert.Equal(t, []string{
		"status:" + testUser,
		"del:" + testUser + ":slot1",
		"status:" + testUser,
	}, svc.calls)
}

func TestPanel_ActionNotBound(t *testing.T) {
	svc := &mockKeyService{loaders: []*models.Loader{{Name: "migss-alice@example.com-1", Enabled: true}}}
	rec := servePanel(t, svc, http.MethodPost, "/panel/slot1/generate")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `role="alert"`)
	assert.Equal(t, []string{"status:" + testUser}, svc.calls)
}

func TestPanel_InvalidSlot(t *testing.T) {
	svc := &mockKeyService{}
	rec := servePanel(t, svc, http.MethodPost, "/panel/slot4/generate")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `role="alert"`)
}

func TestPanel_MissingUser(t *testing.T) {
	rec := httptest.NewRecorder()
	panelRouter(NewPanel(&mockKeyService{}, nil)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "MISSING_REMOTE_USER", errCode(t, rec))
}
