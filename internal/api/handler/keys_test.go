package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/selfservice/internal/api/middleware"
	"github.com/kiranshivaraju/selfservice/internal/selfservice"
	"github.com/kiranshivaraju/selfservice/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUser = "alice@example.com"

// --- mock KeyService ---

type mockKeyService struct {
	loaders   []*models.Loader
	statusErr error
	newErr    error
	delErr    error
	calls     []string
}

func (m *mockKeyService) KeyStatus(_ context.Context, user string) ([]*models.Loader, error) {
	m.calls = append(m.calls, "status:"+user)
	return m.loaders, m.statusErr
}

func (m *mockKeyService) NewKey(_ context.Context, user, slot string) (*models.LoaderKey, error) {
	m.calls = append(m.calls, "new:"+user+":"+slot)
	if m.newErr != nil {
		return nil, m.newErr
	}
	name := "migss-" + user + "-" + strings.TrimPrefix(slot, "slot")
	m.loaders = append(m.loaders, &models.Loader{ID: uuid.New(), Name: name, Enabled: true})
	return &models.LoaderKey{ID: uuid.New(), Name: name, Prefix: "AbCdEfGh", Key: "rawkey", Enabled: true}, nil
}

func (m *mockKeyService) DelKey(_ context.Context, user, slot string) error {
	m.calls = append(m.calls, "del:"+user+":"+slot)
	if m.delErr != nil {
		return m.delErr
	}
	name := "migss-" + user + "-" + strings.TrimPrefix(slot, "slot")
	for _, l := range m.loaders {
		if l.Name == name {
			l.Enabled = false
		}
	}
	return nil
}

// --- helpers ---

func userReq(method, path string, body any) *http.Request {
	var rdr *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	r := httptest.NewRequest(method, path, rdr)
	r.Header.Set("Content-Type", "application/json")
	return r.WithContext(mw.SetRemoteUser(r.Context(), testUser))
}

func errCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env.Error.Code
}

// --- /keystatus ---

func TestKeyStatus_EmptyIsArray(t *testing.T) {
	rec := httptest.NewRecorder()
	NewKeyStatusHandler(&mockKeyService{}).ServeHTTP(rec, userReq(http.MethodGet, "/keystatus", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"loaders":[]}`, rec.Body.String())
}

func TestKeyStatus_ListsLoaders(t *testing.T) {
	seen := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	svc := &mockKeyService{loaders: []*models.Loader{
		{Name: "migss-alice@example.com-1", Enabled: true, LastSeen: &seen, KeyHash: "secret-hash"},
		{Name: "migss-alice@example.com-2", Enabled: false},
	}}

	rec := httptest.NewRecorder()
	NewKeyStatusHandler(svc).ServeHTTP(rec, userReq(http.MethodGet, "/keystatus", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret-hash")

	var body struct {
		Loaders []struct {
			Name     string     `json:"name"`
			Enabled  *bool      `json:"enabled"`
			LastSeen *time.Time `json:"lastseen"`
		} `json:"loaders"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Loaders, 2)
	assert.True(t, *body.Loaders[0].Enabled)
	assert.True(t, seen.Equal(*body.Loaders[0].LastSeen))
	assert.False(t, *body.Loaders[1].Enabled)
	assert.Nil(t, body.Loaders[1].LastSeen)
	assert.Equal(t, []string{"status:" + testUser}, svc.calls)
}

func TestKeyStatus_MissingUser(t *testing.T) {
	rec := httptest.NewRecorder()
	NewKeyStatusHandler(&mockKeyService{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/keystatus", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "MISSING_REMOTE_USER", errCode(t, rec))
}

func TestKeyStatus_StoreError(t *testing.T) {
	svc := &mockKeyService{statusErr: errors.New("db down")}
	rec := httptest.NewRecorder()
	NewKeyStatusHandler(svc).ServeHTTP(rec, userReq(http.MethodGet, "/keystatus", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", errCode(t, rec))
}

// --- /newkey ---

func TestNewKey_ReturnsKeyOnce(t *testing.T) {
	svc := &mockKeyService{}
	rec := httptest.NewRecorder()
	NewNewKeyHandler(svc).ServeHTTP(rec, userReq(http.MethodPost, "/newkey", map[string]string{"slot": "slot2"}))

	require.Equal(t, http.StatusOK, rec.Code)
	var key models.LoaderKey
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &key))
	assert.Equal(t, "migss-alice@example.com-2", key.Name)
	assert.Equal(t, "AbCdEfGh", key.Prefix)
	assert.Equal(t, "rawkey", key.Key)
	assert.Equal(t, []string{"new:" + testUser + ":slot2"}, svc.calls)
}

func TestNewKey_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", "{"},
		{"missing slot", `{}`},
		{"empty slot", `{"slot":""}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockKeyService{}
			r := httptest.NewRequest(http.MethodPost, "/newkey", strings.NewReader(tt.body))
			r = r.WithContext(mw.SetRemoteUser(r.Context(), testUser))
			rec := httptest.NewRecorder()
			NewNewKeyHandler(svc).ServeHTTP(rec, r)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "INVALID_REQUEST", errCode(t, rec))
			assert.Empty(t, svc.calls)
		})
	}
}

func TestNewKey_ServiceErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{selfservice.ErrInvalidSlot, http.StatusBadRequest, "INVALID_SLOT"},
		{selfservice.ErrInvalidUser, http.StatusForbidden, "INVALID_USER"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewNewKeyHandler(&mockKeyService{newErr: tt.err}).
				ServeHTTP(rec, userReq(http.MethodPost, "/newkey", map[string]string{"slot": "slot9"}))

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, errCode(t, rec))
		})
	}
}

// --- /delkey ---

func TestDelKey_OK(t *testing.T) {
	svc := &mockKeyService{loaders: []*models.Loader{{Name: "migss-alice@example.com-1", Enabled: true}}}
	rec := httptest.NewRecorder()
	NewDelKeyHandler(svc).ServeHTTP(rec, userReq(http.MethodPost, "/delkey", map[string]string{"slot": "slot1"}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.False(t, svc.loaders[0].Enabled)
}

func TestDelKey_NotFound(t *testing.T) {
	svc := &mockKeyService{delErr: selfservice.ErrLoaderNotFound}
	rec := httptest.NewRecorder()
	NewDelKeyHandler(svc).ServeHTTP(rec, userReq(http.MethodPost, "/delkey", map[string]string{"slot": "slot3"}))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "LOADER_NOT_FOUND", errCode(t, rec))
}

func TestPing(t *testing.T) {
	rec := httptest.NewRecorder()
	Ping(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong\n", rec.Body.String())
}
