package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/selfservice/internal/api"
	"github.com/kiranshivaraju/selfservice/internal/api/handler"
	mw "github.com/kiranshivaraju/selfservice/internal/api/middleware"
	"github.com/kiranshivaraju/selfservice/internal/keygen"
	"github.com/kiranshivaraju/selfservice/internal/panel"
	"github.com/kiranshivaraju/selfservice/internal/selfservice"
	"github.com/kiranshivaraju/selfservice/internal/store"
	"github.com/kiranshivaraju/selfservice/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const contractUser = "alice@example.com"

// ─── in-memory store ─────────────────────────────────────────────────────────

type memStore struct {
	mu      sync.Mutex
	loaders []*models.Loader
}

func (s *memStore) Ping(_ context.Context) error { return nil }

func (s *memStore) ListLoaders(_ context.Context, namePrefix string) ([]*models.Loader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Loader
	for _, l := range s.loaders {
		if strings.HasPrefix(l.Name, namePrefix) {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) GetLoaderByName(_ context.Context, name string) (*models.Loader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.loaders {
		if l.Name == name {
			cp := *l
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *memStore) GetLoadersByPrefix(_ context.Context, prefix string) ([]*models.Loader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Loader
	for _, l := range s.loaders {
		if l.Prefix == prefix {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) CreateLoader(_ context.Context, l *models.Loader) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *l
	s.loaders = append(s.loaders, &cp)
	return nil
}

func (s *memStore) update(id uuid.UUID, fn func(*models.Loader)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.loaders {
		if l.ID == id {
			fn(l)
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *memStore) SetLoaderEnabled(_ context.Context, id uuid.UUID, enabled bool) error {
	return s.update(id, func(l *models.Loader) { l.Enabled = enabled })
}

func (s *memStore) RekeyLoader(_ context.Context, id uuid.UUID, prefix, hash string) error {
	return s.update(id, func(l *models.Loader) { l.Prefix, l.KeyHash, l.Enabled = prefix, hash, true })
}

func (s *memStore) UpdateLoaderLastSeen(_ context.Context, id uuid.UUID, agent string, at time.Time) error {
	return s.update(id, func(l *models.Loader) {
		l.LastSeen = &at
		if agent != "" {
			l.AgentName = agent
		}
	})
}

// ─── in-memory cache ─────────────────────────────────────────────────────────

type memCache struct {
	mu       sync.Mutex
	data     map[string][]byte
	counters map[string]int64
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}, counters: map[string]int64{}}
}

func (c *memCache) Set(_ context.Context, key string, v []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = v
	return nil
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *memCache) Ping(_ context.Context) error { return nil }

func (c *memCache) IncrWithExpiry(_ context.Context, key string, _ time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[key]++
	c.data[key] = []byte(strconv.FormatInt(c.counters[key], 10))
	return c.counters[key], nil
}

// ─── test server ─────────────────────────────────────────────────────────────

type testServer struct {
	*httptest.Server
	store *memStore
	hub   *selfservice.Hub
}

func newTestServer(t *testing.T, rateLimit int) *testServer {
	t.Helper()
	st := &memStore{}
	hub := selfservice.NewHub()
	svc := selfservice.NewService(st, newMemCache(), keygen.NewGenerator(bcrypt.MinCost), hub, selfservice.Options{
		NamePrefix: "migss",
		StatusTTL:  time.Minute,
	})
	p := handler.NewPanel(svc, nil)

	router := api.NewRouter(api.Dependencies{
		RemoteUser: mw.NewRemoteUser("REMOTE_USER"),
		LoaderAuth: mw.NewLoaderAuth(svc),
		RateLimit:  mw.NewRateLimit(newMemCache(), rateLimit),

		PanelPage:        p.Show,
		PanelGenerate:    p.Action(panel.ActionGenerate),
		PanelRemove:      p.Action(panel.ActionRemove),
		KeyStatusHandler: handler.NewKeyStatusHandler(svc),
		WatchHandler:     handler.NewWatchHandler(hub),
		NewKeyHandler:    handler.NewNewKeyHandler(svc),
		DelKeyHandler:    handler.NewDelKeyHandler(svc),
		HeartbeatHandler: handler.NewHeartbeatHandler(svc),
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, store: st, hub: hub}
}

func (ts *testServer) controller() *panel.Controller {
	return panel.NewController(panel.NewHTTPClient(ts.URL, contractUser, 5*time.Second))
}

func (ts *testServer) heartbeat(t *testing.T, credential, agent string) *http.Response {
	t.Helper()
	b, _ := json.Marshal(map[string]string{"agentname": agent})
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/loader/heartbeat", bytes.NewReader(b))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+credential)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

// ─── contract tests ──────────────────────────────────────────────────────────

func TestContract_EmptyPanel(t *testing.T) {
	ts := newTestServer(t, 30)
	c := ts.controller()

	tbl, err := c.Load(context.Background())
	require.NoError(t, err)

	for i, row := range tbl.Rows {
		assert.Equal(t, panel.Slot(i+1), row.Slot)
		assert.Equal(t, panel.StatusNotSet, row.Status)
		assert.Equal(t, panel.ActionGenerate, row.Action)
		assert.Equal(t, panel.RecencyUnknown, row.Recency)
	}
}

func TestContract_GenerateHeartbeatRemove(t *testing.T) {
	ts := newTestServer(t, 30)
	ctx := context.Background()
	c := ts.controller()
	_, err := c.Load(ctx)
	require.NoError(t, err)

	// generate reveals the credential exactly once
	tbl, err := c.Dispatch(ctx, "slot2")
	require.NoError(t, err)
	credential := tbl.Rows[1].Status
	assert.Len(t, credential, keygen.PrefixLength+keygen.KeyLength)
	assert.Equal(t, panel.ActionCreated, tbl.Rows[1].Action)

	// the loader checks in with its credential
	resp := ts.heartbeat(t, credential, "lab-pc-7")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	tbl, err = c.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, panel.StatusAssigned, tbl.Rows[1].Status)
	assert.Equal(t, panel.ActionRemove, tbl.Rows[1].Action)
	assert.Equal(t, panel.RecencyToday, tbl.Rows[1].Recency)

	// remove disables the loader and the slot offers generate again
	tbl, err = c.Dispatch(ctx, "slot2")
	require.NoError(t, err)
	assert.Equal(t, panel.StatusNotSet, tbl.Rows[1].Status)
	assert.Equal(t, panel.ActionGenerate, tbl.Rows[1].Action)

	// a disabled loader can no longer check in
	resp = ts.heartbeat(t, credential, "lab-pc-7")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestContract_RegenerateRotatesKey(t *testing.T) {
	ts := newTestServer(t, 30)
	ctx := context.Background()
	c := ts.controller()
	_, err := c.Load(ctx)
	require.NoError(t, err)

	tbl, err := c.Dispatch(ctx, "slot1")
	require.NoError(t, err)
	first := tbl.Rows[0].Status

	_, err = c.Load(ctx)
	require.NoError(t, err)
	_, err = c.Dispatch(ctx, "slot1") // remove
	require.NoError(t, err)
	tbl, err = c.Dispatch(ctx, "slot1") // generate again
	require.NoError(t, err)
	second := tbl.Rows[0].Status

	assert.NotEqual(t, first, second)
	assert.Len(t, ts.store.loaders, 1)
	assert.Equal(t, http.StatusUnauthorized, ts.heartbeat(t, first, "").StatusCode)
	assert.Equal(t, http.StatusNoContent, ts.heartbeat(t, second, "").StatusCode)
}

func TestContract_DelKeyUnknownSlot(t *testing.T) {
	ts := newTestServer(t, 30)
	client := panel.NewHTTPClient(ts.URL, contractUser, 5*time.Second)

	err := client.DelKey(context.Background(), "slot3")
	var apiErr *panel.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "LOADER_NOT_FOUND", apiErr.Code)
}

func TestContract_NewKeyInvalidSlot(t *testing.T) {
	ts := newTestServer(t, 30)
	client := panel.NewHTTPClient(ts.URL, contractUser, 5*time.Second)

	for _, slot := range []panel.SlotID{"slot0", "slot4", "slotx"} {
		_, err := client.NewKey(context.Background(), slot)
		var apiErr *panel.APIError
		require.ErrorAs(t, err, &apiErr, slot)
		assert.Equal(t, "INVALID_SLOT", apiErr.Code, slot)
	}
}

func TestContract_UsersAreIsolated(t *testing.T) {
	ts := newTestServer(t, 30)
	ctx := context.Background()

	bob := panel.NewHTTPClient(ts.URL, "bob@example.com", 5*time.Second)
	_, err := bob.NewKey(ctx, "slot1")
	require.NoError(t, err)

	reply, err := panel.NewHTTPClient(ts.URL, contractUser, 5*time.Second).KeyStatus(ctx)
	require.NoError(t, err)
	assert.Empty(t, reply.Loaders)
}

func TestContract_WatchSeesChanges(t *testing.T) {
	ts := newTestServer(t, 30)
	client := panel.NewHTTPClient(ts.URL, contractUser, 5*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan models.Notice, 4)
	done := make(chan error, 1)
	go func() { done <- client.Watch(ctx, func(n models.Notice) { got <- n }) }()

	require.Eventually(t, func() bool { return ts.hub.Subscribers(contractUser) == 1 }, 2*time.Second, 10*time.Millisecond)

	_, err := client.NewKey(context.Background(), "slot3")
	require.NoError(t, err)

	select {
	case n := <-got:
		assert.Equal(t, models.NoticeCreated, n.Kind)
		assert.Equal(t, "slot3", n.Slot)
	case <-time.After(2 * time.Second):
		t.Fatal("no notice received")
	}

	cancel()
	assert.NoError(t, <-done)
}

func TestContract_RateLimit(t *testing.T) {
	ts := newTestServer(t, 2)
	client := panel.NewHTTPClient(ts.URL, contractUser, 5*time.Second)
	ctx := context.Background()

	_, err := client.NewKey(ctx, "slot1")
	require.NoError(t, err)
	_, err = client.NewKey(ctx, "slot2")
	require.NoError(t, err)

	_, err = client.NewKey(ctx, "slot3")
	var apiErr *panel.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", apiErr.Code)

	// reads are not limited
	_, err = client.KeyStatus(ctx)
	assert.NoError(t, err)
}

func TestContract_PanelPageFlow(t *testing.T) {
	ts := newTestServer(t, 30)

	post := func(path string) (*http.Response, string) {
		req, err := http.NewRequest(http.MethodPost, ts.URL+path, nil)
		require.NoError(t, err)
		req.Header.Set("REMOTE_USER", contractUser)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		var buf bytes.Buffer
		buf.ReadFrom(resp.Body)
		return resp, buf.String()
	}

	resp, body := post("/panel/slot1/generate")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, string(panel.ActionCreated))

	// posting generate again is stale: the row now offers remove
	resp, _ = post("/panel/slot1/generate")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = post("/panel/slot1/remove")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `action="/panel/slot1/generate"`)
}
