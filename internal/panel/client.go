package panel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kiranshivaraju/selfservice/pkg/models"
)

// Sentinel errors for transport failures.
var (
	ErrUnreachable = errors.New("key service unreachable")
	ErrTimeout     = errors.New("key service request timed out")
)

// Client is the request/response contract the controller drives.
type Client interface {
	KeyStatus(ctx context.Context) (StatusReply, error)
	NewKey(ctx context.Context, slot SlotID) (KeyRecord, error)
	DelKey(ctx context.Context, slot SlotID) error
}

// Watcher streams key status change notices until ctx is done.
type Watcher interface {
	Watch(ctx context.Context, fn func(models.Notice)) error
}

// APIError is a non-2xx reply from the key service.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	code := e.Code
	if code == "" {
		code = "UNKNOWN"
	}
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("%s: %s (%d)", code, msg, e.Status)
}

type slotRequest struct {
	Slot SlotID `json:"slot"`
}

// HTTPClient implements Client against the self-service HTTP endpoints.
type HTTPClient struct {
	baseURL    string
	remoteUser string
	userHeader string
	client     *http.Client
	dialer     *websocket.Dialer
}

// NewHTTPClient creates a client for baseURL. When remoteUser is non-empty it
// is sent in the REMOTE_USER header, as the fronting proxy would.
func NewHTTPClient(baseURL, remoteUser string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		remoteUser: remoteUser,
		userHeader: "REMOTE_USER",
		client:     &http.Client{Timeout: timeout},
		dialer:     &websocket.Dialer{HandshakeTimeout: timeout},
	}
}

func (c *HTTPClient) KeyStatus(ctx context.Context) (StatusReply, error) {
	var reply StatusReply
	resp, err := c.do(ctx, http.MethodGet, "/keystatus", nil)
	if err != nil {
		return reply, err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return reply, fmt.Errorf("decoding key status: %w", err)
	}
	return reply, nil
}

func (c *HTTPClient) NewKey(ctx context.Context, slot SlotID) (KeyRecord, error) {
	var rec KeyRecord
	resp, err := c.do(ctx, http.MethodPost, "/newkey", slotRequest{Slot: slot})
	if err != nil {
		return rec, err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return rec, fmt.Errorf("decoding key record: %w", err)
	}
	return rec, nil
}

func (c *HTTPClient) DelKey(ctx context.Context, slot SlotID) error {
	resp, err := c.do(ctx, http.MethodPost, "/delkey", slotRequest{Slot: slot})
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}

// Watch subscribes to /keystatus/watch and calls fn for every notice. It
// returns nil once ctx is cancelled.
func (c *HTTPClient) Watch(ctx context.Context, fn func(models.Notice)) error {
	u := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/keystatus/watch"

	conn, resp, err := c.dialer.DialContext(ctx, u, c.headers())
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return decodeAPIError(resp)
		}
		return classifyError(err)
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		case <-stop:
		}
	}()

	for {
		var n models.Notice
		if err := conn.ReadJSON(&n); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("%w: %v", ErrUnreachable, err)
		}
		fn(n)
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		rdr = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	for k, v := range c.headers() {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, decodeAPIError(resp)
	}
	return resp, nil
}

func (c *HTTPClient) headers() http.Header {
	h := http.Header{}
	if c.remoteUser != "" {
		h.Set(c.userHeader, c.remoteUser)
	}
	return h
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || payload.Error.Code == "" {
		apiErr.Message = strings.TrimSpace(string(data))
		return apiErr
	}
	apiErr.Code = payload.Error.Code
	apiErr.Message = payload.Error.Message
	return apiErr
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

// Compile-time checks that HTTPClient implements Client and Watcher.
var (
	_ Client  = (*HTTPClient)(nil)
	_ Watcher = (*HTTPClient)(nil)
)
