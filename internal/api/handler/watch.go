package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	mw "github.com/kiranshivaraju/selfservice/internal/api/middleware"
	"github.com/kiranshivaraju/selfservice/pkg/models"
)

const (
	watchWriteWait  = 10 * time.Second
	watchPongWait   = 60 * time.Second
	watchPingPeriod = watchPongWait * 9 / 10
)

// Subscriber hands out per-user change notice subscriptions.
type Subscriber interface {
	Subscribe(remoteUser string) (<-chan models.Notice, func())
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// NewWatchHandler returns an http.HandlerFunc for GET /keystatus/watch. It
// upgrades to a websocket and streams the user's change notices as JSON.
func NewWatchHandler(sub Subscriber) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := mw.GetRemoteUser(r)
		if !ok {
			missingUser(w)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("websocket upgrade failed", "user", user, "error", err)
			return
		}
		defer conn.Close()

		notices, cancel := sub.Subscribe(user)
		defer cancel()
		slog.Debug("key status watcher connected", "user", user)

		// Reads only serve to notice the client going away and to handle pongs.
		closed := make(chan struct{})
		conn.SetReadDeadline(time.Now().Add(watchPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(watchPongWait))
		})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(watchPingPeriod)
		defer ticker.Stop()

		for {
			select {
			case n, ok := <-notices:
				if !ok {
					return
				}
				conn.SetWriteDeadline(time.Now().Add(watchWriteWait))
				if err := conn.WriteJSON(n); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(watchWriteWait)); err != nil {
					return
				}
			case <-closed:
				slog.Debug("key status watcher disconnected", "user", user)
				return
			case <-r.Context().Done():
				return
			}
		}
	}
}
