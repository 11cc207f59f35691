package selfservice

import (
	"log/slog"
	"sync"

	"github.com/kiranshivaraju/selfservice/pkg/models"
)

const subscriberBuffer = 8

// Hub fans key status change notices out to the panels watching a user.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan models.Notice]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan models.Notice]struct{})}
}

// Subscribe registers interest in a user's notices. The returned cancel func
// must be called to release the subscription; it closes the channel.
func (h *Hub) Subscribe(remoteUser string) (<-chan models.Notice, func()) {
	ch := make(chan models.Notice, subscriberBuffer)

	h.mu.Lock()
	if h.subs[remoteUser] == nil {
		h.subs[remoteUser] = make(map[chan models.Notice]struct{})
	}
	h.subs[remoteUser][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[remoteUser], ch)
			if len(h.subs[remoteUser]) == 0 {
				delete(h.subs, remoteUser)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers n to every subscriber of remoteUser. Subscribers whose
// buffer is full miss the notice.
func (h *Hub) Publish(remoteUser string, n models.Notice) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[remoteUser] {
		select {
		case ch <- n:
		default:
			slog.Warn("dropping key status notice for slow watcher", "user", remoteUser, "kind", n.Kind)
		}
	}
}

// Subscribers returns the number of active subscriptions for a user.
func (h *Hub) Subscribers(remoteUser string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[remoteUser])
}
