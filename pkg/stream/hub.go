// Package stream fans live snapshots out to WebSocket subscribers.
package stream

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/phenomenon0/sportsarb/pkg/telemetry"
)

const writeTimeout = 10 * time.Second

// subscriber wraps a connection with a write mutex; gorilla/websocket
// allows only one concurrent writer per connection.
type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *subscriber) write(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub holds the subscriber set and the latest published snapshot. New
// subscribers get the cached snapshot immediately on accept.
type Hub struct {
	mu   sync.Mutex
	subs map[*websocket.Conn]*subscriber

	latest atomic.Pointer[[]byte]

	upgrader websocket.Upgrader
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[*websocket.Conn]*subscriber),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS upgrades the request and registers the connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		telemetry.L().Warn("websocket upgrade failed", "err", err)
		return
	}
	h.Add(conn)

	// Drain client frames; subscribers only listen.
	go func() {
		defer h.Remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Add registers a subscriber and replays the latest snapshot to it. The
// replay goes through the subscriber's write lock so it cannot interleave
// with a concurrent Broadcast.
func (h *Hub) Add(conn *websocket.Conn) {
	sub := &subscriber{conn: conn}
	h.mu.Lock()
	h.subs[conn] = sub
	n := len(h.subs)
	h.mu.Unlock()
	telemetry.L().Info("subscriber connected", "total", n)

	if latest := h.latest.Load(); latest != nil {
		if err := sub.write(*latest); err != nil {
			h.Remove(conn)
		}
	}
}

// Remove drops a subscriber and closes its connection.
func (h *Hub) Remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.subs, conn)
	n := len(h.subs)
	h.mu.Unlock()
	conn.Close()
	telemetry.L().Info("subscriber disconnected", "remaining", n)
}

// Broadcast caches payload as the latest snapshot and sends it to every
// subscriber. The set is copied under the hub lock, sends happen outside it
// under each subscriber's write lock, and dead subscribers are pruned
// afterwards.
func (h *Hub) Broadcast(payload []byte) {
	h.latest.Store(&payload)

	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	var dead []*subscriber
	for _, sub := range subs {
		if err := sub.write(payload); err != nil {
			dead = append(dead, sub)
		}
	}
	for _, sub := range dead {
		h.Remove(sub.conn)
	}
}

// Latest returns the most recently broadcast payload, or nil.
func (h *Hub) Latest() []byte {
	if latest := h.latest.Load(); latest != nil {
		return *latest
	}
	return nil
}

// Count returns the live subscriber count.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
