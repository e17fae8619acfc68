// Package realtime is the websocket side of the forum: the Hub fans change
// events out to every connected Session, and Sessions relay presence and
// typing signals to each other.
package realtime

import (
	"net/http"
	"sync"
	"time"

	"forumsync/internal/events"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096

	DefaultSendBuffer = 64
)

type Hub struct {
	mu       sync.Mutex
	sessions map[string]*Session
	seq      uint64

	sendBuffer int
	upgrader   websocket.Upgrader
}

// NewHub builds a hub that accepts websocket upgrades from allowOrigins. An
// empty list accepts any origin.
func NewHub(allowOrigins []string, sendBuffer int) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = DefaultSendBuffer
	}
	allowed := make(map[string]bool, len(allowOrigins))
	for _, o := range allowOrigins {
		allowed[o] = true
	}
	return &Hub{
		sessions:   make(map[string]*Session),
		sendBuffer: sendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(allowed) == 0 || allowed[origin]
			},
		},
	}
}

// Publish stamps e with the next sequence number and queues it for every
// session. It never waits: a session whose queue is full misses the event.
func (h *Hub) Publish(e events.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	frame, err := events.Encode(e, h.seq)
	if err != nil {
		glog.Errorf("[hub] dropping %s: %v", e.Kind(), err)
		return
	}
	delivered := 0
	for _, s := range h.sessions {
		if s.enqueue(frame) {
			delivered++
		}
	}
	glog.V(2).Infof("[hub] %s #%d for post %s delivered to %d/%d", e.Kind(), h.seq, e.PostID(), delivered, len(h.sessions))
}

// broadcastExcept queues a presence frame for every session but the sender.
func (h *Hub) broadcastExcept(sender string, frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, s := range h.sessions {
		if id == sender {
			continue
		}
		s.enqueue(frame)
	}
}

func (h *Hub) register(conn *websocket.Conn) *Session {
	s := &Session{
		ID:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, h.sendBuffer),
	}
	h.mu.Lock()
	h.sessions[s.ID] = s
	n := len(h.sessions)
	h.mu.Unlock()
	glog.Infof("[hub] client connected: %s (%d online)", s.ID, n)
	return s
}

func (h *Hub) unregister(s *Session) {
	h.mu.Lock()
	if _, ok := h.sessions[s.ID]; ok {
		delete(h.sessions, s.ID)
		close(s.send)
	}
	n := len(h.sessions)
	h.mu.Unlock()
	glog.Infof("[hub] client disconnected: %s (%d online)", s.ID, n)
}

// Count returns the number of connected sessions.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Seq returns the sequence number of the last published event.
func (h *Hub) Seq() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seq
}

// ServeHTTP upgrades the request and serves the session until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Warningf("[hub] failed to upgrade: %v", err)
		return
	}
	s := h.register(conn)
	s.run(r.Context())
}

// Close disconnects every session.
func (h *Hub) Close() {
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()
	for _, s := range sessions {
		_ = s.conn.Close()
	}
}
