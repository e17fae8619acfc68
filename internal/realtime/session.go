package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"forumsync/internal/events"
	"forumsync/internal/models"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

// Session is one client connection. It only carries presence and typing
// signals; nothing it receives is persisted.
type Session struct {
	ID string

	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// enqueue must be called with hub.mu held.
func (s *Session) enqueue(frame []byte) bool {
	select {
	case s.send <- frame:
		return true
	default:
		glog.Warningf("[hub] send queue full for %s, dropping frame", s.ID)
		return false
	}
}

func (s *Session) run(ctx context.Context) {
	wg := new(sync.WaitGroup)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer s.hub.unregister(s)
		defer s.conn.Close()
		if err := s.readLoop(); err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			glog.V(1).Infof("[hub] %s: %v", s.ID, err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer s.conn.Close()
		if err := s.writeLoop(ctx); err != nil {
			glog.V(1).Infof("[hub] %s: %v", s.ID, err)
		}
	}()

	wg.Wait()
}

func (s *Session) readLoop() error {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		mt, p, err := s.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("failed to read message: %w", err)
		}
		if mt != websocket.TextMessage {
			continue
		}
		var msg events.Message
		if err := json.Unmarshal(p, &msg); err != nil {
			glog.Warningf("[hub] %s sent malformed frame: %v", s.ID, err)
			continue
		}
		s.handle(msg)
	}
}

func (s *Session) handle(msg events.Message) {
	switch msg.Type {
	case events.KindJoin:
		var data events.JoinData
		_ = json.Unmarshal(msg.Data, &data)
		name := displayName(data.Username)
		glog.Infof("[hub] user joined: %s", name)
		frame, err := events.EncodeSignal(events.KindUserJoined, events.UserJoinedData{
			Message: name + " joined the forum",
		})
		if err == nil {
			s.hub.broadcastExcept(s.ID, frame)
		}
	case events.KindTyping:
		var data events.TypingData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			glog.Warningf("[hub] %s sent malformed typing: %v", s.ID, err)
			return
		}
		frame, err := events.EncodeSignal(events.KindUserTyping, data)
		if err == nil {
			s.hub.broadcastExcept(s.ID, frame)
		}
	default:
		glog.V(1).Infof("[hub] %s sent unknown kind %q", s.ID, msg.Type)
	}
}

func (s *Session) writeLoop(ctx context.Context) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return nil
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return fmt.Errorf("failed to write message: %w", err)
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("failed to ping: %w", err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func displayName(name string) string {
	return models.AuthorOrDefault(strings.TrimSpace(name))
}
