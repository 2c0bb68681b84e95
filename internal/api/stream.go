package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"

	"github.com/loqalabs/loqa-concierge/internal/protocol"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// StreamEvent is one frame on the session WebSocket.
type StreamEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// handleStream pushes the session's bus events to a WebSocket client,
// starting with the current snapshot.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	c, ok := s.session(w, r)
	if !ok {
		return
	}
	if s.bus == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("event stream unavailable"))
		return
	}

	msgs := make(chan *nats.Msg, 64)
	sub, err := s.bus.Conn().ChanSubscribe(protocol.SessionEventSubject(c.ID(), ">"), msgs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer func() { _ = sub.Unsubscribe() }()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slogError(err))
		return
	}
	defer conn.Close()
	logger := s.logger.With(slog.String("session_id", c.ID()))

	snapshot, err := json.Marshal(c.Snapshot())
	if err != nil {
		return
	}
	if err := writeEvent(conn, StreamEvent{Type: "snapshot", Data: snapshot}); err != nil {
		return
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Debug("websocket read ended", slogError(err))
				}
				return
			}
		}
	}()

	prefix := protocol.SessionEventSubject(c.ID(), "")
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case msg := <-msgs:
			evt := StreamEvent{Type: strings.TrimPrefix(msg.Subject, prefix), Data: msg.Data}
			if err := writeEvent(conn, evt); err != nil {
				logger.Debug("websocket write failed", slogError(err))
				return
			}
			if evt.Type == protocol.EventClosed {
				closeStream(conn, "session unmounted")
				return
			}
		case <-ticker.C:
			if _, ok := s.sessions.Get(c.ID()); !ok {
				closeStream(conn, "session unmounted")
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func closeStream(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

func writeEvent(conn *websocket.Conn, evt StreamEvent) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(evt)
}
