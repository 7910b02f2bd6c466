package control

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

// The API is loopback-only and consumed by the desktop shell, not a
// browser page, so cross-origin checks stay permissive.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleEvents streams status-changed snapshots over a websocket. The
// current snapshot is sent immediately on connect so subscribers never
// start blind.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", "err", err)
		return
	}
	defer func() { _ = conn.Close() }()

	events, cancel := s.bus.Subscribe()
	defer cancel()

	// Reader goroutine: we never expect client messages, but reading is how
	// gorilla surfaces close frames.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(v any) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(v); err != nil {
			s.log.Debug("status subscriber write failed", "err", err)
			return false
		}
		return true
	}

	if !send(s.sup.Status(r.Context())) {
		return
	}
	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case snap, ok := <-events:
			if !ok || !send(snap) {
				return
			}
		}
	}
}
