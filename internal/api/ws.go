package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"routeplanner/internal/events"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

// wsMessage is the envelope for everything sent over the socket.
type wsMessage struct {
	Type  string        `json:"type"` // event | ping | pong
	Event *events.Event `json:"event,omitempty"`
}

const (
	wsReadTimeout = 60 * time.Second
	wsPingEvery   = 20 * time.Second
)

// wsEvents serves GET /v1/routes/{id}/events/ws: every route event is
// pushed as {"type":"event","event":{...}}. Clients may send {"type":"ping"}.
func (s *Server) wsEvents(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := s.Routes.Get(r.Context(), id); err != nil {
		s.writeError(w, r, "Get route failed", err)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	var wmu sync.Mutex
	write := func(v any) error {
		wmu.Lock()
		defer wmu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(v)
	}

	ch := s.Broker.Subscribe(id)
	done := make(chan struct{})
	defer func() {
		close(done)
		s.Broker.Unsubscribe(id, ch)
	}()

	go func() {
		ticker := time.NewTicker(wsPingEvery)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if err := write(wsMessage{Type: "event", Event: &evt}); err != nil {
					return
				}
			case <-ticker.C:
				wmu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				wmu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(wsReadTimeout)) })
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if msg.Type == "ping" {
			_ = write(wsMessage{Type: "pong"})
		}
	}
}
