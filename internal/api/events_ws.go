package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket event stream, graphql-transport-ws flavored: connection_init,
// subscribe/next/complete, ping/pong.

var upgrader = websocket.Upgrader{CheckOrigin: func(_ *http.Request) bool { return true }}

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type wsSubscribePayload struct {
	Events []string `json:"events"`
}

// EventsWSHandler handles /ws/events. A subscribe payload may carry an
// {"events":[...]} filter; an absent filter streams every event kind.
func (s *Server) EventsWSHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	// WriteJSON is not safe for concurrent use; the keepalive ticker and
	// the fanout goroutines all write through this lock.
	var wmu sync.Mutex
	write := func(v any) error {
		wmu.Lock()
		defer wmu.Unlock()
		return conn.WriteJSON(v)
	}

	subs := map[string]chan Event{}

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		// any inbound traffic keeps the connection alive, JSON pings included
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		switch msg.Type {
		case "connection_init":
			_ = write(wsMessage{Type: "connection_ack"})
			go func() {
				ticker := time.NewTicker(20 * time.Second)
				defer ticker.Stop()
				for range ticker.C {
					if err := write(wsMessage{Type: "ping"}); err != nil {
						return
					}
				}
			}()
		case "ping":
			_ = write(wsMessage{Type: "pong"})
		case "subscribe":
			if _, ok := subs[msg.ID]; ok {
				continue
			}
			var pl wsSubscribePayload
			if len(msg.Payload) > 0 {
				_ = json.Unmarshal(msg.Payload, &pl)
			}
			ch := s.Broker.Subscribe()
			subs[msg.ID] = ch
			go func(id string, c chan Event, kinds []string) {
				for evt := range c {
					if !wantEvent(kinds, evt.Type) {
						continue
					}
					payload, _ := json.Marshal(evt)
					_ = write(wsMessage{Type: "next", ID: id, Payload: payload})
				}
				_ = write(wsMessage{Type: "complete", ID: id})
			}(msg.ID, ch, pl.Events)
		case "complete":
			if ch, ok := subs[msg.ID]; ok {
				s.Broker.Unsubscribe(ch)
				delete(subs, msg.ID)
			}
		default:
			// ignore
		}
	}
	for id, ch := range subs {
		s.Broker.Unsubscribe(ch)
		delete(subs, id)
	}
}

// wantEvent reports whether the filter admits event type t. An empty
// filter admits everything.
func wantEvent(kinds []string, t string) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, k := range kinds {
		if k == t {
			return true
		}
	}
	return false
}
