// Package main runs a demo WebSocket client for solve events: it opens
// /ws/events, subscribes, then triggers solves and prints what arrives.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const demoProblem = `{
    "depot": {"lat": 41.0082, "lng": 28.9784},
    "customers": [
        {"id": "C1", "name": "Kadikoy", "coordinate": {"lat": 40.9905, "lng": 29.0250}, "demand": 3},
        {"id": "C2", "name": "Besiktas", "coordinate": {"lat": 41.0430, "lng": 29.0046}, "demand": 2},
        {"id": "C3", "name": "Uskudar", "coordinate": {"lat": 41.0226, "lng": 29.0164}, "demand": 4}
    ],
    "vehicles": [
        {"id": "V1", "name": "Truck 1", "type": "truck", "capacity": 10},
        {"id": "V2", "name": "Van 1", "type": "van", "capacity": 6}
    ]
}`

func solve(base string) {
	req, _ := http.NewRequest(http.MethodPost, base+"/api/vrp/solve", bytes.NewReader([]byte(demoProblem)))
	req.Header.Set("Content-Type", "application/json")
	if key := os.Getenv("API_KEY"); key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var env struct {
		Success  bool `json:"success"`
		Metadata struct {
			RequestID   string  `json:"requestId"`
			SolvingTime float64 `json:"solvingTime"`
		} `json:"metadata"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		log.Fatal(err)
	}
	log.Printf("solve %s: success=%v in %.3fs", env.Metadata.RequestID, env.Success, env.Metadata.SolvingTime)
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/ws/events"}
	hdr := http.Header{}
	if key := os.Getenv("API_KEY"); key != "" {
		hdr.Set("X-API-Key", key)
	}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	pl, _ := json.Marshal(map[string]any{"events": []string{"solve.completed", "solve.failed"}})
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
		}
	}()

	// give the server time to register the subscription
	time.Sleep(500 * time.Millisecond)
	solve(base)
	solve(base)

	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}
