// Package main runs a demo WebSocket client for route events.
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
	Type  string          `json:"type"`
	Event json.RawMessage `json:"event,omitempty"`
}

func post(url string, body any) *http.Response {
	b, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		log.Fatal(err)
	}
	return resp
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Create a small round trip
	resp := post(base+"/v1/routes", map[string]any{
		"mode":    "fastest",
		"anchors": map[string]any{"start": map[string]float64{"lat": 39.9526, "lng": -75.1652}, "returnToStart": true},
		"stops": []map[string]any{
			{"id": "a", "location": map[string]float64{"lat": 39.9612, "lng": -75.1551}},
			{"id": "b", "location": map[string]float64{"lat": 39.9496, "lng": -75.1503}},
			{"id": "c", "location": map[string]float64{"lat": 39.9418, "lng": -75.1745}},
		},
	})
	var rt struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rt); err != nil {
		log.Fatal(err)
	}
	_ = resp.Body.Close()
	if rt.ID == "" {
		log.Fatalf("create route: HTTP %d", resp.StatusCode)
	}
	log.Printf("Route ID: %s", rt.ID)

	// Connect WS
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/routes/" + rt.ID + "/events/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Event))
		}
	}()

	// Trigger events: optimize, start, then fail one stop to force a re-plan
	time.Sleep(300 * time.Millisecond)
	_ = post(fmt.Sprintf("%s/v1/routes/%s/optimize", base, rt.ID), map[string]any{"timeBudgetMs": 1000}).Body.Close()
	_ = post(fmt.Sprintf("%s/v1/routes/%s/start", base, rt.ID), nil).Body.Close()
	for _, st := range []string{"in_transit", "arrived", "failed"} {
		_ = post(fmt.Sprintf("%s/v1/routes/%s/stops/a/status", base, rt.ID), map[string]string{"status": st, "failureReason": "closed"}).Body.Close()
	}

	// Wait briefly to receive a few messages
	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}
