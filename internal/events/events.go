// Package events carries route lifecycle notifications to live subscribers
// (SSE, websocket) and to outbound sinks (webhooks, AMQP).
package events

import (
	"time"
)

const (
	TypeRouteOptimized     = "route.optimized"
	TypeRouteReoptimized   = "route.reoptimized"
	TypeRouteStatusChanged = "route.status_changed"
	TypeStopTransitioned   = "stop.transitioned"
)

type Event struct {
	Type    string         `json:"type"`
	RouteID string         `json:"routeId"`
	Data    map[string]any `json:"data,omitempty"`
	At      time.Time      `json:"at"`
}

// Publisher accepts events for a route. Publish must not block the caller
// on slow consumers.
type Publisher interface {
	Publish(routeID string, evt Event)
}

// Broker is a Publisher with per-route subscriptions.
type Broker interface {
	Publisher
	Subscribe(routeID string) chan Event
	Unsubscribe(routeID string, ch chan Event)
}

// Fanout forwards every event to each publisher in order.
type Fanout []Publisher

func (f Fanout) Publish(routeID string, evt Event) {
	for _, p := range f {
		if p != nil {
			p.Publish(routeID, evt)
		}
	}
}

// New stamps an event with the current time.
func New(typ, routeID string, data map[string]any) Event {
	return Event{Type: typ, RouteID: routeID, Data: data, At: time.Now().UTC()}
}
