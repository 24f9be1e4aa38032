package webhooks

import (
	"context"
	"encoding/json"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"routeplanner/internal/events"
	"routeplanner/internal/store"
)

// Sink is one configured webhook endpoint. An empty Events list receives
// every event type.
type Sink struct {
	URL    string   `yaml:"url"`
	Secret string   `yaml:"secret"`
	Events []string `yaml:"events"`
}

func (s Sink) wants(eventType string) bool {
	return len(s.Events) == 0 || slices.Contains(s.Events, eventType)
}

// Publisher turns route events into queued webhook deliveries. It
// implements events.Publisher; actual HTTP delivery happens in Worker.
type Publisher struct {
	Store store.Store
	Sinks []Sink
	Log   zerolog.Logger
}

func NewPublisher(s store.Store, sinks []Sink, log zerolog.Logger) *Publisher {
	return &Publisher{Store: s, Sinks: sinks, Log: log}
}

func (p *Publisher) Publish(routeID string, evt events.Event) {
	var targets []Sink
	for _, s := range p.Sinks {
		if s.wants(evt.Type) {
			targets = append(targets, s)
		}
	}
	if len(targets) == 0 {
		return
	}
	body, err := json.Marshal(map[string]any{
		"id":      "evt_" + uuid.NewString(),
		"type":    evt.Type,
		"routeId": routeID,
		"ts":      evt.At.UTC().Format(time.RFC3339),
		"data":    evt.Data,
	})
	if err != nil {
		p.Log.Error().Err(err).Str("type", evt.Type).Msg("encode webhook payload")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, s := range targets {
		if _, err := p.Store.EnqueueWebhook(ctx, evt.Type, s.URL, s.Secret, body); err != nil {
			p.Log.Warn().Err(err).Str("url", s.URL).Str("type", evt.Type).Msg("enqueue webhook failed")
		}
	}
}
