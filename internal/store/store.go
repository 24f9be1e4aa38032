package store

import (
	"context"
	"errors"
	"time"

	"routeplanner/internal/model"
)

// Store is the persistence interface behind the route service, the API
// server and the webhook worker.
type Store interface {
	// Routes
	SaveRoute(ctx context.Context, r model.Route) error
	GetRoute(ctx context.Context, routeID string) (model.Route, error)
	ListRoutes(ctx context.Context, cursor string, limit int) ([]model.Route, string, error)

	// Solver run history
	SavePlanStats(ctx context.Context, s model.PlanStats) error
	ListPlanStats(ctx context.Context, routeID string, limit int) ([]model.PlanStats, error)

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
	ListWebhookDeliveries(ctx context.Context, status string, limit int) ([]WebhookDelivery, error)
}

var ErrNotFound = errors.New("not found")

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxListLimit {
		return defaultListLimit
	}
	return limit
}
