package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"routeplanner/internal/buildinfo"
	"routeplanner/internal/model"
	"routeplanner/internal/opt"
	"routeplanner/internal/route"
)

// RoutesIndexHandler handles POST/GET /v1/routes
func (s *Server) RoutesIndexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/routes" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	switch r.Method {
	case http.MethodPost:
		var in route.CreateInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		rt, err := s.Routes.Create(r.Context(), in)
		if err != nil {
			s.writeError(w, r, "Create route failed", err)
			return
		}
		writeJSON(w, http.StatusCreated, rt)
	case http.MethodGet:
		cursor := r.URL.Query().Get("cursor")
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, next, err := s.Routes.List(r.Context(), cursor, limit)
		if err != nil {
			s.writeError(w, r, "List routes failed", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// RouteByIDHandler handles /v1/routes/{id} and its sub-resources.
func (s *Server) RouteByIDHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	rest := strings.TrimPrefix(path, "/v1/routes/")
	if rest == path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", path)
		return
	}
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	id := parts[0]

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		rt, err := s.Routes.Get(r.Context(), id)
		if err != nil {
			s.writeError(w, r, "Get route failed", err)
			return
		}
		writeJSON(w, http.StatusOK, rt)
	case len(parts) == 2 && parts[1] == "optimize":
		s.optimize(w, r, id)
	case len(parts) == 2 && (parts[1] == "start" || parts[1] == "cancel"):
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		action := s.Routes.Start
		if parts[1] == "cancel" {
			action = s.Routes.Cancel
		}
		rt, err := action(r.Context(), id)
		if err != nil {
			s.writeError(w, r, "Route update failed", err)
			return
		}
		writeJSON(w, http.StatusOK, rt)
	case len(parts) == 4 && parts[1] == "stops" && parts[3] == "status":
		s.transitionStop(w, r, id, parts[2])
	case len(parts) == 3 && parts[1] == "events" && parts[2] == "stream":
		s.streamEvents(w, r, id)
	case len(parts) == 3 && parts[1] == "events" && parts[2] == "ws":
		s.wsEvents(w, r, id)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", path)
	}
}

func (s *Server) optimize(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.limiter != nil && !s.limiter.Allow() {
		w.Header().Set("Retry-After", "1")
		writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "optimize rate limit exceeded", r.URL.Path)
		return
	}
	var body struct {
		TimeBudgetMs int    `json:"timeBudgetMs"`
		Seed         *int64 `json:"seed"`
	}
	if err := decodeOptional(r, &body); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if body.TimeBudgetMs < 0 {
		writeProblem(w, http.StatusBadRequest, "Invalid optimize request", "timeBudgetMs must not be negative", r.URL.Path)
		return
	}
	res, err := s.Routes.Optimize(r.Context(), id, route.OptimizeOptions{
		Budget: time.Duration(body.TimeBudgetMs) * time.Millisecond,
		Seed:   body.Seed,
	})
	if err != nil {
		s.writeError(w, r, "Optimize failed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) transitionStop(w http.ResponseWriter, r *http.Request, routeID, stopID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Status        model.StopStatus `json:"status"`
		FailureReason string           `json:"failureReason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if body.Status == "" {
		writeProblem(w, http.StatusBadRequest, "Missing status", "", r.URL.Path)
		return
	}
	snap, err := s.Routes.TransitionStop(r.Context(), routeID, stopID, body.Status, body.FailureReason)
	if err != nil {
		s.writeError(w, r, "Stop transition failed", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// PlanMetricsHandler handles GET /v1/admin/plan-metrics?routeId=
func (s *Server) PlanMetricsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	routeID := r.URL.Query().Get("routeId")
	if routeID == "" {
		writeProblem(w, http.StatusBadRequest, "Missing routeId", "", r.URL.Path)
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	// Prefer stored history; fall back to this process's recent runs
	items, err := s.Routes.PlanStats(r.Context(), routeID, limit)
	if err != nil || len(items) == 0 {
		recent := opt.StatsFor(routeID)
		items = make([]model.PlanStats, 0, len(recent))
		for i := len(recent) - 1; i >= 0 && len(items) < limit; i-- {
			items = append(items, recent[i])
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// WebhookDeliveriesHandler handles GET /v1/admin/webhook-deliveries?status=
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, err := s.Store.ListWebhookDeliveries(r.Context(), r.URL.Query().Get("status"), limit)
	if err != nil {
		s.writeError(w, r, "List deliveries failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{"status": "ok"}
	for k, v := range buildinfo.Info() {
		body[k] = v
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	// Check DB connectivity when using Postgres store
	type pinger interface{ Ping(ctx context.Context) error }
	if pg, ok := s.Store.(pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if err := pg.Ping(ctx); err != nil {
			writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
