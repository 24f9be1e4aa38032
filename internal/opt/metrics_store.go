package opt

import (
	"sync"

	"routeplanner/internal/model"
)

const (
	// historyPerRoute bounds the in-memory solver history kept for each route.
	historyPerRoute = 20
	// historyRoutes bounds how many routes are tracked; the route recorded
	// least recently is dropped first.
	historyRoutes = 1024
)

var (
	mu      sync.Mutex
	history = map[string][]model.PlanStats{}
	lru     []string // route ids, least recently recorded first
)

// RecordStats appends one solver run to the route's recent history.
func RecordStats(routeID string, s model.PlanStats) {
	if routeID == "" {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	h := append(history[routeID], s)
	if len(h) > historyPerRoute {
		h = h[len(h)-historyPerRoute:]
	}
	history[routeID] = h
	touch(routeID)
	for len(lru) > historyRoutes {
		delete(history, lru[0])
		lru = lru[1:]
	}
}

func touch(routeID string) {
	for i, id := range lru {
		if id == routeID {
			lru = append(lru[:i], lru[i+1:]...)
			break
		}
	}
	lru = append(lru, routeID)
}

// StatsFor returns the route's recent solver runs, oldest first.
func StatsFor(routeID string) []model.PlanStats {
	mu.Lock()
	defer mu.Unlock()
	return append([]model.PlanStats(nil), history[routeID]...)
}
