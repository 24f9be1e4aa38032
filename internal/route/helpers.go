package route

import (
	"time"

	"routeplanner/internal/engine"
	"routeplanner/internal/model"
)

func fullRequest(r *model.Route) engine.Request {
	return engine.Request{
		RouteID:  r.ID,
		Stops:    append([]model.Stop(nil), r.Stops...),
		Anchors:  r.Anchors,
		Mode:     r.Mode,
		DepartAt: r.DepartAt,
	}
}

// partialRequest covers only the pending stops. The vehicle's current
// position (last arrived or completed stop, else the original start anchor)
// becomes the start and now the departure; the original end is kept. base
// is the number of stops no longer pending, so new sequence numbers
// continue after theirs.
func partialRequest(r *model.Route, now time.Time) (engine.Request, int) {
	var pending []model.Stop
	base := 0
	for _, st := range r.Stops {
		if st.Status == model.StopPending {
			pending = append(pending, st)
		} else {
			base++
		}
	}
	anchors := model.Anchors{Start: r.Anchors.Start, End: r.Anchors.ResolvedEnd()}
	if r.LastVisited != nil {
		loc := *r.LastVisited
		anchors.Start = &loc
	}
	if anchors.End == nil && r.Anchors.ReturnToStart && r.Anchors.Start == nil {
		// a closed tour returns to where it began once that stop is behind
		// the vehicle; while it is still pending the rest is an open path
		if first := firstStop(r.Stops); first != nil && first.Status != model.StopPending {
			loc := first.Location
			anchors.End = &loc
		}
	}
	return engine.Request{
		RouteID:  r.ID,
		Stops:    pending,
		Anchors:  anchors,
		Mode:     r.Mode,
		DepartAt: departure(r.DepartAt, now),
		Partial:  true,
	}, base
}

// departure is now expressed in the planned departure's zone, or the
// planned departure itself while it is still ahead.
func departure(planned, now time.Time) time.Time {
	if planned.IsZero() {
		return now.UTC()
	}
	if now.Before(planned) {
		return planned
	}
	return now.In(planned.Location())
}

// firstStop is the stop planned first: sequence 1 of the last optimization,
// or of the input order when the route was never optimized.
func firstStop(stops []model.Stop) *model.Stop {
	var byOriginal *model.Stop
	for i := range stops {
		st := &stops[i]
		if st.SequenceOptimized != nil && *st.SequenceOptimized == 1 {
			return st
		}
		if st.SequenceOriginal == 1 {
			byOriginal = st
		}
	}
	return byOriginal
}

func countPending(stops []model.Stop) int {
	n := 0
	for _, st := range stops {
		if st.Status == model.StopPending {
			n++
		}
	}
	return n
}

func allTerminal(stops []model.Stop) bool {
	for _, st := range stops {
		if !st.Status.Terminal() {
			return false
		}
	}
	return true
}

func progress(r *model.Route, stop *model.Stop) model.RouteProgressSnapshot {
	return model.RouteProgressSnapshot{
		RouteID:        r.ID,
		RouteStatus:    r.Status,
		StopID:         stop.ID,
		StopStatus:     stop.Status,
		TotalStops:     r.TotalStops,
		CompletedStops: r.CompletedStops,
		FailedStops:    r.FailedStops,
		SkippedStops:   r.SkippedStops,
	}
}

// cloneRoute copies the stop slice; pointer fields are replaced, never
// mutated, so sharing them is safe.
func cloneRoute(r model.Route) model.Route {
	r.Stops = append([]model.Stop(nil), r.Stops...)
	return r
}

func resultData(res model.OptimizationResult) map[string]any {
	return map[string]any{
		"order":      res.Order,
		"solver":     res.Solver,
		"quality":    res.Quality,
		"cost":       res.Cost,
		"violations": res.Violations,
		"partial":    res.Partial,
	}
}
