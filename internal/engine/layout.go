package engine

import (
	"time"

	"routeplanner/internal/matrix"
	"routeplanner/internal/model"
	"routeplanner/internal/opt"
)

// layout maps a stop set and its anchors onto matrix positions: the start
// anchor first, then an explicit end anchor, then the stops in input order.
type layout struct {
	positions []model.Coordinate
	start     int
	end       int
	closed    bool
	offset    int // position of the first stop
}

func layoutFor(stops []model.Stop, a model.Anchors) layout {
	l := layout{start: -1, end: -1}
	if a.Start != nil {
		l.start = len(l.positions)
		l.positions = append(l.positions, *a.Start)
	}
	switch {
	case a.End != nil:
		l.end = len(l.positions)
		l.positions = append(l.positions, *a.End)
	case a.ReturnToStart && a.Start != nil:
		l.end = l.start
	}
	l.closed = a.ReturnToStart && a.Start == nil && a.End == nil
	l.offset = len(l.positions)
	for _, s := range stops {
		l.positions = append(l.positions, s.Location)
	}
	return l
}

func (l layout) problem(m *matrix.Matrix, stops []model.Stop, mode model.Mode, w float64, departAt time.Time) *opt.Problem {
	n := len(l.positions)
	cost, dist, dur := opt.Weigh(m, mode, w)
	p := &opt.Problem{
		Cost: cost, Dist: dist, Dur: dur,
		Start: l.start, End: l.end, Closed: l.closed,
		IDs:       make([]string, n),
		Priority:  make([]int, n),
		Service:   make([]float64, n),
		Windows:   make([]opt.Window, n),
		DepartSec: secondsSinceMidnight(departAt),
	}
	if l.start >= 0 {
		p.IDs[l.start] = model.StartAnchorID
	}
	if l.end >= 0 && l.end != l.start {
		p.IDs[l.end] = model.EndAnchorID
	}
	for i, s := range stops {
		v := l.offset + i
		p.Stops = append(p.Stops, v)
		p.IDs[v] = s.ID
		p.Priority[v] = s.Priority
		p.Service[v] = float64(s.ServiceSec)
		if s.TimeWindow != nil {
			// validated upstream
			lo, hi, _ := s.TimeWindow.Bounds()
			p.Windows[v] = opt.Window{Earliest: float64(lo), Latest: float64(hi), Set: true}
		}
	}
	return p
}

func secondsSinceMidnight(t time.Time) float64 {
	y, mo, d := t.Date()
	midnight := time.Date(y, mo, d, 0, 0, 0, 0, t.Location())
	return t.Sub(midnight).Seconds()
}

// assemble turns a solver order into the reported plan. Times are absolute,
// anchored to the midnight of departAt.
func assemble(p *opt.Problem, l layout, sol opt.Solution, departAt time.Time) model.OptimizationResult {
	y, mo, d := departAt.Date()
	midnight := time.Date(y, mo, d, 0, 0, 0, 0, departAt.Location())
	at := func(sec float64) time.Time {
		return midnight.Add(time.Duration(sec * float64(time.Second))).UTC()
	}

	sched := p.Schedule(sol.Order)
	path := p.Path(sol.Order)
	res := model.OptimizationResult{
		Order:      make([]string, len(sol.Order)),
		Path:       make([]model.Coordinate, len(path)),
		Legs:       make([]model.Leg, 0, len(path)),
		Violations: make([]string, 0, len(sched.Late)),
		Quality:    sol.Quality,
		Cost:       sol.Cost,
	}
	for i, v := range sol.Order {
		res.Order[i] = p.IDs[v]
	}
	for k, v := range path {
		res.Path[k] = l.positions[v]
	}
	label := func(k int) string {
		switch {
		case k == 0 && p.Start >= 0:
			return model.StartAnchorID
		case k == len(path)-1 && p.End >= 0:
			return model.EndAnchorID
		}
		return p.IDs[path[k]]
	}
	for k := 1; k < len(path); k++ {
		from, to := path[k-1], path[k]
		vis := sched.Visits[k]
		res.Legs = append(res.Legs, model.Leg{
			From:        label(k - 1),
			To:          label(k),
			DistanceM:   p.Dist[from][to],
			DurationSec: p.Dur[from][to],
			WaitSec:     vis.Wait,
			ArriveAt:    at(vis.Arrive),
			DepartAt:    at(vis.Depart),
		})
		res.TotalDistanceM += p.Dist[from][to]
		res.TotalDurationSec += p.Dur[from][to]
	}
	if len(sched.Visits) > 0 {
		res.TotalElapsedSec = sched.Visits[len(sched.Visits)-1].Depart - p.DepartSec
	}
	for _, v := range sched.Late {
		res.Violations = append(res.Violations, p.IDs[v])
	}
	return res
}
