package opt

import (
	"context"
	"math"
	"sort"
	"time"

	"routeplanner/internal/model"
)

// Exact is a depth-first branch-and-bound over stop permutations. Time
// windows prune during expansion; if no ordering honors every window the
// search is repeated on cost alone and the late stops are reported by the
// schedule.
type Exact struct{}

func (Exact) Name() string { return "exact" }

type bbEngine struct {
	ctx      context.Context
	p        *Problem
	hard     bool
	m        int
	minOut   map[int]float64
	neighbor map[int][]int // node -> stop nodes by ascending cost, then index
	openEnd  bool          // no terminal edge after the last stop

	steps   int
	aborted bool

	best      float64
	bestOrder []int
	path      []int
	first     int
}

func (Exact) Solve(ctx context.Context, p *Problem) Solution {
	start := time.Now()
	nn := NearestNeighbor(p)
	baseline := p.PathCost(nn)
	if len(p.Stops) <= 1 {
		return Solution{Order: nn, Cost: baseline, Quality: model.QualityOptimal,
			Stats: Stats{BaselineCost: baseline, FinalCost: baseline, Elapsed: time.Since(start)}}
	}

	hasWindows := p.hasWindows()
	e := newBB(ctx, p, hasWindows)
	if !hasWindows || p.LateCount(nn) == 0 {
		e.seed(nn, baseline)
	}
	e.run()
	nodes := e.steps

	if e.bestOrder == nil && hasWindows && !e.aborted {
		// nothing honors every window: minimize cost alone
		e = newBB(ctx, p, false)
		e.seed(nn, baseline)
		e.run()
		nodes += e.steps
	}

	sol := Solution{Order: e.bestOrder, Cost: e.best, Quality: model.QualityOptimal}
	if e.aborted {
		sol.Quality = model.QualityApproximate
	}
	if sol.Order == nil {
		sol.Order, sol.Cost = nn, baseline
	}
	sol.Stats = Stats{
		Nodes:        nodes,
		BaselineCost: baseline,
		FinalCost:    sol.Cost,
		Elapsed:      time.Since(start),
		DeadlineHit:  e.aborted,
	}
	return sol
}

func newBB(ctx context.Context, p *Problem, hard bool) *bbEngine {
	e := &bbEngine{
		ctx:      ctx,
		p:        p,
		hard:     hard,
		m:        len(p.Stops),
		minOut:   make(map[int]float64, len(p.Stops)+1),
		neighbor: make(map[int][]int, len(p.Stops)+1),
		openEnd:  p.End < 0 && !p.Closed,
		best:     math.Inf(1),
		path:     make([]int, 0, len(p.Stops)),
	}
	sources := append([]int(nil), p.Stops...)
	if p.Start >= 0 {
		sources = append(sources, p.Start)
	}
	for _, u := range sources {
		lo := math.Inf(1)
		for _, v := range p.Stops {
			if v != u && p.Cost[u][v] < lo {
				lo = p.Cost[u][v]
			}
		}
		if p.End >= 0 && p.End != u && p.Cost[u][p.End] < lo {
			lo = p.Cost[u][p.End]
		}
		if math.IsInf(lo, 1) {
			lo = 0
		}
		e.minOut[u] = lo

		row := make([]int, 0, len(p.Stops))
		for _, v := range p.Stops {
			if v != u {
				row = append(row, v)
			}
		}
		sort.SliceStable(row, func(i, j int) bool {
			ci, cj := p.Cost[u][row[i]], p.Cost[u][row[j]]
			if ci != cj {
				return ci < cj
			}
			return row[i] < row[j]
		})
		e.neighbor[u] = row
	}
	return e
}

func (e *bbEngine) seed(order []int, cost float64) {
	e.best = cost
	e.bestOrder = append([]int(nil), order...)
}

// deadlineCheck polls the context on the first expansion and every 1024
// after that.
func (e *bbEngine) deadlineCheck() bool {
	e.steps++
	if e.steps&1023 == 1 && e.ctx.Err() != nil {
		e.aborted = true
	}
	return e.aborted
}

func (e *bbEngine) run() {
	if e.p.Start >= 0 {
		e.dfs(e.p.Start, map[int]bool{}, 0, e.p.DepartSec)
		return
	}
	// no start anchor: every stop may open the route
	roots := append([]int(nil), e.p.Stops...)
	sort.SliceStable(roots, func(i, j int) bool { return e.p.better(roots[i], roots[j]) })
	if e.p.Closed && !e.hard {
		// rotations of a closed tour cost the same
		roots = roots[:1]
	}
	for _, v := range roots {
		if e.aborted {
			return
		}
		t, ok := e.arrive(e.p.DepartSec, v)
		if !ok {
			continue
		}
		e.first = v
		e.path = append(e.path[:0], v)
		e.dfs(v, map[int]bool{v: true}, 0, t)
	}
}

// arrive returns the departure time from v after arriving at t, or false
// when the window is hard and already closed.
func (e *bbEngine) arrive(t float64, v int) (float64, bool) {
	if w := e.p.Windows[v]; w.Set {
		if e.hard && t > w.Latest+eps {
			return 0, false
		}
		if t < w.Earliest {
			t = w.Earliest
		}
	}
	return t + e.p.Service[v], true
}

// lowerBound adds one cheapest outgoing edge for the current node and for
// every unvisited stop. An open-ended path drops the largest, since its
// final stop leaves nowhere.
func (e *bbEngine) lowerBound(cost float64, last int, used map[int]bool) float64 {
	sum := e.minOut[last]
	mx := sum
	for _, v := range e.p.Stops {
		if used[v] {
			continue
		}
		lo := e.minOut[v]
		sum += lo
		if lo > mx {
			mx = lo
		}
	}
	if e.openEnd {
		sum -= mx
	}
	return cost + sum
}

func (e *bbEngine) closing(last int) float64 {
	switch {
	case e.p.End >= 0:
		return e.p.Cost[last][e.p.End]
	case e.p.Closed:
		return e.p.Cost[last][e.first]
	}
	return 0
}

func (e *bbEngine) dfs(last int, used map[int]bool, cost, t float64) {
	if e.deadlineCheck() {
		return
	}
	if len(e.path) == e.m {
		total := cost + e.closing(last)
		if total < e.best-eps {
			e.best = total
			e.bestOrder = append(e.bestOrder[:0], e.path...)
		}
		return
	}
	if e.lowerBound(cost, last, used) >= e.best-eps {
		return
	}
	for _, v := range e.neighbor[last] {
		if used[v] {
			continue
		}
		next, ok := e.arrive(t+e.p.Dur[last][v], v)
		if !ok {
			continue
		}
		used[v] = true
		e.path = append(e.path, v)
		e.dfs(v, used, cost+e.p.Cost[last][v], next)
		e.path = e.path[:len(e.path)-1]
		delete(used, v)
		if e.aborted {
			return
		}
	}
}
