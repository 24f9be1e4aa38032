package opt

import (
	"context"
	"time"

	"routeplanner/internal/model"
)

// Solver orders the stops of a Problem. Solvers never fail: when the
// context expires they return the best order found so far with an honest
// quality tag.
type Solver interface {
	Name() string
	Solve(ctx context.Context, p *Problem) Solution
}

type Solution struct {
	Order   []int // stop nodes in visiting order
	Cost    float64
	Quality model.Quality
	Stats   Stats
}

type Stats struct {
	Iterations   int
	Nodes        int
	Generations  int
	Improvements int
	BaselineCost float64
	FinalCost    float64
	Elapsed      time.Duration
	DeadlineHit  bool
}

// Tiers are the inclusive instance-size ceilings for the exact and local
// search solvers; anything larger goes to the genetic solver.
type Tiers struct {
	ExactMax int
	LocalMax int
}

func DefaultTiers() Tiers { return Tiers{ExactMax: 10, LocalMax: 25} }

// Select picks a solver by instance size n, counting stops and anchors.
func Select(n int, t Tiers, ga GeneticParams, seed int64) Solver {
	switch {
	case n <= t.ExactMax:
		return Exact{}
	case n <= t.LocalMax:
		return Local{}
	default:
		return &Genetic{Params: ga, Seed: seed}
	}
}

// NearestNeighbor builds a greedy order from the start anchor, or from the
// highest-priority stop when there is none.
func NearestNeighbor(p *Problem) []int {
	m := len(p.Stops)
	if m == 0 {
		return nil
	}
	used := make(map[int]bool, m)
	order := make([]int, 0, m)
	cur := p.Start
	if cur < 0 {
		first := p.Stops[0]
		for _, v := range p.Stops[1:] {
			if p.better(v, first) {
				first = v
			}
		}
		order = append(order, first)
		used[first] = true
		cur = first
	}
	for len(order) < m {
		next := -1
		for _, v := range p.Stops {
			if used[v] {
				continue
			}
			if next < 0 {
				next = v
				continue
			}
			c, best := p.Cost[cur][v], p.Cost[cur][next]
			if almostEqual(c, best) {
				if p.better(v, next) {
					next = v
				}
			} else if c < best {
				next = v
			}
		}
		order = append(order, next)
		used[next] = true
		cur = next
	}
	return order
}
