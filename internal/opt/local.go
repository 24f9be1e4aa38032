package opt

import (
	"context"
	"time"

	"routeplanner/internal/model"
)

// Local builds a nearest-neighbor order and improves it with best-move
// 2-opt until a pass finds nothing, 10*N passes have run, or the context
// expires. Time windows are not enforced here; late stops are reported by
// the schedule afterwards.
type Local struct{}

func (Local) Name() string { return "local" }

func (Local) Solve(ctx context.Context, p *Problem) Solution {
	start := time.Now()
	order := NearestNeighbor(p)
	cost := p.PathCost(order)
	st := Stats{BaselineCost: cost}

	maxPasses := 10 * len(p.Stops)
	for st.Iterations < maxPasses {
		if ctx.Err() != nil {
			st.DeadlineHit = true
			break
		}
		st.Iterations++
		next, c, ok := bestTwoOptMove(p, order, cost)
		if !ok {
			break
		}
		order, cost = next, c
		st.Improvements++
	}

	st.FinalCost = cost
	st.Elapsed = time.Since(start)
	q := model.QualityImproved
	if st.DeadlineHit {
		q = model.QualityApproximate
	}
	return Solution{Order: order, Cost: cost, Quality: q, Stats: st}
}

// bestTwoOptMove scans every segment reversal and returns the one with the
// lowest path cost, if it beats cost. Reversal changes the direction of the
// inner edges, so the whole path is re-priced for asymmetric matrices.
func bestTwoOptMove(p *Problem, order []int, cost float64) ([]int, float64, bool) {
	n := len(order)
	var best []int
	bestCost := cost
	for i := 0; i < n-1; i++ {
		for k := i + 1; k < n; k++ {
			cand := twoOptSwap(order, i, k)
			if c := p.PathCost(cand); c < bestCost-eps {
				best, bestCost = cand, c
			}
		}
	}
	return best, bestCost, best != nil
}

func twoOptSwap(ord []int, i, k int) []int {
	out := make([]int, len(ord))
	copy(out, ord[:i])
	pos := i
	for j := k; j >= i; j-- {
		out[pos] = ord[j]
		pos++
	}
	copy(out[pos:], ord[k+1:])
	return out
}
