package opt

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

type pt struct{ x, y float64 }

// newProblem builds a fastest-mode instance with Euclidean unit costs. All
// nodes other than start and end are stops.
func newProblem(pts []pt, start, end int, closed bool) *Problem {
	n := len(pts)
	cost := square(n)
	for i := range pts {
		for j := range pts {
			cost[i][j] = math.Hypot(pts[i].x-pts[j].x, pts[i].y-pts[j].y)
		}
	}
	p := &Problem{
		Cost: cost, Dist: cost, Dur: cost,
		Start: start, End: end, Closed: closed,
		IDs:      make([]string, n),
		Priority: make([]int, n),
		Service:  make([]float64, n),
		Windows:  make([]Window, n),
	}
	for i := 0; i < n; i++ {
		p.IDs[i] = fmt.Sprintf("s%02d", i)
		p.Priority[i] = 5
		if i != start && i != end {
			p.Stops = append(p.Stops, i)
		}
	}
	return p
}

func randomPoints(seed int64, n int) []pt {
	rng := rand.New(rand.NewSource(seed))
	out := make([]pt, n)
	for i := range out {
		out[i] = pt{rng.Float64() * 100, rng.Float64() * 100}
	}
	return out
}

func requirePermutation(t *testing.T, p *Problem, order []int) {
	t.Helper()
	got := append([]int(nil), order...)
	want := append([]int(nil), p.Stops...)
	sort.Ints(got)
	sort.Ints(want)
	require.Equal(t, want, got)
}

// bruteForce returns the minimum PathCost over all stop permutations.
func bruteForce(p *Problem) float64 {
	best := math.Inf(1)
	perm := append([]int(nil), p.Stops...)
	var rec func(k int)
	rec = func(k int) {
		if k == len(perm) {
			if c := p.PathCost(perm); c < best {
				best = c
			}
			return
		}
		for i := k; i < len(perm); i++ {
			perm[k], perm[i] = perm[i], perm[k]
			rec(k + 1)
			perm[k], perm[i] = perm[i], perm[k]
		}
	}
	rec(0)
	return best
}
