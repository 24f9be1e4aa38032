package opt

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"routeplanner/internal/model"
)

func gaProblem(seed int64, withWindows bool) *Problem {
	p := newProblem(randomPoints(seed, 31), 0, -1, false)
	if withWindows {
		rng := rand.New(rand.NewSource(seed))
		for _, v := range p.Stops[:10] {
			open := rng.Float64() * 600
			p.Windows[v] = Window{Earliest: open, Latest: open + 120, Set: true}
		}
	}
	return p
}

func TestGeneticNeverWorseThanNearestNeighbor(t *testing.T) {
	for seed := int64(1); seed <= 4; seed++ {
		p := gaProblem(seed, seed%2 == 0)
		nn := NearestNeighbor(p)
		floor := p.PathCost(nn) + p.penalty()*float64(p.LateCount(nn))

		g := &Genetic{Params: GeneticParams{MaxGenerations: 80}, Seed: seed}
		sol := g.Solve(context.Background(), p)
		requirePermutation(t, p, sol.Order)
		require.Equal(t, model.QualityApproximate, sol.Quality)
		require.LessOrEqual(t, sol.Cost, floor+1e-9)
		require.InDelta(t, floor, sol.Stats.BaselineCost, 1e-9)
		require.Equal(t, 80, sol.Stats.Generations)
	}
}

func TestGeneticDeterministicForSeed(t *testing.T) {
	p := gaProblem(7, true)
	run := func() Solution {
		g := &Genetic{Params: GeneticParams{MaxGenerations: 60}, Seed: 42}
		return g.Solve(context.Background(), p)
	}
	a, b := run(), run()
	require.Equal(t, a.Order, b.Order)
	require.Equal(t, a.Cost, b.Cost)
	require.Equal(t, a.Stats.Improvements, b.Stats.Improvements)
}

func TestGeneticStopsOnDeadline(t *testing.T) {
	p := gaProblem(5, false)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	g := &Genetic{Params: GeneticParams{MaxGenerations: 1 << 30}, Seed: 1}
	start := time.Now()
	sol := g.Solve(ctx, p)
	require.Less(t, time.Since(start), 2*time.Second)
	require.True(t, sol.Stats.DeadlineHit)
	requirePermutation(t, p, sol.Order)
}

func TestGeneticPrefersFeasibleOrders(t *testing.T) {
	// one tight window only reachable when visited first
	p := newProblem(randomPoints(11, 30), 0, -1, false)
	far := p.Stops[len(p.Stops)-1]
	d := p.Dur[0][far]
	p.Windows[far] = Window{Earliest: 0, Latest: d, Set: true}
	g := &Genetic{Params: GeneticParams{MaxGenerations: 300}, Seed: 3}
	sol := g.Solve(context.Background(), p)
	require.Zero(t, p.LateCount(sol.Order))
	require.Equal(t, far, sol.Order[0])
}

func TestOrderCrossoverKeepsPermutation(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	a := []int{1, 2, 3, 4, 5, 6, 7, 8}
	b := []int{8, 6, 4, 2, 7, 5, 3, 1}
	seen := make([]bool, 9)
	for i := 0; i < 50; i++ {
		c := orderCrossover(a, b, rng, seen)
		got := map[int]bool{}
		for _, g := range c {
			got[g] = true
		}
		require.Len(t, got, len(a))
	}
}

func TestGeneticZeroSeedIsReproducible(t *testing.T) {
	p := gaProblem(9, false)
	run := func() []int {
		g := &Genetic{Params: GeneticParams{MaxGenerations: 40}, Seed: 0}
		return g.Solve(context.Background(), p).Order
	}
	require.Equal(t, run(), run())
}
