package opt

import (
	"context"
	"math/rand"
	"sort"
	"time"

	"routeplanner/internal/model"
)

// GeneticParams bound the genetic search. Zero values take the defaults.
type GeneticParams struct {
	PopulationCap  int     // 200
	MaxGenerations int     // 2000
	EliteFraction  float64 // 0.05
	TournamentSize int     // 3
}

func (g GeneticParams) withDefaults() GeneticParams {
	if g.PopulationCap <= 0 {
		g.PopulationCap = 200
	}
	if g.MaxGenerations <= 0 {
		g.MaxGenerations = 2000
	}
	if g.EliteFraction <= 0 || g.EliteFraction >= 1 {
		g.EliteFraction = 0.05
	}
	if g.TournamentSize <= 0 {
		g.TournamentSize = 3
	}
	return g
}

// Genetic evolves stop permutations with order crossover, swap mutation and
// elitism. Fitness is path cost plus a dominating penalty per missed
// window. The nearest-neighbor order seeds the population, so the result
// never scores worse than it. The context deadline is the main stop signal.
type Genetic struct {
	Params GeneticParams
	// Seed is used as given; callers wanting a fresh run pick a clock-derived value.
	Seed int64
}

func (*Genetic) Name() string { return "genetic" }

type individual struct {
	genes []int
	fit   float64
}

func (g *Genetic) Solve(ctx context.Context, p *Problem) Solution {
	start := time.Now()
	prm := g.Params.withDefaults()
	rng := rand.New(rand.NewSource(g.Seed))

	penalty := p.penalty()
	fitness := func(order []int) float64 {
		return p.PathCost(order) + penalty*float64(p.LateCount(order))
	}

	nn := NearestNeighbor(p)
	baseline := fitness(nn)
	m := len(p.Stops)
	st := Stats{BaselineCost: baseline}
	if m < 3 {
		st.FinalCost = baseline
		st.Elapsed = time.Since(start)
		return Solution{Order: nn, Cost: baseline, Quality: model.QualityApproximate, Stats: st}
	}

	size := min(prm.PopulationCap, 10*m)
	elite := max(1, int(float64(size)*prm.EliteFraction))

	pop := make([]individual, 0, size)
	pop = append(pop, individual{genes: nn, fit: baseline})
	for len(pop) < size {
		genes := append([]int(nil), p.Stops...)
		rng.Shuffle(len(genes), func(i, j int) { genes[i], genes[j] = genes[j], genes[i] })
		pop = append(pop, individual{genes: genes, fit: fitness(genes)})
	}
	rank(pop)
	best := pop[0]

	nodes := len(p.Cost)
	seen := make([]bool, nodes)
	mutRate := 1 / float64(m)
	for st.Generations < prm.MaxGenerations {
		if ctx.Err() != nil {
			st.DeadlineHit = true
			break
		}
		st.Generations++
		next := make([]individual, 0, size)
		next = append(next, pop[:elite]...)
		for len(next) < size {
			a := tournament(pop, prm.TournamentSize, rng)
			b := tournament(pop, prm.TournamentSize, rng)
			child := orderCrossover(a.genes, b.genes, rng, seen)
			for i := range child {
				if rng.Float64() < mutRate {
					j := rng.Intn(m)
					child[i], child[j] = child[j], child[i]
				}
			}
			next = append(next, individual{genes: child, fit: fitness(child)})
		}
		rank(next)
		pop = next
		if pop[0].fit < best.fit-eps {
			best = pop[0]
			st.Improvements++
		}
	}

	st.Iterations = st.Generations
	st.FinalCost = best.fit
	st.Elapsed = time.Since(start)
	return Solution{
		Order:   append([]int(nil), best.genes...),
		Cost:    best.fit,
		Quality: model.QualityApproximate,
		Stats:   st,
	}
}

func rank(pop []individual) {
	sort.SliceStable(pop, func(i, j int) bool { return pop[i].fit < pop[j].fit })
}

func tournament(pop []individual, k int, rng *rand.Rand) individual {
	best := pop[rng.Intn(len(pop))]
	for i := 1; i < k; i++ {
		if c := pop[rng.Intn(len(pop))]; c.fit < best.fit {
			best = c
		}
	}
	return best
}

// orderCrossover (OX) copies a random slice of a and fills the rest with
// b's genes in b's order, starting after the slice. seen is scratch space
// indexed by node.
func orderCrossover(a, b []int, rng *rand.Rand, seen []bool) []int {
	n := len(a)
	i, j := rng.Intn(n), rng.Intn(n)
	if i > j {
		i, j = j, i
	}
	child := make([]int, n)
	for k := range seen {
		seen[k] = false
	}
	for k := i; k <= j; k++ {
		child[k] = a[k]
		seen[a[k]] = true
	}
	pos := (j + 1) % n
	for k := 0; k < n; k++ {
		g := b[(j+1+k)%n]
		if seen[g] {
			continue
		}
		child[pos] = g
		pos = (pos + 1) % n
	}
	return child
}
