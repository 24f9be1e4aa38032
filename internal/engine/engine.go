// Package engine is the single entry point for optimizing a stop set:
// validate, build the matrix, pick a solver by size, run it under a
// deadline and assemble the plan.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"routeplanner/internal/matrix"
	"routeplanner/internal/metrics"
	"routeplanner/internal/model"
	"routeplanner/internal/opt"
	"routeplanner/internal/validate"
)

// ErrOracleUnavailable is returned when the matrix could not be completed.
// Callers may retry later.
var ErrOracleUnavailable = matrix.ErrOracleUnavailable

type Config struct {
	Tiers          opt.Tiers
	Genetic        opt.GeneticParams
	DefaultBudget  time.Duration
	BalancedWeight float64
}

func DefaultConfig() Config {
	return Config{
		Tiers:          opt.DefaultTiers(),
		DefaultBudget:  5 * time.Second,
		BalancedWeight: 0.5,
	}
}

// Request describes one optimize call. Budget falls back to the configured
// default. A nil Seed is derived from the clock; any set value, zero
// included, is used as given.
type Request struct {
	RouteID  string
	Stops    []model.Stop
	Anchors  model.Anchors
	Mode     model.Mode
	DepartAt time.Time
	Budget   time.Duration
	Seed     *int64
	Partial  bool
}

type Engine struct {
	builder *matrix.Builder
	cfg     Config
	log     zerolog.Logger
	group   singleflight.Group

	now    func() time.Time
	choose func(n int, seed int64) opt.Solver
}

func New(b *matrix.Builder, cfg Config, log zerolog.Logger) *Engine {
	if cfg.DefaultBudget <= 0 {
		cfg.DefaultBudget = 5 * time.Second
	}
	if cfg.Tiers == (opt.Tiers{}) {
		cfg.Tiers = opt.DefaultTiers()
	}
	e := &Engine{builder: b, cfg: cfg, log: log, now: time.Now}
	e.choose = func(n int, seed int64) opt.Solver { return opt.Select(n, e.cfg.Tiers, e.cfg.Genetic, seed) }
	return e
}

// Optimize returns a plan or one of: *validate.Error, ErrOracleUnavailable.
// Concurrent calls for the same route id, scope (full or partial) and stop
// count share one computation and its result.
func (e *Engine) Optimize(ctx context.Context, req Request) (model.OptimizationResult, error) {
	if req.RouteID == "" {
		return e.optimize(ctx, req)
	}
	v, err, shared := e.group.Do(flightKey(req), func() (any, error) {
		return e.optimize(context.WithoutCancel(ctx), req)
	})
	if err != nil {
		return model.OptimizationResult{}, err
	}
	res := v.(model.OptimizationResult)
	if shared {
		res = clone(res)
	}
	return res, nil
}

func flightKey(req Request) string {
	scope := "full"
	if req.Partial {
		scope = "partial"
	}
	return fmt.Sprintf("%s|%s|%d", req.RouteID, scope, len(req.Stops))
}

func (e *Engine) optimize(ctx context.Context, req Request) (model.OptimizationResult, error) {
	start := time.Now()
	mode := req.Mode
	if mode == "" {
		mode = model.ModeFastest
	}
	n, err := validate.Check(req.Stops, req.Anchors, mode)
	if err != nil {
		metrics.OptimizeErrors.WithLabelValues("validation").Inc()
		return model.OptimizationResult{}, err
	}
	departAt := req.DepartAt
	if departAt.IsZero() {
		departAt = e.now()
	}
	if len(req.Stops) == 0 {
		return e.trivial(req, mode), nil
	}

	lay := layoutFor(req.Stops, req.Anchors)
	m, err := e.builder.Build(ctx, lay.positions)
	if err != nil {
		metrics.OptimizeErrors.WithLabelValues("oracle").Inc()
		e.log.Warn().Err(err).Str("route_id", req.RouteID).Msg("optimize aborted")
		if !errors.Is(err, ErrOracleUnavailable) {
			err = fmt.Errorf("%w: %w", ErrOracleUnavailable, err)
		}
		return model.OptimizationResult{}, err
	}
	p := lay.problem(m, req.Stops, mode, e.cfg.BalancedWeight, departAt)

	budget := req.Budget
	if budget <= 0 {
		budget = e.cfg.DefaultBudget
	}
	seed := e.now().UnixNano()
	if req.Seed != nil {
		seed = *req.Seed
	}
	sctx, cancel := context.WithTimeout(ctx, budget)
	sol, solver := e.solve(sctx, e.choose(n, seed), p)
	cancel()

	res := assemble(p, lay, sol, departAt)
	res.RouteID = req.RouteID
	res.Mode = mode
	res.Solver = solver
	res.Partial = req.Partial
	res.ComputedAt = e.now().UTC()
	res.Stats = &model.PlanStats{
		RouteID:      req.RouteID,
		Solver:       solver,
		Quality:      sol.Quality,
		N:            n,
		Iterations:   sol.Stats.Iterations,
		Nodes:        sol.Stats.Nodes,
		Generations:  sol.Stats.Generations,
		BaselineCost: sol.Stats.BaselineCost,
		FinalCost:    sol.Cost,
		ElapsedMs:    sol.Stats.Elapsed.Milliseconds(),
		DeadlineHit:  sol.Stats.DeadlineHit,
		Violations:   len(res.Violations),
		At:           res.ComputedAt,
	}
	opt.RecordStats(req.RouteID, *res.Stats)

	metrics.OptimizeRuns.WithLabelValues(solver, string(sol.Quality)).Inc()
	metrics.OptimizeDuration.WithLabelValues(solver).Observe(time.Since(start).Seconds())
	e.log.Info().
		Str("route_id", req.RouteID).
		Str("solver", solver).
		Str("quality", string(sol.Quality)).
		Int("n", n).
		Int("violations", len(res.Violations)).
		Float64("cost", sol.Cost).
		Dur("dur", time.Since(start)).
		Msg("route optimized")
	return res, nil
}

// solve runs the solver and replaces a panic or a malformed order with the
// nearest-neighbor plan tagged approximate.
func (e *Engine) solve(ctx context.Context, s opt.Solver, p *opt.Problem) (sol opt.Solution, name string) {
	fallback := func(reason any) {
		e.log.Error().Interface("reason", reason).Str("solver", s.Name()).Msg("solver failed; using nearest neighbor")
		metrics.SolverFallbacks.Inc()
		order := opt.NearestNeighbor(p)
		cost := p.PathCost(order)
		sol = opt.Solution{Order: order, Cost: cost, Quality: model.QualityApproximate,
			Stats: opt.Stats{BaselineCost: cost, FinalCost: cost}}
		name = "nearest_neighbor"
	}
	defer func() {
		if r := recover(); r != nil {
			fallback(r)
		}
	}()
	sol, name = s.Solve(ctx, p), s.Name()
	if !isPermutation(sol.Order, p.Stops) {
		fallback("order is not a permutation of the stops")
	}
	return sol, name
}

func isPermutation(order, stops []int) bool {
	if len(order) != len(stops) {
		return false
	}
	want := make(map[int]int, len(stops))
	for _, v := range stops {
		want[v]++
	}
	for _, v := range order {
		if want[v] == 0 {
			return false
		}
		want[v]--
	}
	return true
}

func (e *Engine) trivial(req Request, mode model.Mode) model.OptimizationResult {
	path := []model.Coordinate{}
	if req.Anchors.Start != nil {
		path = append(path, *req.Anchors.Start)
	}
	return model.OptimizationResult{
		RouteID:    req.RouteID,
		Order:      []string{},
		Path:       path,
		Legs:       []model.Leg{},
		Violations: []string{},
		Quality:    model.QualityOptimal,
		Mode:       mode,
		Solver:     "none",
		Partial:    req.Partial,
		ComputedAt: e.now().UTC(),
	}
}

func clone(r model.OptimizationResult) model.OptimizationResult {
	r.Order = append([]string(nil), r.Order...)
	r.Path = append([]model.Coordinate(nil), r.Path...)
	r.Legs = append([]model.Leg(nil), r.Legs...)
	r.Violations = append([]string(nil), r.Violations...)
	if r.Stats != nil {
		s := *r.Stats
		r.Stats = &s
	}
	return r
}
