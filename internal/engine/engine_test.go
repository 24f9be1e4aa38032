package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routeplanner/internal/matrix"
	"routeplanner/internal/model"
	"routeplanner/internal/opt"
	"routeplanner/internal/oracle"
	"routeplanner/internal/validate"
)

var (
	depot = model.Coordinate{Lat: 40.0, Lng: -75.0}
	locA  = model.Coordinate{Lat: 40.01, Lng: -75.0}
	locB  = model.Coordinate{Lat: 40.0, Lng: -75.01}
)

func triangle() *oracle.Table {
	return oracle.NewTable(oracle.Symmetric([]oracle.Pair{
		{From: depot, To: locA, Meters: 1000, Seconds: 100},
		{From: locA, To: locB, Meters: 1000, Seconds: 100},
		{From: depot, To: locB, Meters: 1000, Seconds: 100},
	}))
}

func newEngine(o oracle.Oracle) *Engine {
	log := zerolog.Nop()
	return New(matrix.NewBuilder(o, 4, log), DefaultConfig(), log)
}

func morning() time.Time { return time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC) }

func TestOptimizeRoundTrip(t *testing.T) {
	e := newEngine(triangle())
	res, err := e.Optimize(context.Background(), Request{
		RouteID:  "r1",
		Stops:    []model.Stop{{ID: "A", Location: locA, Priority: 5}, {ID: "B", Location: locB, Priority: 5}},
		Anchors:  model.Anchors{Start: &depot, ReturnToStart: true},
		DepartAt: morning(),
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"A", "B"}, res.Order)
	require.Len(t, res.Legs, 3)
	require.Equal(t, model.StartAnchorID, res.Legs[0].From)
	require.Equal(t, model.EndAnchorID, res.Legs[2].To)
	require.Equal(t, depot, res.Path[0])
	require.Equal(t, depot, res.Path[len(res.Path)-1])
	require.InDelta(t, 3000, res.TotalDistanceM, 1e-9)
	require.InDelta(t, 300, res.TotalDurationSec, 1e-9)
	require.Equal(t, model.QualityOptimal, res.Quality)
	require.Equal(t, "exact", res.Solver)
	require.Equal(t, model.ModeFastest, res.Mode)
	require.Empty(t, res.Violations)
	require.Equal(t, morning().Add(300*time.Second), res.Legs[2].ArriveAt)
	require.NotNil(t, res.Stats)
	require.Equal(t, 3, res.Stats.N)

	hist := opt.StatsFor("r1")
	require.NotEmpty(t, hist)
	require.Equal(t, "exact", hist[len(hist)-1].Solver)
}

func TestOptimizeEmptyStops(t *testing.T) {
	tbl := triangle()
	e := newEngine(tbl)
	res, err := e.Optimize(context.Background(), Request{Anchors: model.Anchors{Start: &depot}})
	require.NoError(t, err)
	require.Empty(t, res.Order)
	require.Empty(t, res.Legs)
	require.Equal(t, model.QualityOptimal, res.Quality)
	require.Zero(t, tbl.Calls())
}

func TestOptimizeValidationError(t *testing.T) {
	tbl := triangle()
	e := newEngine(tbl)
	_, err := e.Optimize(context.Background(), Request{
		Stops: []model.Stop{{ID: "A", Location: locA, Priority: 5}, {ID: "A", Location: locB, Priority: 5}},
	})
	var verr *validate.Error
	require.ErrorAs(t, err, &verr)
	require.Equal(t, validate.DuplicateID, verr.Violations[0].Reason)
	require.Zero(t, tbl.Calls(), "no oracle traffic for an invalid request")
}

func TestOptimizeOracleFailure(t *testing.T) {
	// locB is unknown to the table.
	tbl := oracle.NewTable(oracle.Symmetric([]oracle.Pair{{From: depot, To: locA, Meters: 1, Seconds: 1}}))
	e := newEngine(tbl)
	_, err := e.Optimize(context.Background(), Request{
		Stops:   []model.Stop{{ID: "A", Location: locA, Priority: 5}, {ID: "B", Location: locB, Priority: 5}},
		Anchors: model.Anchors{Start: &depot},
	})
	require.True(t, errors.Is(err, ErrOracleUnavailable))
}

func TestOptimizeFlagsMissedWindow(t *testing.T) {
	e := newEngine(triangle())
	res, err := e.Optimize(context.Background(), Request{
		Stops: []model.Stop{
			{ID: "A", Location: locA, Priority: 5, TimeWindow: &model.TimeWindow{Start: "08:00", End: "08:01"}},
		},
		Anchors:  model.Anchors{Start: &depot},
		DepartAt: morning(),
	})
	require.NoError(t, err)
	require.Equal(t, []string{"A"}, res.Order)
	require.Equal(t, []string{"A"}, res.Violations)
}

func TestOptimizeWaitsForWindow(t *testing.T) {
	e := newEngine(triangle())
	res, err := e.Optimize(context.Background(), Request{
		Stops: []model.Stop{
			{ID: "A", Location: locA, Priority: 5, ServiceSec: 60, TimeWindow: &model.TimeWindow{Start: "08:10", End: "09:00"}},
		},
		Anchors:  model.Anchors{Start: &depot},
		DepartAt: morning(),
	})
	require.NoError(t, err)
	require.Empty(t, res.Violations)
	require.InDelta(t, 500, res.Legs[0].WaitSec, 1e-9)
	require.Equal(t, morning().Add(100*time.Second), res.Legs[0].ArriveAt)
	require.InDelta(t, 660, res.TotalElapsedSec, 1e-9)
	require.InDelta(t, 100, res.TotalDurationSec, 1e-9)
}

type panicky struct{}

func (panicky) Name() string                                     { return "panicky" }
func (panicky) Solve(context.Context, *opt.Problem) opt.Solution { panic("boom") }

func TestOptimizeRecoversSolverPanic(t *testing.T) {
	e := newEngine(triangle())
	e.choose = func(int, int64) opt.Solver { return panicky{} }
	res, err := e.Optimize(context.Background(), Request{
		Stops:   []model.Stop{{ID: "A", Location: locA, Priority: 5}, {ID: "B", Location: locB, Priority: 5}},
		Anchors: model.Anchors{Start: &depot},
	})
	require.NoError(t, err)
	require.Equal(t, "nearest_neighbor", res.Solver)
	require.Equal(t, model.QualityApproximate, res.Quality)
	require.ElementsMatch(t, []string{"A", "B"}, res.Order)
}

func TestOptimizeCoalescesSameRoute(t *testing.T) {
	var calls atomic.Int64
	gate := make(chan struct{})
	entered := make(chan struct{}, 16)
	base := oracle.NewHaversine(50, 1)
	o := oracle.Func(func(ctx context.Context, from, to model.Coordinate) (oracle.Result, error) {
		calls.Add(1)
		entered <- struct{}{}
		<-gate
		return base.Lookup(ctx, from, to)
	})
	e := newEngine(o)
	req := Request{
		RouteID: "coalesce",
		Stops:   []model.Stop{{ID: "A", Location: locA, Priority: 5}},
		Anchors: model.Anchors{Start: &depot},
	}

	var wg sync.WaitGroup
	results := make([]model.OptimizationResult, 2)
	run := func(i int) {
		defer wg.Done()
		res, err := e.Optimize(context.Background(), req)
		assert.NoError(t, err)
		results[i] = res
	}
	wg.Add(1)
	go run(0)
	<-entered
	wg.Add(1)
	go run(1)
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	require.EqualValues(t, 2, calls.Load(), "one matrix build for both callers")
	require.Equal(t, results[0].Order, results[1].Order)
	require.Equal(t, results[0].ComputedAt, results[1].ComputedAt)
}

func TestLayoutClosedTour(t *testing.T) {
	l := layoutFor([]model.Stop{{ID: "A", Location: locA}, {ID: "B", Location: locB}}, model.Anchors{ReturnToStart: true})
	require.True(t, l.closed)
	require.Equal(t, -1, l.start)
	require.Equal(t, -1, l.end)
	require.Equal(t, 0, l.offset)

	l = layoutFor([]model.Stop{{ID: "A", Location: locA}}, model.Anchors{Start: &depot, End: &locB})
	require.Equal(t, []model.Coordinate{depot, locB, locA}, l.positions)
	require.Equal(t, 0, l.start)
	require.Equal(t, 1, l.end)
	require.Equal(t, 2, l.offset)
}

func TestFlightKeySeparatesScope(t *testing.T) {
	stops := []model.Stop{{ID: "A"}, {ID: "B"}}
	full := Request{RouteID: "r", Stops: stops}
	partial := Request{RouteID: "r", Stops: stops[:1], Partial: true}
	require.NotEqual(t, flightKey(full), flightKey(partial))
	require.NotEqual(t, flightKey(full), flightKey(Request{RouteID: "r", Stops: stops, Partial: true}))
	require.Equal(t, flightKey(full), flightKey(Request{RouteID: "r", Stops: []model.Stop{{ID: "C"}, {ID: "D"}}}))
}

func TestOptimizeSeed(t *testing.T) {
	e := newEngine(triangle())
	e.now = func() time.Time { return time.Unix(0, 77) }
	var got []int64
	e.choose = func(n int, seed int64) opt.Solver {
		got = append(got, seed)
		return opt.Select(n, opt.DefaultTiers(), opt.GeneticParams{}, seed)
	}
	req := Request{
		Stops:    []model.Stop{{ID: "A", Location: locA, Priority: 5}},
		Anchors:  model.Anchors{Start: &depot},
		DepartAt: morning(),
	}
	_, err := e.Optimize(context.Background(), req)
	require.NoError(t, err)

	zero := int64(0)
	req.Seed = &zero
	_, err = e.Optimize(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, []int64{77, 0}, got, "an explicit zero seed is kept")
}
