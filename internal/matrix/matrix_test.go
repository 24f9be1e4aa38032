package matrix

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"routeplanner/internal/model"
	"routeplanner/internal/oracle"
)

type countingOracle struct {
	mu    sync.Mutex
	pairs map[[2]model.Coordinate]int
	fail  *[2]model.Coordinate
}

func (c *countingOracle) Lookup(ctx context.Context, from, to model.Coordinate) (oracle.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pairs == nil {
		c.pairs = map[[2]model.Coordinate]int{}
	}
	c.pairs[[2]model.Coordinate{from, to}]++
	if c.fail != nil && *c.fail == [2]model.Coordinate{from, to} {
		return oracle.Result{}, errors.New("upstream timeout")
	}
	// asymmetric on purpose: going north costs more
	d := (to.Lat-from.Lat)*2 + (to.Lng - from.Lng)
	if d < 0 {
		d = -d / 2
	}
	return oracle.Result{DistanceMeters: d * 1000, DurationSeconds: d * 100}, nil
}

var (
	c0 = model.Coordinate{Lat: 0, Lng: 0}
	c1 = model.Coordinate{Lat: 1, Lng: 0}
	c2 = model.Coordinate{Lat: 0, Lng: 1}
)

func TestBuildQueriesEachPairOnce(t *testing.T) {
	o := &countingOracle{}
	b := NewBuilder(o, 4, zerolog.Nop())
	// c0 repeats: start anchor and a stop at the same place
	m, err := b.Build(context.Background(), []model.Coordinate{c0, c1, c2, c0})
	require.NoError(t, err)
	require.Equal(t, 4, m.Len())
	require.Equal(t, 6, m.Lookups)
	require.Len(t, o.pairs, 6)
	for p, n := range o.pairs {
		require.Equal(t, 1, n, "pair %v queried %d times", p, n)
	}

	for i := 0; i < 4; i++ {
		require.Equal(t, Cell{}, m.At(i, i))
	}
	require.Equal(t, Cell{}, m.At(0, 3))
	require.Equal(t, m.At(0, 1), m.At(3, 1))
	// asymmetric values survive
	require.NotEqual(t, m.At(0, 1), m.At(1, 0))
}

func TestBuildUsesBatchRows(t *testing.T) {
	tb := oracle.NewHaversine(50, 1)
	b := NewBuilder(tb, 2, zerolog.Nop())
	m, err := b.Build(context.Background(), []model.Coordinate{c0, c1, c2})
	require.NoError(t, err)
	require.Equal(t, 6, m.Lookups)
	direct, _ := tb.Lookup(context.Background(), c1, c2)
	require.InDelta(t, direct.DistanceMeters, m.At(1, 2).DistanceM, 1e-9)
}

func TestBuildFailsWholeOnOracleError(t *testing.T) {
	o := &countingOracle{fail: &[2]model.Coordinate{c2, c1}}
	b := NewBuilder(o, 1, zerolog.Nop())
	m, err := b.Build(context.Background(), []model.Coordinate{c0, c1, c2})
	require.Nil(t, m)
	require.ErrorIs(t, err, ErrOracleUnavailable)
}

func TestBuildRejectsNegativeAnswers(t *testing.T) {
	neg := oracle.Func(func(ctx context.Context, from, to model.Coordinate) (oracle.Result, error) {
		return oracle.Result{DistanceMeters: -1, DurationSeconds: 5}, nil
	})
	_, err := NewBuilder(neg, 1, zerolog.Nop()).Build(context.Background(), []model.Coordinate{c0, c1})
	require.ErrorIs(t, err, ErrOracleUnavailable)
}

func TestBuildSinglePositionNeedsNoOracle(t *testing.T) {
	o := &countingOracle{}
	m, err := NewBuilder(o, 1, zerolog.Nop()).Build(context.Background(), []model.Coordinate{c1})
	require.NoError(t, err)
	require.Equal(t, 1, m.Len())
	require.Zero(t, m.Lookups)
	require.Empty(t, o.pairs)
}
