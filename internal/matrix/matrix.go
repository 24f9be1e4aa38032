// Package matrix materializes the pairwise distance/duration matrix for one
// optimize call.
package matrix

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"routeplanner/internal/metrics"
	"routeplanner/internal/model"
	"routeplanner/internal/oracle"
)

// ErrOracleUnavailable means a required pair could not be answered. No
// partial matrix is ever returned alongside it.
var ErrOracleUnavailable = errors.New("distance oracle unavailable")

type Cell struct {
	DistanceM   float64
	DurationSec float64
}

// Matrix is square over the build positions; cell (i,j) is the travel cost
// of i -> j. The diagonal is zero.
type Matrix struct {
	n     int
	cells []Cell
	// Lookups is the number of ordered pairs sent to the oracle.
	Lookups int
}

func (m *Matrix) Len() int { return m.n }

func (m *Matrix) At(i, j int) Cell { return m.cells[i*m.n+j] }

type Builder struct {
	oracle      oracle.Oracle
	concurrency int
	log         zerolog.Logger
}

func NewBuilder(o oracle.Oracle, concurrency int, log zerolog.Logger) *Builder {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Builder{oracle: o, concurrency: concurrency, log: log}
}

// Build queries the oracle once per unique ordered pair of distinct
// coordinates. Repeated coordinates share answers and identical
// coordinates cost (0,0).
func (b *Builder) Build(ctx context.Context, positions []model.Coordinate) (*Matrix, error) {
	start := time.Now()
	n := len(positions)

	slot := make([]int, n)
	index := make(map[model.Coordinate]int, n)
	var uniq []model.Coordinate
	for i, p := range positions {
		u, ok := index[p]
		if !ok {
			u = len(uniq)
			index[p] = u
			uniq = append(uniq, p)
		}
		slot[i] = u
	}
	u := len(uniq)
	ucells := make([]Cell, u*u)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	lookups := 0
	if bo, ok := b.oracle.(oracle.BatchOracle); ok {
		for a := 0; a < u; a++ {
			dests := make([]int, 0, u-1)
			coords := make([]model.Coordinate, 0, u-1)
			for d := 0; d < u; d++ {
				if d != a {
					dests = append(dests, d)
					coords = append(coords, uniq[d])
				}
			}
			if len(dests) == 0 {
				continue
			}
			lookups += len(dests)
			g.Go(func() error {
				rs, err := bo.LookupMany(gctx, uniq[a], coords)
				if err != nil {
					return fmt.Errorf("row %d: %w", a, err)
				}
				if len(rs) != len(dests) {
					return fmt.Errorf("row %d: got %d results for %d destinations", a, len(rs), len(dests))
				}
				for k, d := range dests {
					if err := store(ucells, a*u+d, rs[k]); err != nil {
						return err
					}
				}
				return nil
			})
		}
	} else {
		for a := 0; a < u; a++ {
			for d := 0; d < u; d++ {
				if a == d {
					continue
				}
				lookups++
				g.Go(func() error {
					r, err := b.oracle.Lookup(gctx, uniq[a], uniq[d])
					if err != nil {
						return fmt.Errorf("pair %d->%d: %w", a, d, err)
					}
					return store(ucells, a*u+d, r)
				})
			}
		}
	}
	if err := g.Wait(); err != nil {
		metrics.OracleLookups.WithLabelValues("error").Inc()
		b.log.Warn().Err(err).Int("positions", n).Dur("dur", time.Since(start)).Msg("matrix build failed")
		return nil, fmt.Errorf("%w: %w", ErrOracleUnavailable, err)
	}
	metrics.OracleLookups.WithLabelValues("ok").Add(float64(lookups))

	m := &Matrix{n: n, cells: make([]Cell, n*n), Lookups: lookups}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if slot[i] != slot[j] {
				m.cells[i*n+j] = ucells[slot[i]*u+slot[j]]
			}
		}
	}
	b.log.Debug().Int("positions", n).Int("lookups", lookups).Dur("dur", time.Since(start)).Msg("matrix built")
	return m, nil
}

func store(cells []Cell, at int, r oracle.Result) error {
	if bad(r.DistanceMeters) || bad(r.DurationSeconds) {
		return fmt.Errorf("invalid oracle answer (%v m, %v s)", r.DistanceMeters, r.DurationSeconds)
	}
	cells[at] = Cell{DistanceM: r.DistanceMeters, DurationSec: r.DurationSeconds}
	return nil
}

func bad(v float64) bool { return v < 0 || math.IsNaN(v) || math.IsInf(v, 0) }

// FromCells builds a matrix directly, for callers that already hold the
// values.
func FromCells(rows [][]Cell) *Matrix {
	n := len(rows)
	m := &Matrix{n: n, cells: make([]Cell, n*n)}
	for i, row := range rows {
		copy(m.cells[i*n:(i+1)*n], row)
	}
	return m
}
