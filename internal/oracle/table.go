package oracle

import (
	"context"
	"fmt"
	"sync/atomic"

	"routeplanner/internal/model"
)

// Pair is one directed entry of a Table.
type Pair struct {
	From, To model.Coordinate
	Meters   float64
	Seconds  float64
}

// Table answers from a fixed in-memory pair list and counts lookups.
type Table struct {
	m     map[[2]model.Coordinate]Result
	calls atomic.Int64
}

func NewTable(pairs []Pair) *Table {
	m := make(map[[2]model.Coordinate]Result, len(pairs))
	for _, p := range pairs {
		m[[2]model.Coordinate{p.From, p.To}] = Result{DistanceMeters: p.Meters, DurationSeconds: p.Seconds}
	}
	return &Table{m: m}
}

// Symmetric adds both directions of every pair.
func Symmetric(pairs []Pair) []Pair {
	out := make([]Pair, 0, 2*len(pairs))
	for _, p := range pairs {
		out = append(out, p, Pair{From: p.To, To: p.From, Meters: p.Meters, Seconds: p.Seconds})
	}
	return out
}

func (t *Table) Lookup(ctx context.Context, from, to model.Coordinate) (Result, error) {
	t.calls.Add(1)
	r, ok := t.m[[2]model.Coordinate{from, to}]
	if !ok {
		return Result{}, fmt.Errorf("%w: %v -> %v", ErrNoRoute, from, to)
	}
	return r, nil
}

// Calls returns how many lookups were served, including misses.
func (t *Table) Calls() int64 { return t.calls.Load() }
