// Package oracle supplies pairwise travel distance and duration between
// coordinates. Implementations own their retry and caching policy.
package oracle

import (
	"context"
	"errors"

	"routeplanner/internal/model"
)

// Result is the travel cost of one ordered pair.
type Result struct {
	DistanceMeters  float64
	DurationSeconds float64
}

// Oracle answers one ordered pair at a time. Values may be asymmetric.
type Oracle interface {
	Lookup(ctx context.Context, from, to model.Coordinate) (Result, error)
}

// BatchOracle is an optional extension answering one origin against many
// destinations in a single call. Results are aligned with to.
type BatchOracle interface {
	Oracle
	LookupMany(ctx context.Context, from model.Coordinate, to []model.Coordinate) ([]Result, error)
}

// Func adapts a plain function to Oracle.
type Func func(ctx context.Context, from, to model.Coordinate) (Result, error)

func (f Func) Lookup(ctx context.Context, from, to model.Coordinate) (Result, error) {
	return f(ctx, from, to)
}

var ErrNoRoute = errors.New("no route between coordinates")
