package oracle

import (
	"context"

	"routeplanner/internal/geo"
	"routeplanner/internal/model"
)

// Haversine is a deterministic oracle: great-circle distance scaled by a
// circuity factor, driven at a constant speed.
type Haversine struct {
	SpeedKph float64
	Circuity float64
}

func NewHaversine(speedKph, circuity float64) *Haversine {
	if speedKph <= 0 {
		speedKph = 50
	}
	if circuity < 1 {
		circuity = 1
	}
	return &Haversine{SpeedKph: speedKph, Circuity: circuity}
}

func (h *Haversine) Lookup(ctx context.Context, from, to model.Coordinate) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	d := geo.HaversineMeters(from, to) * h.Circuity
	return Result{DistanceMeters: d, DurationSeconds: d / (h.SpeedKph / 3.6)}, nil
}

func (h *Haversine) LookupMany(ctx context.Context, from model.Coordinate, to []model.Coordinate) ([]Result, error) {
	out := make([]Result, len(to))
	for i, c := range to {
		r, err := h.Lookup(ctx, from, c)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}
