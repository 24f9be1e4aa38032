package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routeplanner/internal/model"
)

var (
	pA = model.Coordinate{Lat: 52.52, Lng: 13.405}
	pB = model.Coordinate{Lat: 52.50, Lng: 13.30}
	pC = model.Coordinate{Lat: 52.55, Lng: 13.45}
)

func TestHaversineDeterministic(t *testing.T) {
	h := NewHaversine(36, 1.2)
	r1, err := h.Lookup(context.Background(), pA, pB)
	require.NoError(t, err)
	r2, _ := h.Lookup(context.Background(), pA, pB)
	require.Equal(t, r1, r2)
	require.Greater(t, r1.DistanceMeters, 0.0)
	// 36 km/h is 10 m/s
	require.InDelta(t, r1.DistanceMeters/10, r1.DurationSeconds, 1e-6)

	rs, err := h.LookupMany(context.Background(), pA, []model.Coordinate{pB, pC})
	require.NoError(t, err)
	require.Len(t, rs, 2)
	require.Equal(t, r1, rs[0])
}

func TestTableLookup(t *testing.T) {
	tb := NewTable(Symmetric([]Pair{{From: pA, To: pB, Meters: 100, Seconds: 10}}))
	r, err := tb.Lookup(context.Background(), pB, pA)
	require.NoError(t, err)
	require.Equal(t, Result{DistanceMeters: 100, DurationSeconds: 10}, r)

	_, err = tb.Lookup(context.Background(), pA, pC)
	require.ErrorIs(t, err, ErrNoRoute)
	require.EqualValues(t, 2, tb.Calls())
}

func orsServer(t *testing.T, fail int32, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		assert.Equal(t, "/v2/matrix/driving-car", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("Authorization"))
		if n <= fail {
			w.WriteHeader(status)
			return
		}
		var req matrixRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []int{0}, req.Sources)
		// ORS takes [lng, lat]
		assert.Equal(t, []float64{pA.Lng, pA.Lat}, req.Locations[0])
		row := len(req.Destinations)
		d := make([]float64, row)
		s := make([]float64, row)
		for i := range d {
			d[i] = float64(1000 * (i + 1))
			s[i] = float64(60 * (i + 1))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"distances": [][]float64{d}, "durations": [][]float64{s}})
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestORSRetriesTransientFailures(t *testing.T) {
	srv, hits := orsServer(t, 2, http.StatusServiceUnavailable)
	o := NewORS(ORSConfig{APIKey: "key", BaseURL: srv.URL, Backoff: time.Millisecond})

	rs, err := o.LookupMany(context.Background(), pA, []model.Coordinate{pB, pC})
	require.NoError(t, err)
	require.Equal(t, []Result{{1000, 60}, {2000, 120}}, rs)
	require.EqualValues(t, 3, hits.Load())
}

func TestORSDoesNotRetryClientErrors(t *testing.T) {
	srv, hits := orsServer(t, 10, http.StatusBadRequest)
	o := NewORS(ORSConfig{APIKey: "key", BaseURL: srv.URL, Backoff: time.Millisecond})

	_, err := o.Lookup(context.Background(), pA, pB)
	require.Error(t, err)
	var he *httpStatusError
	require.True(t, errors.As(err, &he))
	require.Equal(t, http.StatusBadRequest, he.Code)
	require.EqualValues(t, 1, hits.Load())
}

func TestORSGivesUpAfterMaxAttempts(t *testing.T) {
	srv, hits := orsServer(t, 10, http.StatusBadGateway)
	o := NewORS(ORSConfig{APIKey: "key", BaseURL: srv.URL, Backoff: time.Millisecond, MaxAttempts: 3})

	_, err := o.Lookup(context.Background(), pA, pB)
	require.Error(t, err)
	require.EqualValues(t, 3, hits.Load())
}

func newCached(t *testing.T, next Oracle) (*Cached, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewCached(next, rdb, time.Hour, zerolog.Nop()), mr
}

func TestCachedLookupReadsThrough(t *testing.T) {
	tb := NewTable([]Pair{{From: pA, To: pB, Meters: 500, Seconds: 50}})
	c, mr := newCached(t, tb)
	ctx := context.Background()

	r, err := c.Lookup(ctx, pA, pB)
	require.NoError(t, err)
	require.Equal(t, Result{500, 50}, r)
	r, err = c.Lookup(ctx, pA, pB)
	require.NoError(t, err)
	require.Equal(t, Result{500, 50}, r)
	require.EqualValues(t, 1, tb.Calls())

	ttl := mr.TTL(c.key(pA, pB))
	require.Equal(t, time.Hour, ttl)
}

func TestCachedLookupManyFetchesOnlyMisses(t *testing.T) {
	tb := NewTable([]Pair{
		{From: pA, To: pB, Meters: 500, Seconds: 50},
		{From: pA, To: pC, Meters: 700, Seconds: 70},
	})
	c, _ := newCached(t, tb)
	ctx := context.Background()

	_, err := c.Lookup(ctx, pA, pB)
	require.NoError(t, err)
	require.EqualValues(t, 1, tb.Calls())

	rs, err := c.LookupMany(ctx, pA, []model.Coordinate{pB, pC})
	require.NoError(t, err)
	require.Equal(t, []Result{{500, 50}, {700, 70}}, rs)
	require.EqualValues(t, 2, tb.Calls())

	rs, err = c.LookupMany(ctx, pA, []model.Coordinate{pC, pB})
	require.NoError(t, err)
	require.Equal(t, []Result{{700, 70}, {500, 50}}, rs)
	require.EqualValues(t, 2, tb.Calls())
}

func TestCachedFallsBackWhenRedisIsDown(t *testing.T) {
	tb := NewTable([]Pair{{From: pA, To: pB, Meters: 500, Seconds: 50}})
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	c := NewCached(tb, rdb, time.Hour, zerolog.Nop())

	r, err := c.Lookup(context.Background(), pA, pB)
	require.NoError(t, err)
	require.Equal(t, Result{500, 50}, r)
}

func TestCachedPropagatesOracleErrors(t *testing.T) {
	c, _ := newCached(t, NewTable(nil))
	_, err := c.Lookup(context.Background(), pA, pB)
	require.ErrorIs(t, err, ErrNoRoute)
}
