package oracle

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"routeplanner/internal/metrics"
	"routeplanner/internal/model"
)

// Cached is a read-through Redis cache in front of another oracle, keyed by
// the ordered coordinate pair rounded to six decimals. Redis failures
// degrade to direct lookups.
type Cached struct {
	next   Oracle
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	log    zerolog.Logger
}

func NewCached(next Oracle, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *Cached {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cached{next: next, rdb: rdb, ttl: ttl, prefix: "dist:", log: log}
}

func (c *Cached) key(from, to model.Coordinate) string {
	return fmt.Sprintf("%s%.6f,%.6f:%.6f,%.6f", c.prefix, from.Lat, from.Lng, to.Lat, to.Lng)
}

func (c *Cached) Lookup(ctx context.Context, from, to model.Coordinate) (Result, error) {
	k := c.key(from, to)
	v, err := c.rdb.Get(ctx, k).Result()
	switch {
	case err == nil:
		if r, ok := decodeResult(v); ok {
			metrics.OracleCache.WithLabelValues("hit").Inc()
			return r, nil
		}
	case !errors.Is(err, redis.Nil):
		c.log.Warn().Err(err).Msg("distance cache read failed")
	}
	metrics.OracleCache.WithLabelValues("miss").Inc()
	r, err := c.next.Lookup(ctx, from, to)
	if err != nil {
		return Result{}, err
	}
	if err := c.rdb.Set(ctx, k, encodeResult(r), c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Msg("distance cache write failed")
	}
	return r, nil
}

// LookupMany serves hits from one MGET and forwards the misses, batched
// when the wrapped oracle supports it.
func (c *Cached) LookupMany(ctx context.Context, from model.Coordinate, to []model.Coordinate) ([]Result, error) {
	if len(to) == 0 {
		return nil, nil
	}
	keys := make([]string, len(to))
	for i, d := range to {
		keys[i] = c.key(from, d)
	}
	out := make([]Result, len(to))
	var missIdx []int
	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		c.log.Warn().Err(err).Msg("distance cache read failed")
		vals = make([]any, len(to))
	}
	for i, v := range vals {
		s, ok := v.(string)
		if ok {
			if r, ok := decodeResult(s); ok {
				out[i] = r
				continue
			}
		}
		missIdx = append(missIdx, i)
	}
	metrics.OracleCache.WithLabelValues("hit").Add(float64(len(to) - len(missIdx)))
	metrics.OracleCache.WithLabelValues("miss").Add(float64(len(missIdx)))
	if len(missIdx) == 0 {
		return out, nil
	}

	missing := make([]model.Coordinate, len(missIdx))
	for j, i := range missIdx {
		missing[j] = to[i]
	}
	var fetched []Result
	if b, ok := c.next.(BatchOracle); ok {
		if fetched, err = b.LookupMany(ctx, from, missing); err != nil {
			return nil, err
		}
	} else {
		fetched = make([]Result, len(missing))
		for j, d := range missing {
			if fetched[j], err = c.next.Lookup(ctx, from, d); err != nil {
				return nil, err
			}
		}
	}

	pipe := c.rdb.Pipeline()
	for j, i := range missIdx {
		out[i] = fetched[j]
		pipe.Set(ctx, keys[i], encodeResult(fetched[j]), c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Warn().Err(err).Msg("distance cache write failed")
	}
	return out, nil
}

func encodeResult(r Result) string {
	return strconv.FormatFloat(r.DistanceMeters, 'f', -1, 64) + "|" + strconv.FormatFloat(r.DurationSeconds, 'f', -1, 64)
}

func decodeResult(s string) (Result, bool) {
	d, t, ok := strings.Cut(s, "|")
	if !ok {
		return Result{}, false
	}
	dm, err1 := strconv.ParseFloat(d, 64)
	ds, err2 := strconv.ParseFloat(t, 64)
	if err1 != nil || err2 != nil {
		return Result{}, false
	}
	return Result{DistanceMeters: dm, DurationSeconds: ds}, true
}
