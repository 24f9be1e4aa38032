package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"routeplanner/internal/model"
)

// ORSConfig configures the OpenRouteService matrix client.
type ORSConfig struct {
	APIKey      string
	BaseURL     string
	Profile     string
	Timeout     time.Duration
	RatePerSec  float64
	Burst       int
	MaxAttempts int
	Backoff     time.Duration
}

// ORS is a network-backed oracle over the OpenRouteService matrix endpoint.
// Transient failures are retried with exponential backoff; requests are
// paced by a client-side token bucket.
type ORS struct {
	apiKey      string
	baseURL     string
	profile     string
	session     *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	backoff     time.Duration
}

func NewORS(cfg ORSConfig) *ORS {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openrouteservice.org"
	}
	if cfg.Profile == "" {
		cfg.Profile = "driving-car"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 4
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 200 * time.Millisecond
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerSec > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}
	return &ORS{
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		profile:     cfg.Profile,
		session:     &http.Client{Timeout: cfg.Timeout},
		limiter:     lim,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
	}
}

type httpStatusError struct {
	Code int
	Body string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("ors: status %d: %s", e.Code, e.Body)
}

type matrixRequest struct {
	Locations    [][]float64 `json:"locations"`
	Sources      []int       `json:"sources"`
	Destinations []int       `json:"destinations"`
	Metrics      []string    `json:"metrics"`
}

type matrixResponse struct {
	Distances [][]*float64 `json:"distances"`
	Durations [][]*float64 `json:"durations"`
}

func (o *ORS) Lookup(ctx context.Context, from, to model.Coordinate) (Result, error) {
	rs, err := o.LookupMany(ctx, from, []model.Coordinate{to})
	if err != nil {
		return Result{}, err
	}
	return rs[0], nil
}

// LookupMany fetches one matrix row: from -> each of to.
func (o *ORS) LookupMany(ctx context.Context, from model.Coordinate, to []model.Coordinate) ([]Result, error) {
	if len(to) == 0 {
		return nil, nil
	}
	locations := make([][]float64, 0, 1+len(to))
	locations = append(locations, []float64{from.Lng, from.Lat})
	dest := make([]int, 0, len(to))
	for i, c := range to {
		locations = append(locations, []float64{c.Lng, c.Lat})
		dest = append(dest, i+1)
	}
	payload, err := json.Marshal(matrixRequest{
		Locations:    locations,
		Sources:      []int{0},
		Destinations: dest,
		Metrics:      []string{"distance", "duration"},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal matrix request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v2/matrix/%s", o.baseURL, o.profile)
	resp, err := o.doWithRetry(ctx, func() (*http.Request, error) {
		return o.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	})
	if err != nil {
		return nil, fmt.Errorf("matrix request: %w", err)
	}
	defer resp.Body.Close()

	var mr matrixResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return nil, fmt.Errorf("decode matrix response: %w", err)
	}
	if len(mr.Distances) != 1 || len(mr.Durations) != 1 {
		return nil, fmt.Errorf("expected 1 source row; got distances=%d durations=%d", len(mr.Distances), len(mr.Durations))
	}
	dists, durs := mr.Distances[0], mr.Durations[0]
	if len(dists) != len(to) || len(durs) != len(to) {
		return nil, fmt.Errorf("row length mismatch: distances=%d durations=%d destinations=%d", len(dists), len(durs), len(to))
	}
	out := make([]Result, len(to))
	for i := range to {
		if dists[i] == nil || durs[i] == nil {
			return nil, fmt.Errorf("%w: destination %d", ErrNoRoute, i)
		}
		out[i] = Result{DistanceMeters: *dists[i], DurationSeconds: *durs[i]}
	}
	return out, nil
}

func (o *ORS) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", o.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (o *ORS) do(req *http.Request) (*http.Response, error) {
	resp, err := o.session.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &httpStatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return resp, nil
}

// doWithRetry retries network errors, 429 and 5xx with exponential backoff.
func (o *ORS) doWithRetry(ctx context.Context, makeReq func() (*http.Request, error)) (*http.Response, error) {
	backoff := o.backoff
	var lastErr error
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		if err := o.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		req, err := makeReq()
		if err != nil {
			return nil, err
		}
		resp, err := o.do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retryable(err) || attempt == o.maxAttempts {
			return nil, lastErr
		}
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
	return nil, lastErr
}

func retryable(err error) bool {
	var he *httpStatusError
	if errors.As(err, &he) {
		switch he.Code {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
