// Package route owns route and stop lifecycle: creation, optimization
// requests, the stop state machine with its progress counters, and the
// partial re-optimization triggered by failed or skipped stops.
package route

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"routeplanner/internal/engine"
	"routeplanner/internal/events"
	"routeplanner/internal/metrics"
	"routeplanner/internal/model"
	"routeplanner/internal/store"
	"routeplanner/internal/validate"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrRouteClosed is returned when optimizing a completed or canceled route.
	ErrRouteClosed = errors.New("route is completed or canceled")
	// ErrSuperseded is returned when the route changed while its plan was
	// being computed; the plan was not applied.
	ErrSuperseded = errors.New("superseded by a newer route change")
)

// Optimizer is the engine as seen by the service.
type Optimizer interface {
	Optimize(ctx context.Context, req engine.Request) (model.OptimizationResult, error)
}

type Config struct {
	DefaultPriority int
	// Budget bounds the solver during automatic re-optimization.
	Budget time.Duration
}

type Service struct {
	opt   Optimizer
	store store.Store
	pub   events.Publisher
	log   zerolog.Logger
	cfg   Config
	now   func() time.Time

	mu     sync.Mutex
	routes map[string]*entry
}

// entry serializes everything that touches one route. mu guards the route
// value and is never held across a solver run; optMu admits one
// optimization per route at a time and is always taken before mu.
type entry struct {
	mu    sync.Mutex
	optMu sync.Mutex
	epoch uint64 // bumped whenever a pending re-optimization becomes stale
	r     model.Route
}

func NewService(o Optimizer, st store.Store, pub events.Publisher, cfg Config, log zerolog.Logger) *Service {
	if cfg.DefaultPriority < 1 || cfg.DefaultPriority > 10 {
		cfg.DefaultPriority = 5
	}
	if pub == nil {
		pub = events.Fanout(nil)
	}
	return &Service{opt: o, store: st, pub: pub, log: log, cfg: cfg, now: time.Now, routes: map[string]*entry{}}
}

type CreateInput struct {
	Stops    []model.Stop  `json:"stops"`
	Anchors  model.Anchors `json:"anchors"`
	Mode     model.Mode    `json:"mode"`
	DepartAt time.Time     `json:"departAt"`
}

// Create registers a planned route. Stops start pending and keep their
// input position as SequenceOriginal.
func (s *Service) Create(ctx context.Context, in CreateInput) (model.Route, error) {
	mode := in.Mode
	if mode == "" {
		mode = model.ModeFastest
	}
	stops := make([]model.Stop, len(in.Stops))
	for i, st := range in.Stops {
		if st.Priority == 0 {
			st.Priority = s.cfg.DefaultPriority
		}
		st.Status = model.StopPending
		st.SequenceOriginal = i + 1
		st.SequenceOptimized = nil
		st.FailureReason = ""
		stops[i] = st
	}
	if _, err := validate.Check(stops, in.Anchors, mode); err != nil {
		return model.Route{}, err
	}
	now := s.now().UTC()
	r := model.Route{
		ID:         uuid.NewString(),
		Mode:       mode,
		Status:     model.RoutePlanned,
		Anchors:    in.Anchors,
		DepartAt:   in.DepartAt,
		Stops:      stops,
		TotalStops: len(stops),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.SaveRoute(ctx, r); err != nil {
		return model.Route{}, fmt.Errorf("save route: %w", err)
	}
	s.mu.Lock()
	s.routes[r.ID] = &entry{r: r}
	s.mu.Unlock()
	s.log.Info().Str("route_id", r.ID).Int("stops", len(stops)).Str("mode", string(mode)).Msg("route created")
	return cloneRoute(r), nil
}

func (s *Service) load(ctx context.Context, id string) (*entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.routes[id]; ok {
		return e, nil
	}
	r, err := s.store.GetRoute(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("route %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	e := &entry{r: r}
	s.routes[id] = e
	return e, nil
}

func (s *Service) Get(ctx context.Context, id string) (model.Route, error) {
	e, err := s.load(ctx, id)
	if err != nil {
		return model.Route{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneRoute(e.r), nil
}

func (s *Service) List(ctx context.Context, cursor string, limit int) ([]model.Route, string, error) {
	return s.store.ListRoutes(ctx, cursor, limit)
}

type OptimizeOptions struct {
	Budget time.Duration
	Seed   *int64 // nil derives one from the clock
}

// Optimize orders a planned route's stops, or the still-pending stops of a
// route in progress starting from the vehicle's current position.
func (s *Service) Optimize(ctx context.Context, id string, o OptimizeOptions) (model.OptimizationResult, error) {
	e, err := s.load(ctx, id)
	if err != nil {
		return model.OptimizationResult{}, err
	}
	e.optMu.Lock()
	defer e.optMu.Unlock()

	e.mu.Lock()
	if e.r.Status.Terminal() {
		e.mu.Unlock()
		return model.OptimizationResult{}, ErrRouteClosed
	}
	var req engine.Request
	base := 0
	if e.r.Status == model.RouteInProgress {
		req, base = partialRequest(&e.r, s.now())
	} else {
		req = fullRequest(&e.r)
	}
	req.Budget, req.Seed = o.Budget, o.Seed
	e.epoch++
	epoch := e.epoch
	e.mu.Unlock()

	res, err := s.opt.Optimize(ctx, req)
	if err != nil {
		s.log.Warn().Err(err).Str("route_id", id).Msg("optimize failed")
		return model.OptimizationResult{}, err
	}

	e.mu.Lock()
	if e.epoch != epoch || e.r.Status.Terminal() {
		e.mu.Unlock()
		s.log.Info().Str("route_id", id).Msg("optimize result discarded, route changed")
		return model.OptimizationResult{}, ErrSuperseded
	}
	s.apply(&e.r, res, base)
	snapshot := cloneRoute(e.r)
	e.mu.Unlock()

	s.persist(ctx, snapshot, res.Stats)
	s.pub.Publish(id, events.New(events.TypeRouteOptimized, id, resultData(res)))
	return res, nil
}

// Start moves a planned route to in_progress. A route without stops
// completes immediately.
func (s *Service) Start(ctx context.Context, id string) (model.Route, error) {
	return s.setRouteStatus(ctx, id, model.RouteInProgress, func(r *model.Route) error {
		if r.Status != model.RoutePlanned {
			return &TransitionError{RouteID: id, From: string(r.Status), To: string(model.RouteInProgress)}
		}
		r.Status = model.RouteInProgress
		if allTerminal(r.Stops) {
			r.Status = model.RouteCompleted
		}
		return nil
	})
}

func (s *Service) Cancel(ctx context.Context, id string) (model.Route, error) {
	return s.setRouteStatus(ctx, id, model.RouteCanceled, func(r *model.Route) error {
		if r.Status.Terminal() {
			return &TransitionError{RouteID: id, From: string(r.Status), To: string(model.RouteCanceled)}
		}
		r.Status = model.RouteCanceled
		return nil
	})
}

func (s *Service) setRouteStatus(ctx context.Context, id string, to model.RouteStatus, change func(*model.Route) error) (model.Route, error) {
	e, err := s.load(ctx, id)
	if err != nil {
		return model.Route{}, err
	}
	e.mu.Lock()
	if err := change(&e.r); err != nil {
		e.mu.Unlock()
		return model.Route{}, err
	}
	e.epoch++
	e.r.UpdatedAt = s.now().UTC()
	snapshot := cloneRoute(e.r)
	e.mu.Unlock()

	s.persist(ctx, snapshot, nil)
	s.pub.Publish(id, events.New(events.TypeRouteStatusChanged, id, map[string]any{"status": snapshot.Status}))
	s.log.Info().Str("route_id", id).Str("status", string(snapshot.Status)).Msg("route status changed")
	return snapshot, nil
}

// TransitionStop applies one stop status change. Counters, route
// completion and the re-optimization decision are evaluated under the
// route lock; the re-optimization itself runs after it is released.
func (s *Service) TransitionStop(ctx context.Context, routeID, stopID string, to model.StopStatus, reason string) (model.RouteProgressSnapshot, error) {
	e, err := s.load(ctx, routeID)
	if err != nil {
		return model.RouteProgressSnapshot{}, err
	}

	e.mu.Lock()
	r := &e.r
	idx := -1
	for i := range r.Stops {
		if r.Stops[i].ID == stopID {
			idx = i
			break
		}
	}
	if idx < 0 {
		e.mu.Unlock()
		return model.RouteProgressSnapshot{}, fmt.Errorf("stop %s: %w", stopID, ErrNotFound)
	}
	stop := &r.Stops[idx]
	from := stop.Status
	if r.Status != model.RouteInProgress {
		e.mu.Unlock()
		return model.RouteProgressSnapshot{}, &TransitionError{RouteID: routeID, StopID: stopID, From: string(from), To: string(to),
			Reason: fmt.Sprintf("route is %s", r.Status)}
	}
	if !canMove(from, to) {
		e.mu.Unlock()
		return model.RouteProgressSnapshot{}, &TransitionError{RouteID: routeID, StopID: stopID, From: string(from), To: string(to)}
	}

	stop.Status = to
	switch to {
	case model.StopArrived:
		loc := stop.Location
		r.LastVisited = &loc
	case model.StopCompleted:
		loc := stop.Location
		r.LastVisited = &loc
		r.CompletedStops++
	case model.StopFailed:
		stop.FailureReason = reason
		r.FailedStops++
	case model.StopSkipped:
		stop.FailureReason = reason
		r.SkippedStops++
	}
	metrics.StopTransitions.WithLabelValues(string(to)).Inc()

	routeDone := allTerminal(r.Stops)
	if routeDone {
		r.Status = model.RouteCompleted
	}
	r.UpdatedAt = s.now().UTC()

	var (
		reopt     bool
		req       engine.Request
		base      int
		epoch     uint64
		triggerBy = stopID
	)
	if !routeDone && (to == model.StopFailed || to == model.StopSkipped) && countPending(r.Stops) >= 2 {
		reopt = true
		req, base = partialRequest(r, s.now())
		req.Budget = s.cfg.Budget
		e.epoch++
		epoch = e.epoch
	}
	snap := progress(r, stop)
	snapshot := cloneRoute(*r)
	e.mu.Unlock()

	s.persist(ctx, snapshot, nil)
	s.pub.Publish(routeID, events.New(events.TypeStopTransitioned, routeID, map[string]any{
		"stopId":         stopID,
		"from":           from,
		"to":             to,
		"completedStops": snap.CompletedStops,
		"totalStops":     snap.TotalStops,
	}))
	if routeDone {
		s.pub.Publish(routeID, events.New(events.TypeRouteStatusChanged, routeID, map[string]any{"status": model.RouteCompleted}))
	}
	s.log.Info().Str("route_id", routeID).Str("stop_id", stopID).Str("from", string(from)).Str("to", string(to)).Msg("stop transitioned")

	if reopt {
		res, err := s.reoptimize(ctx, e, epoch, req, base, triggerBy)
		switch {
		case err != nil:
			snap.ReoptimizeError = err.Error()
		default:
			snap.Reoptimized = res
		}
	}
	return snap, nil
}

func (s *Service) reoptimize(ctx context.Context, e *entry, epoch uint64, req engine.Request, base int, trigger string) (*model.OptimizationResult, error) {
	e.optMu.Lock()
	defer e.optMu.Unlock()

	e.mu.Lock()
	stale := e.epoch != epoch
	e.mu.Unlock()
	if stale {
		metrics.Reoptimizations.WithLabelValues("superseded").Inc()
		return nil, ErrSuperseded
	}

	res, err := s.opt.Optimize(ctx, req)
	if err != nil {
		metrics.Reoptimizations.WithLabelValues("error").Inc()
		s.log.Warn().Err(err).Str("route_id", req.RouteID).Str("trigger", trigger).Msg("re-optimization failed")
		return nil, err
	}

	e.mu.Lock()
	if e.epoch != epoch || e.r.Status != model.RouteInProgress {
		e.mu.Unlock()
		metrics.Reoptimizations.WithLabelValues("superseded").Inc()
		return nil, ErrSuperseded
	}
	s.apply(&e.r, res, base)
	snapshot := cloneRoute(e.r)
	e.mu.Unlock()

	metrics.Reoptimizations.WithLabelValues("applied").Inc()
	s.persist(ctx, snapshot, res.Stats)
	data := resultData(res)
	data["trigger"] = trigger
	s.pub.Publish(req.RouteID, events.New(events.TypeRouteReoptimized, req.RouteID, data))
	return &res, nil
}

// apply writes sequence numbers for the stops in res.Order that are still
// pending. Visited stops keep theirs.
func (s *Service) apply(r *model.Route, res model.OptimizationResult, base int) {
	pos := make(map[string]int, len(res.Order))
	for i, id := range res.Order {
		pos[id] = i
	}
	for i := range r.Stops {
		st := &r.Stops[i]
		if st.Status != model.StopPending {
			continue
		}
		if p, ok := pos[st.ID]; ok {
			seq := base + p + 1
			st.SequenceOptimized = &seq
		}
	}
	stored := res
	stored.Stats = nil
	r.LastResult = &stored
	r.UpdatedAt = s.now().UTC()
}

func (s *Service) persist(ctx context.Context, r model.Route, stats *model.PlanStats) {
	if err := s.store.SaveRoute(ctx, r); err != nil {
		s.log.Error().Err(err).Str("route_id", r.ID).Msg("persist route")
	}
	if stats != nil {
		if err := s.store.SavePlanStats(ctx, *stats); err != nil {
			s.log.Error().Err(err).Str("route_id", r.ID).Msg("persist plan stats")
		}
	}
}

// PlanStats returns the newest solver runs recorded for a route.
func (s *Service) PlanStats(ctx context.Context, routeID string, limit int) ([]model.PlanStats, error) {
	return s.store.ListPlanStats(ctx, routeID, limit)
}
