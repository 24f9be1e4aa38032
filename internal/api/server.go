package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"routeplanner/internal/config"
	"routeplanner/internal/engine"
	"routeplanner/internal/events"
	"routeplanner/internal/matrix"
	"routeplanner/internal/opt"
	"routeplanner/internal/oracle"
	"routeplanner/internal/route"
	"routeplanner/internal/store"
	"routeplanner/internal/webhooks"
)

type Server struct {
	Routes *route.Service
	Store  store.Store
	Broker events.Broker
	Worker *webhooks.Worker
	Log    zerolog.Logger

	limiter *rate.Limiter
	closers []func() error
}

// NewServer wires the service from configuration. Without DATABASE_URL the
// store is in memory; without REDIS_URL events stay in process and the
// distance oracle is not cached.
func NewServer(cfg config.Config, log zerolog.Logger) (*Server, error) {
	s := &Server{Log: log}

	if strings.TrimSpace(cfg.Database.URL) == "" {
		s.Store = store.NewMemory()
	} else {
		pg, err := store.NewPostgres(cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if cfg.Database.Migrate {
			if err := pg.Migrate(context.Background()); err != nil {
				_ = pg.Close()
				return nil, err
			}
		}
		s.Store = pg
		s.closers = append(s.closers, pg.Close)
	}

	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb = redis.NewClient(opts)
		s.closers = append(s.closers, rdb.Close)
		s.Broker = events.NewRedisBroker(rdb, log)
	} else {
		s.Broker = events.NewMemoryBroker()
	}

	o := newOracle(cfg.Oracle, rdb, cfg.Redis, log)
	eng := engine.New(matrix.NewBuilder(o, cfg.Oracle.Concurrency, log), engine.Config{
		Tiers: opt.Tiers{ExactMax: cfg.Solver.ExactMax, LocalMax: cfg.Solver.LocalMax},
		Genetic: opt.GeneticParams{
			PopulationCap:  cfg.Solver.PopulationCap,
			MaxGenerations: cfg.Solver.MaxGenerations,
			EliteFraction:  cfg.Solver.EliteFraction,
			TournamentSize: cfg.Solver.TournamentSize,
		},
		DefaultBudget:  cfg.Solver.DefaultBudget,
		BalancedWeight: cfg.Solver.BalancedDistanceWeight,
	}, log)

	pubs := events.Fanout{s.Broker}
	if len(cfg.Webhooks.Sinks) > 0 {
		pubs = append(pubs, webhooks.NewPublisher(s.Store, cfg.Webhooks.Sinks, log))
	}
	if cfg.AMQP.URL != "" {
		ap := events.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, log)
		pubs = append(pubs, ap)
		s.closers = append(s.closers, ap.Close)
	}

	s.Routes = route.NewService(eng, s.Store, pubs, route.Config{
		DefaultPriority: cfg.Routes.DefaultPriority,
		Budget:          cfg.Routes.ReoptimizeBudget,
	}, log)
	s.Worker = webhooks.NewWorker(s.Store, cfg.Webhooks.MaxAttempts, log)
	if cfg.HTTP.OptimizeRPS > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.HTTP.OptimizeRPS), max(cfg.HTTP.OptimizeBurst, 1))
	}
	return s, nil
}

func newOracle(cfg config.OracleConfig, rdb *redis.Client, rc config.RedisConfig, log zerolog.Logger) oracle.Oracle {
	var o oracle.Oracle
	switch cfg.Kind {
	case "ors":
		o = oracle.NewORS(oracle.ORSConfig{
			APIKey:      cfg.ORS.APIKey,
			BaseURL:     cfg.ORS.BaseURL,
			Profile:     cfg.ORS.Profile,
			Timeout:     cfg.ORS.Timeout,
			RatePerSec:  cfg.ORS.RatePerSec,
			Burst:       cfg.ORS.Burst,
			MaxAttempts: cfg.ORS.MaxAttempts,
		})
	default:
		o = oracle.NewHaversine(cfg.SpeedKph, cfg.Circuity)
	}
	if rdb != nil {
		o = oracle.NewCached(o, rdb, rc.CacheTTL, log)
	}
	log.Info().Str("oracle", cfg.Kind).Bool("cached", rdb != nil).Msg("distance oracle ready")
	return o
}

// Handler returns the routed API with access logging and metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Routes
	mux.HandleFunc("/v1/routes", s.RoutesIndexHandler)
	mux.HandleFunc("/v1/routes/", s.RouteByIDHandler) // includes /optimize, /start, /cancel, /stops/..., /events/...

	// Admin
	mux.HandleFunc("/v1/admin/plan-metrics", s.PlanMetricsHandler)
	mux.HandleFunc("/v1/admin/webhook-deliveries", s.WebhookDeliveriesHandler)

	// Health
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.Handle("/metrics", metricsHandler())

	return s.logMiddleware(mux)
}

// Close releases external connections in reverse order of creation.
func (s *Server) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.Log.Warn().Err(err).Msg("close")
		}
	}
	s.closers = nil
}
