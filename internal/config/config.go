// Package config loads service settings: built-in defaults, then an
// optional YAML file, then an optional .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"routeplanner/internal/webhooks"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
	Oracle   OracleConfig   `yaml:"oracle"`
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`
	AMQP     AMQPConfig     `yaml:"amqp"`
	Webhooks WebhookConfig  `yaml:"webhooks"`
	Solver   SolverConfig   `yaml:"solver"`
	Routes   RoutesConfig   `yaml:"routes"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
	// OptimizeRPS and OptimizeBurst limit POST .../optimize across all
	// clients; zero disables the limit.
	OptimizeRPS   float64 `yaml:"optimize_rps"`
	OptimizeBurst int     `yaml:"optimize_burst"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type OracleConfig struct {
	Kind        string    `yaml:"kind"` // haversine | ors
	SpeedKph    float64   `yaml:"speed_kph"`
	Circuity    float64   `yaml:"circuity"`
	Concurrency int       `yaml:"concurrency"`
	ORS         ORSConfig `yaml:"ors"`
}

type ORSConfig struct {
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Profile     string        `yaml:"profile"`
	Timeout     time.Duration `yaml:"timeout"`
	RatePerSec  float64       `yaml:"rate_per_sec"`
	Burst       int           `yaml:"burst"`
	MaxAttempts int           `yaml:"max_attempts"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type DatabaseConfig struct {
	URL     string `yaml:"url"`
	Migrate bool   `yaml:"migrate"`
}

type AMQPConfig struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

type WebhookConfig struct {
	Sinks       []webhooks.Sink `yaml:"sinks"`
	MaxAttempts int             `yaml:"max_attempts"`
}

type SolverConfig struct {
	ExactMax               int           `yaml:"exact_max"`
	LocalMax               int           `yaml:"local_max"`
	DefaultBudget          time.Duration `yaml:"default_budget"`
	PopulationCap          int           `yaml:"population_cap"`
	MaxGenerations         int           `yaml:"max_generations"`
	EliteFraction          float64       `yaml:"elite_fraction"`
	TournamentSize         int           `yaml:"tournament_size"`
	BalancedDistanceWeight float64       `yaml:"balanced_distance_weight"`
}

type RoutesConfig struct {
	DefaultPriority  int           `yaml:"default_priority"`
	ReoptimizeBudget time.Duration `yaml:"reoptimize_budget"`
}

func Default() Config {
	return Config{
		HTTP:   HTTPConfig{Addr: ":8080", OptimizeRPS: 20, OptimizeBurst: 40},
		Log:    LogConfig{Level: "info"},
		Oracle: OracleConfig{Kind: "haversine", SpeedKph: 40, Circuity: 1.3, Concurrency: 8, ORS: ORSConfig{Profile: "driving-car", Timeout: 10 * time.Second, RatePerSec: 1, Burst: 2, MaxAttempts: 4}},
		Redis:  RedisConfig{CacheTTL: 24 * time.Hour},
		Database: DatabaseConfig{
			Migrate: true,
		},
		AMQP:     AMQPConfig{Exchange: "routeplanner.events"},
		Webhooks: WebhookConfig{MaxAttempts: 10},
		Solver: SolverConfig{
			ExactMax:               10,
			LocalMax:               25,
			DefaultBudget:          5 * time.Second,
			PopulationCap:          200,
			MaxGenerations:         2000,
			EliteFraction:          0.05,
			TournamentSize:         3,
			BalancedDistanceWeight: 0.5,
		},
		Routes: RoutesConfig{DefaultPriority: 5, ReoptimizeBudget: 2 * time.Second},
	}
}

// Load builds the configuration. path may be empty, in which case
// ROUTEPLANNER_CONFIG is consulted; a missing .env is not an error.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	cfg := Default()
	if path == "" {
		path = os.Getenv("ROUTEPLANNER_CONFIG")
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("PORT"); v != "" {
		c.HTTP.Addr = ":" + v
	}
	str("HTTP_ADDR", &c.HTTP.Addr)
	str("LOG_LEVEL", &c.Log.Level)
	str("ORACLE", &c.Oracle.Kind)
	str("ORS_API_KEY", &c.Oracle.ORS.APIKey)
	str("ORS_BASE_URL", &c.Oracle.ORS.BaseURL)
	str("ORS_PROFILE", &c.Oracle.ORS.Profile)
	str("REDIS_URL", &c.Redis.URL)
	str("DATABASE_URL", &c.Database.URL)
	str("AMQP_URL", &c.AMQP.URL)
	str("AMQP_EXCHANGE", &c.AMQP.Exchange)

	if v := os.Getenv("LOG_PRETTY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LOG_PRETTY: %w", err)
		}
		c.Log.Pretty = b
	}
	if v := os.Getenv("WEBHOOK_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WEBHOOK_MAX_ATTEMPTS: %w", err)
		}
		c.Webhooks.MaxAttempts = n
	}
	if v := os.Getenv("OPTIMIZE_BUDGET_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("OPTIMIZE_BUDGET_MS: %w", err)
		}
		c.Solver.DefaultBudget = time.Duration(n) * time.Millisecond
	}
	// WEBHOOK_URLS is a comma-separated list sharing WEBHOOK_SECRET.
	if v := os.Getenv("WEBHOOK_URLS"); v != "" {
		secret := os.Getenv("WEBHOOK_SECRET")
		for _, u := range strings.Split(v, ",") {
			if u = strings.TrimSpace(u); u != "" {
				c.Webhooks.Sinks = append(c.Webhooks.Sinks, webhooks.Sink{URL: u, Secret: secret})
			}
		}
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.Oracle.Kind {
	case "haversine":
	case "ors":
		if c.Oracle.ORS.APIKey == "" {
			errs = append(errs, errors.New("oracle.ors.api_key is required for the ors oracle"))
		}
	default:
		errs = append(errs, fmt.Errorf("oracle.kind %q: want haversine or ors", c.Oracle.Kind))
	}
	if c.Solver.ExactMax < 1 || c.Solver.LocalMax < c.Solver.ExactMax {
		errs = append(errs, fmt.Errorf("solver tiers: need 1 <= exact_max (%d) <= local_max (%d)", c.Solver.ExactMax, c.Solver.LocalMax))
	}
	if c.Solver.DefaultBudget <= 0 {
		errs = append(errs, errors.New("solver.default_budget must be positive"))
	}
	if w := c.Solver.BalancedDistanceWeight; w < 0 || w > 1 {
		errs = append(errs, fmt.Errorf("solver.balanced_distance_weight %v: want [0,1]", w))
	}
	if p := c.Routes.DefaultPriority; p < 1 || p > 10 {
		errs = append(errs, fmt.Errorf("routes.default_priority %d: want 1..10", p))
	}
	for i, s := range c.Webhooks.Sinks {
		if s.URL == "" {
			errs = append(errs, fmt.Errorf("webhooks.sinks[%d]: url is required", i))
		}
	}
	return errors.Join(errs...)
}
