package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadYAMLThenEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  addr: ":9000"
solver:
  exact_max: 8
  local_max: 30
  default_budget: 2s
webhooks:
  sinks:
    - url: http://hooks.local/a
      events: [route.optimized]
`), 0o600))
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("PORT", "7070")
	t.Setenv("WEBHOOK_URLS", "http://hooks.local/b, http://hooks.local/c")
	t.Setenv("WEBHOOK_SECRET", "shh")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":7070", cfg.HTTP.Addr, "env wins over file")
	require.Equal(t, 8, cfg.Solver.ExactMax)
	require.Equal(t, 30, cfg.Solver.LocalMax)
	require.Equal(t, 2*time.Second, cfg.Solver.DefaultBudget)
	require.Equal(t, 200, cfg.Solver.PopulationCap, "untouched defaults survive")
	require.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	require.Len(t, cfg.Webhooks.Sinks, 3)
	require.Equal(t, []string{"route.optimized"}, cfg.Webhooks.Sinks[0].Events)
	require.Equal(t, "shh", cfg.Webhooks.Sinks[2].Secret)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("OPTIMIZE_BUDGET_MS=750\n"), 0o600))
	t.Setenv("OPTIMIZE_BUDGET_MS", "")
	os.Unsetenv("OPTIMIZE_BUDGET_MS")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 750*time.Millisecond, cfg.Solver.DefaultBudget)
}

func TestValidateRejectsBadSettings(t *testing.T) {
	cfg := Default()
	cfg.Oracle.Kind = "ors"
	cfg.Solver.LocalMax = 3
	cfg.Routes.DefaultPriority = 11
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "api_key")
	require.Contains(t, err.Error(), "solver tiers")
	require.Contains(t, err.Error(), "default_priority")
}
