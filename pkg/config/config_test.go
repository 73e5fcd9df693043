package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/remoteglm/pkg/errors"
)

func mapLookup(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, int64(2<<30), cfg.MemLimitBytes())
	assert.Equal(t, []float64{0.7, 0.15}, cfg.SplitRatios)
	assert.Equal(t, int64(1234), cfg.Seed)
}

func TestLoadOverlaysYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	content := `
engine_url: http://engine:54321
poll_interval: 250ms
split_ratios: [0.6, 0.2]
min_support: 50
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://engine:54321", cfg.EngineURL)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, []float64{0.6, 0.2}, cfg.SplitRatios)
	assert.Equal(t, 50.0, cfg.MinSupport)
	assert.Equal(t, "debug", cfg.Log.Level)
	// untouched keys keep their defaults
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 20, cfg.Bins)
	assert.NoError(t, cfg.Validate())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("seed: [1, 2"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(mapLookup(map[string]string{
		"REMOTEGLM_URL":           "https://engine.example:443",
		"REMOTEGLM_SEED":          "42",
		"REMOTEGLM_MIN_SUPPORT":   "10",
		"REMOTEGLM_POLL_INTERVAL": "1s",
		"REMOTEGLM_LOG_FORMAT":    "json",
		"REMOTEGLM_DATA":          "",
	}))
	require.NoError(t, err)
	assert.Equal(t, "https://engine.example:443", cfg.EngineURL)
	assert.Equal(t, int64(42), cfg.Seed)
	assert.Equal(t, 10.0, cfg.MinSupport)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, Default().DataPath, cfg.DataPath)
}

func TestApplyEnvRejectsBadValues(t *testing.T) {
	var ve *errors.ValidationError
	for _, name := range []string{"REMOTEGLM_SEED", "REMOTEGLM_MIN_SUPPORT", "REMOTEGLM_POLL_INTERVAL", "REMOTEGLM_TIMEOUT"} {
		err := Default().ApplyEnv(mapLookup(map[string]string{name: "abc"}))
		assert.True(t, errors.As(err, &ve), name)
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("REMOTEGLM_PLOT_DIR=/tmp/plots\n"), 0o600))
	t.Setenv("REMOTEGLM_PLOT_DIR", "")
	os.Unsetenv("REMOTEGLM_PLOT_DIR")

	require.NoError(t, LoadEnv(path))
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(os.LookupEnv))
	assert.Equal(t, "/tmp/plots", cfg.PlotDir)

	assert.Error(t, LoadEnv(filepath.Join(t.TempDir(), "absent.env")))
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"empty url":      func(c *Config) { c.EngineURL = "" },
		"empty data":     func(c *Config) { c.DataPath = "" },
		"bad memory":     func(c *Config) { c.MemLimit = "lots" },
		"zero poll":      func(c *Config) { c.PollInterval = 0 },
		"no ratios":      func(c *Config) { c.SplitRatios = nil },
		"ratio sum":      func(c *Config) { c.SplitRatios = []float64{0.5, 0.5} },
		"negative ratio": func(c *Config) { c.SplitRatios = []float64{-0.1} },
		"zero bins":      func(c *Config) { c.Bins = 0 },
		"max factors":    func(c *Config) { c.MaxFactors = 0 },
		"min occurrence": func(c *Config) { c.MinOccurrence = 0 },
		"log level":      func(c *Config) { c.Log.Level = "trace" },
		"log format":     func(c *Config) { c.Log.Format = "xml" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestParseMemory(t *testing.T) {
	cases := map[string]int64{
		"":     0,
		"1024": 1024,
		"512M": 512 << 20,
		"2G":   2 << 30,
		"2g":   2 << 30,
		"1.5K": 1536,
	}
	for in, want := range cases {
		got, err := ParseMemory(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseMemory("-1G")
	assert.Error(t, err)
	_, err = ParseMemory("G")
	assert.Error(t, err)
}
