// Package config loads the run configuration.
//
// Values are layered: built-in defaults, then a YAML file, then REMOTEGLM_*
// environment variables (optionally read from a .env file first). Command
// line flags are applied last by the caller.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/remoteglm/pkg/errors"
	"github.com/YuminosukeSato/remoteglm/pkg/log"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "REMOTEGLM_"

// DefaultEnvFile is read by LoadEnv when no file is named.
const DefaultEnvFile = ".env"

// Config is the configuration of one experiment run.
type Config struct {
	// EngineURL is the base URL of the engine's REST API.
	EngineURL string `yaml:"engine_url"`
	// MemLimit is the memory the run expects the engine to have free, e.g. "2G".
	MemLimit string `yaml:"mem_limit"`
	// PollInterval is the job polling period.
	PollInterval time.Duration `yaml:"poll_interval"`
	// Timeout bounds the whole run. Zero means no limit.
	Timeout time.Duration `yaml:"timeout"`

	// DataPath is the path of the CSV as seen by the engine.
	DataPath string `yaml:"data_path"`
	// Response is the response column; empty means the last column.
	Response string `yaml:"response"`

	SplitRatios []float64 `yaml:"split_ratios"`
	Seed        int64     `yaml:"seed"`

	Bins          int     `yaml:"bins"`
	MinSupport    float64 `yaml:"min_support"`
	MaxFactors    int     `yaml:"max_factors"`
	MinOccurrence int     `yaml:"min_occurrence"`
	Workers       int     `yaml:"workers"`

	// PlotDir receives one histogram per bucketed column when set.
	PlotDir string `yaml:"plot_dir"`

	Log LogConfig `yaml:"log"`
}

// LogConfig configures pkg/log.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		EngineURL:     "http://localhost:54321",
		MemLimit:      "2G",
		PollInterval:  500 * time.Millisecond,
		DataPath:      "https://h2o-public-test-data.s3.amazonaws.com/smalldata/covtype/covtype.full.csv",
		SplitRatios:   []float64{0.7, 0.15},
		Seed:          1234,
		Bins:          20,
		MinSupport:    1000,
		MaxFactors:    1000,
		MinOccurrence: 100,
		Log:           LogConfig{Level: "info", Format: "console"},
	}
}

// Load returns the defaults overlaid with the YAML file at path. An empty
// path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// LoadEnv loads KEY=VAL lines from file into the process environment without
// overriding variables that are already set. An empty file name means
// DefaultEnvFile, which may be absent; a named file must exist.
func LoadEnv(file string) error {
	if file == "" {
		if _, err := os.Stat(DefaultEnvFile); err != nil {
			return nil
		}
		file = DefaultEnvFile
	}
	if err := godotenv.Load(file); err != nil {
		return errors.Wrapf(err, "load env file %s", file)
	}
	return nil
}

// ApplyEnv overrides fields from REMOTEGLM_* variables found by lookup.
// Pass os.LookupEnv for the process environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	str("URL", &c.EngineURL)
	str("MEM_LIMIT", &c.MemLimit)
	str("DATA", &c.DataPath)
	str("RESPONSE", &c.Response)
	str("PLOT_DIR", &c.PlotDir)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	if v, ok := lookup(EnvPrefix + "SEED"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return errors.NewValidationError(EnvPrefix+"SEED", "not an integer", v)
		}
		c.Seed = n
	}
	if v, ok := lookup(EnvPrefix + "MIN_SUPPORT"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.NewValidationError(EnvPrefix+"MIN_SUPPORT", "not a number", v)
		}
		c.MinSupport = f
	}
	if v, ok := lookup(EnvPrefix + "POLL_INTERVAL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.NewValidationError(EnvPrefix+"POLL_INTERVAL", "not a duration", v)
		}
		c.PollInterval = d
	}
	if v, ok := lookup(EnvPrefix + "TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.NewValidationError(EnvPrefix+"TIMEOUT", "not a duration", v)
		}
		c.Timeout = d
	}
	return nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.EngineURL == "" {
		return errors.NewValidationError("engine_url", "must not be empty", c.EngineURL)
	}
	if c.DataPath == "" {
		return errors.NewValidationError("data_path", "must not be empty", c.DataPath)
	}
	if _, err := ParseMemory(c.MemLimit); err != nil {
		return err
	}
	if c.PollInterval <= 0 {
		return errors.NewValidationError("poll_interval", "must be positive", c.PollInterval)
	}
	if c.Timeout < 0 {
		return errors.NewValidationError("timeout", "must not be negative", c.Timeout)
	}
	if len(c.SplitRatios) == 0 {
		return errors.NewValidationError("split_ratios", "must not be empty", c.SplitRatios)
	}
	var sum float64
	for _, r := range c.SplitRatios {
		if r <= 0 {
			return errors.NewValidationError("split_ratios", "ratios must be positive", c.SplitRatios)
		}
		sum += r
	}
	if sum >= 1 {
		return errors.NewValidationError("split_ratios", "ratios must sum to less than 1", c.SplitRatios)
	}
	if c.Bins < 1 {
		return errors.NewValidationError("bins", "must be at least 1", c.Bins)
	}
	if c.MinSupport < 0 {
		return errors.NewValidationError("min_support", "must not be negative", c.MinSupport)
	}
	if c.MaxFactors <= 0 {
		return errors.NewValidationError("max_factors", "must be positive", c.MaxFactors)
	}
	if c.MinOccurrence <= 0 {
		return errors.NewValidationError("min_occurrence", "must be positive", c.MinOccurrence)
	}
	if _, err := log.ToLogLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return errors.NewValidationError("log.format", "must be json or console", c.Log.Format)
	}
	return nil
}

// MemLimitBytes returns MemLimit in bytes.
func (c *Config) MemLimitBytes() int64 {
	n, _ := ParseMemory(c.MemLimit)
	return n
}

var memUnits = map[byte]int64{
	'K': 1 << 10,
	'M': 1 << 20,
	'G': 1 << 30,
	'T': 1 << 40,
}

// ParseMemory parses sizes like "512M", "2G" or "2g". A bare number is bytes;
// an empty string is zero.
func ParseMemory(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" {
		return 0, nil
	}
	mult := int64(1)
	if u, ok := memUnits[s[len(s)-1]]; ok {
		mult = u
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || n < 0 {
		return 0, errors.NewValidationError("mem_limit", "expected a size like 2G", s)
	}
	return int64(n * float64(mult)), nil
}
