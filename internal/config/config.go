// Package config holds sinkpool settings. Values come from built-in defaults,
// then the YAML config file, then SINKPOOL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/sinkpool/internal/device"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// overrideTag is a tag no field carries, so env parsing with it as the
// default tag only applies variables that are actually set.
const overrideTag = "envOverride"

// Config contains all sinkpool configuration options.
type Config struct {
	Cache   CacheConfig   `yaml:"cache"`
	Audio   AudioConfig   `yaml:"audio"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// CacheConfig controls the sink cache.
type CacheConfig struct {
	DeleteTimeout time.Duration `yaml:"delete_timeout" env:"SINKPOOL_CACHE_DELETE_TIMEOUT" envDefault:"5s"`
}

// AudioConfig controls how sinks are opened.
type AudioConfig struct {
	Backend    string        `yaml:"backend" env:"SINKPOOL_AUDIO_BACKEND" envDefault:"auto"`
	SampleRate int           `yaml:"sample_rate" env:"SINKPOOL_AUDIO_SAMPLE_RATE" envDefault:"44100"`
	Channels   int           `yaml:"channels" env:"SINKPOOL_AUDIO_CHANNELS" envDefault:"1"`
	Buffer     time.Duration `yaml:"buffer" env:"SINKPOOL_AUDIO_BUFFER" envDefault:"50ms"`

	// Sinks opened per second. Zero disables throttling.
	CreationRate  float64       `yaml:"creation_rate" env:"SINKPOOL_AUDIO_CREATION_RATE" envDefault:"20"`
	CreationBurst int           `yaml:"creation_burst" env:"SINKPOOL_AUDIO_CREATION_BURST" envDefault:"4"`
	CreateTimeout time.Duration `yaml:"create_timeout" env:"SINKPOOL_AUDIO_CREATE_TIMEOUT" envDefault:"2s"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `yaml:"level" env:"SINKPOOL_LOG_LEVEL" envDefault:"info"`
	File  string `yaml:"file" env:"SINKPOOL_LOG_FILE"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr" env:"SINKPOOL_METRICS_ADDR"`
}

var validBackends = []string{"auto", "production", "mock"}

// DefaultConfig returns the configuration described by the envDefault tags.
func DefaultConfig() Config {
	return env.Must(env.ParseAsWithOptions[Config](env.Options{
		Environment: map[string]string{},
	}))
}

// FromEnv returns the defaults with SINKPOOL_* variables applied.
func FromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with the SINKPOOL_* variables that are set. Unset
// variables leave cfg untouched.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{DefaultValueTagName: overrideTag}); err != nil {
		return fmt.Errorf("error parsing environment: %w", err)
	}
	return nil
}

// Validate checks the configuration and normalizes case-insensitive values.
func (c *Config) Validate() error {
	if c.Cache.DeleteTimeout <= 0 {
		return fmt.Errorf("%w: cache.delete_timeout must be positive, got %v", ErrInvalidConfig, c.Cache.DeleteTimeout)
	}

	c.Audio.Backend = strings.ToLower(c.Audio.Backend)
	if !slices.Contains(validBackends, c.Audio.Backend) {
		return fmt.Errorf("%w: invalid audio backend '%s': must be one of %v", ErrInvalidConfig, c.Audio.Backend, validBackends)
	}
	if err := c.Audio.Params().Validate(); err != nil {
		return fmt.Errorf("%w: audio: %w", ErrInvalidConfig, err)
	}
	if c.Audio.CreationRate < 0 {
		return fmt.Errorf("%w: audio.creation_rate cannot be negative, got %v", ErrInvalidConfig, c.Audio.CreationRate)
	}
	if c.Audio.CreationRate > 0 && c.Audio.CreationBurst < 1 {
		return fmt.Errorf("%w: audio.creation_burst must be at least 1, got %d", ErrInvalidConfig, c.Audio.CreationBurst)
	}
	if c.Audio.CreateTimeout < 0 {
		return fmt.Errorf("%w: audio.create_timeout cannot be negative, got %v", ErrInvalidConfig, c.Audio.CreateTimeout)
	}

	c.Log.Level = strings.ToLower(c.Log.Level)
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Params returns the PCM format sinks are opened with.
func (a AudioConfig) Params() device.Params {
	return device.Params{
		SampleRate:     a.SampleRate,
		Channels:       a.Channels,
		BitDepth:       16,
		BufferDuration: a.Buffer,
	}
}

// Limiter returns the sink creation limiter, or nil when throttling is off.
func (a AudioConfig) Limiter() *rate.Limiter {
	if a.CreationRate <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(a.CreationRate), a.CreationBurst)
}
