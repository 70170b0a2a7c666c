package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// LoadFromViper builds a Config from the defaults, the values v has read
// from the config file, and the environment, in that order of precedence.
func LoadFromViper(v *viper.Viper) (Config, error) {
	cfg := DefaultConfig()

	// Cache settings
	if v.IsSet("cache.delete_timeout") {
		cfg.Cache.DeleteTimeout = v.GetDuration("cache.delete_timeout")
	}

	// Audio settings
	if v.IsSet("audio.backend") {
		cfg.Audio.Backend = v.GetString("audio.backend")
	}
	if v.IsSet("audio.sample_rate") {
		cfg.Audio.SampleRate = v.GetInt("audio.sample_rate")
	}
	if v.IsSet("audio.channels") {
		cfg.Audio.Channels = v.GetInt("audio.channels")
	}
	if v.IsSet("audio.buffer") {
		cfg.Audio.Buffer = v.GetDuration("audio.buffer")
	}
	if v.IsSet("audio.creation_rate") {
		cfg.Audio.CreationRate = v.GetFloat64("audio.creation_rate")
	}
	if v.IsSet("audio.creation_burst") {
		cfg.Audio.CreationBurst = v.GetInt("audio.creation_burst")
	}
	if v.IsSet("audio.create_timeout") {
		cfg.Audio.CreateTimeout = v.GetDuration("audio.create_timeout")
	}

	// Logging
	if v.IsSet("log.level") {
		cfg.Log.Level = v.GetString("log.level")
	}
	if v.IsSet("log.file") {
		cfg.Log.File = v.GetString("log.file")
	}

	if v.IsSet("metrics.addr") {
		cfg.Metrics.Addr = v.GetString("metrics.addr")
	}

	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid sinkpool configuration: %w", err)
	}
	return cfg, nil
}

// SetDefaults registers the default values with v.
func SetDefaults(v *viper.Viper) {
	defaults := DefaultConfig()

	v.SetDefault("cache.delete_timeout", defaults.Cache.DeleteTimeout.String())

	v.SetDefault("audio.backend", defaults.Audio.Backend)
	v.SetDefault("audio.sample_rate", defaults.Audio.SampleRate)
	v.SetDefault("audio.channels", defaults.Audio.Channels)
	v.SetDefault("audio.buffer", defaults.Audio.Buffer.String())
	v.SetDefault("audio.creation_rate", defaults.Audio.CreationRate)
	v.SetDefault("audio.creation_burst", defaults.Audio.CreationBurst)
	v.SetDefault("audio.create_timeout", defaults.Audio.CreateTimeout.String())

	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.file", defaults.Log.File)
	v.SetDefault("metrics.addr", defaults.Metrics.Addr)
}
