package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// MarshalYAML renders durations the way they are written in the config file.
func (c Config) MarshalYAML() (interface{}, error) {
	return map[string]any{
		"cache": map[string]any{
			"delete_timeout": c.Cache.DeleteTimeout.String(),
		},
		"audio": map[string]any{
			"backend":        c.Audio.Backend,
			"sample_rate":    c.Audio.SampleRate,
			"channels":       c.Audio.Channels,
			"buffer":         c.Audio.Buffer.String(),
			"creation_rate":  c.Audio.CreationRate,
			"creation_burst": c.Audio.CreationBurst,
			"create_timeout": c.Audio.CreateTimeout.String(),
		},
		"log": map[string]any{
			"level": c.Log.Level,
			"file":  c.Log.File,
		},
		"metrics": map[string]any{
			"addr": c.Metrics.Addr,
		},
	}, nil
}

// Encode returns c as a YAML document.
func (c Config) Encode() ([]byte, error) {
	b, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("unable to encode config: %w", err)
	}
	return b, nil
}
