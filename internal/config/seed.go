package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SeedRoute is one entry in a static route/worker topology file, letting the
// gate command pre-register example routes at startup without waiting for a
// worker to have already registered them. This is a convenience layer on
// top of the registry's own RegisterRoute — it changes nothing about how
// routes are stored.
type SeedRoute struct {
	Path     string            `yaml:"path"`
	Method   string            `yaml:"method"`
	WorkerID string            `yaml:"worker_id"`
	Version  string            `yaml:"version"`
	Queue    string            `yaml:"queue"`
	Timeout  time.Duration     `yaml:"timeout"`
	Metadata map[string]string `yaml:"metadata,omitempty"`
}

// LoadSeedFile parses a YAML document listing routes to pre-register.
func LoadSeedFile(path string) ([]SeedRoute, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var routes []SeedRoute
	if err := yaml.Unmarshal(raw, &routes); err != nil {
		return nil, err
	}
	return routes, nil
}
