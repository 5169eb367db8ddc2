package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ProviderTemplate is the argv/env template used to spawn an mcp or pty
// session for a given provider name, so an operator can register, say,
// "claude-code" or "aider" ahead of time instead of every caller
// supplying a raw command line.
type ProviderTemplate struct {
	Command []string          `yaml:"command"`
	Env     map[string]string `yaml:"env,omitempty"`
}

// Config is the supervisor's on-disk configuration: the set of cwds
// sessions may be spawned in, and named provider command templates.
type Config struct {
	Whitelist []string                    `yaml:"whitelist"`
	Providers map[string]ProviderTemplate `yaml:"providers"`
}

// Default returns a permissive Config: an empty whitelist (cwdwhitelist
// treats that as "allow everything") and no registered templates.
func Default() Config {
	return Config{Providers: map[string]ProviderTemplate{}}
}

// Load reads and parses path. A missing file yields Default() rather than
// an error, matching the spec's "falling back to permissive defaults".
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.Providers == nil {
		cfg.Providers = map[string]ProviderTemplate{}
	}
	return cfg, nil
}
