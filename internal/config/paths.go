// Package config resolves the supervisor's data directory and loads its
// YAML configuration file: the cwd whitelist and any provider command
// templates an operator wants to register ahead of time.
package config

import (
	"os"
	"path/filepath"
)

// dataHomeEnv overrides the default data directory, analogous to the
// teacher's XDG_DATA_HOME override but collapsed to the single directory
// this supervisor actually needs (no separate config/cache/state split:
// everything it persists — sessions.json, audit.log, config.yaml — lives
// in one place an operator can back up as a unit).
const dataHomeEnv = "HAPPYCLAW_DATA_HOME"

// Paths is the resolved set of on-disk locations the supervisor uses.
type Paths struct {
	// Data is the root data directory: <home>/.happyclaw by default.
	Data string
}

// DataDir returns dataHomeEnv if set, otherwise "<home>/.happyclaw".
func DataDir() string {
	if dir := os.Getenv(dataHomeEnv); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".happyclaw")
}

// GetPaths resolves Paths from the environment.
func GetPaths() *Paths {
	return &Paths{Data: DataDir()}
}

// Ensure creates the data directory if it doesn't already exist.
func (p *Paths) Ensure() error {
	return os.MkdirAll(p.Data, 0o755)
}

// ConfigPath returns the path to config.yaml under the data directory.
func (p *Paths) ConfigPath() string {
	return filepath.Join(p.Data, "config.yaml")
}
