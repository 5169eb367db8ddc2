package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Whitelist)
	assert.NotNil(t, cfg.Providers)
	assert.Empty(t, cfg.Providers)
}

func TestLoadParsesWhitelistAndProviders(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlContent := "whitelist:\n  - /home/alice/projects\nproviders:\n  claude-code:\n    command: [\"claude\", \"--print\"]\n    env:\n      FOO: bar\n"
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/home/alice/projects"}, cfg.Whitelist)
	require.Contains(t, cfg.Providers, "claude-code")
	assert.Equal(t, []string{"claude", "--print"}, cfg.Providers["claude-code"].Command)
	assert.Equal(t, "bar", cfg.Providers["claude-code"].Env["FOO"])
}

func TestDataDirHonorsOverride(t *testing.T) {
	t.Setenv("HAPPYCLAW_DATA_HOME", "/tmp/custom-happyclaw")
	assert.Equal(t, "/tmp/custom-happyclaw", DataDir())
}
