package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	base := filepath.Join(dir, ".claudepm")
	require.NoError(t, os.MkdirAll(base, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "config.yaml"), []byte(content), 0644))
}

func TestLoad(t *testing.T) {
	t.Run("missing file applies defaults", func(t *testing.T) {
		cfg, err := Load(t.TempDir())
		require.NoError(t, err)

		assert.Equal(t, DefaultDebounceMs, cfg.Orchestrator.DebounceMs)
		assert.Equal(t, DefaultMaxConsecutiveFailures, cfg.Orchestrator.MaxConsecutiveFailures)
		assert.Equal(t, DefaultOrder, cfg.Orchestrator.Order)
		assert.Equal(t, DefaultAgentCommand, cfg.Agent.Command)
		assert.Equal(t, DefaultServerPort, cfg.Server.Port)
		assert.False(t, cfg.Orchestrator.ReviewEnabled)
		assert.False(t, cfg.Orchestrator.ResetOnFailure)
	})

	t.Run("yaml overrides defaults", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, `
orchestrator:
  debounce_ms: 500
  order: priority
agent:
  command: my-agent
server:
  port: 9000
`)
		cfg, err := Load(dir)
		require.NoError(t, err)

		assert.Equal(t, 500, cfg.Orchestrator.DebounceMs)
		assert.Equal(t, "priority", cfg.Orchestrator.Order)
		assert.Equal(t, "my-agent", cfg.Agent.Command)
		assert.Equal(t, 9000, cfg.Server.Port)
		// Untouched fields keep defaults.
		assert.Equal(t, DefaultExecutionTimeoutMin, cfg.Agent.ExecutionTimeoutMin)
	})

	t.Run("environment overrides yaml", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "server:\n  port: 9000\n")
		t.Setenv("CLAUDE_PM_SERVER_PORT", "9100")
		t.Setenv("CLAUDE_PM_AGENT_COMMAND", "env-agent")
		t.Setenv("CLAUDE_PM_ORCHESTRATOR_DEBOUNCE_MS", "750")

		cfg, err := Load(dir)
		require.NoError(t, err)

		assert.Equal(t, 9100, cfg.Server.Port)
		assert.Equal(t, "env-agent", cfg.Agent.Command)
		assert.Equal(t, 750, cfg.Orchestrator.DebounceMs)
	})

	t.Run("malformed yaml is an error", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "orchestrator: [not a map\n")
		_, err := Load(dir)
		assert.Error(t, err)
	})

	t.Run("invalid values fail validation", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, "server:\n  port: 99999\n")
		_, err := Load(dir)
		require.Error(t, err)
		var verr ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "server.port", verr.Field)
	})
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"negative debounce", func(c *Config) { c.Orchestrator.DebounceMs = -1 }, "orchestrator.debounce_ms"},
		{"zero max failures", func(c *Config) { c.Orchestrator.MaxConsecutiveFailures = 0 }, "orchestrator.max_consecutive_failures"},
		{"unknown order", func(c *Config) { c.Orchestrator.Order = "random" }, "orchestrator.order"},
		{"zero review timeout", func(c *Config) { c.Orchestrator.ReviewTimeoutMin = 0 }, "orchestrator.review_timeout_min"},
		{"empty agent command", func(c *Config) { c.Agent.Command = "" }, "agent.command"},
		{"zero execution timeout", func(c *Config) { c.Agent.ExecutionTimeoutMin = 0 }, "agent.execution_timeout_min"},
		{"zero watchdog interval", func(c *Config) { c.Agent.WatchdogIntervalMin = 0 }, "agent.watchdog_interval_min"},
		{"zero watchdog warnings", func(c *Config) { c.Agent.WatchdogMaxWarnings = 0 }, "agent.watchdog_max_warnings"},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, "server.port"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := Validate(&cfg)
			require.Error(t, err)
			var verr ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}

	t.Run("defaults are valid", func(t *testing.T) {
		cfg := DefaultConfig()
		assert.NoError(t, Validate(&cfg))
	})
}

func TestDurationHelpers(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 2*time.Second, cfg.Debounce())
	assert.Equal(t, 30*time.Minute, cfg.ExecutionTimeout())
	assert.Equal(t, 5*time.Minute, cfg.WatchdogInterval())
	assert.Equal(t, 15*time.Minute, cfg.ReviewTimeout())
}
