// Package config loads claude-pm configuration from .claudepm/config.yaml
// with CLAUDE_PM_* environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Default values for Config.
const (
	DefaultDebounceMs             = 2000
	DefaultExecutionTimeoutMin    = 30
	DefaultWatchdogIntervalMin    = 5
	DefaultWatchdogMaxWarnings    = 3
	DefaultMaxConsecutiveFailures = 3
	DefaultReviewTimeoutMin       = 15
	DefaultServerPort             = 4271
	DefaultAgentCommand           = "claude"
	DefaultOrder                  = "id"

	envPrefix = "CLAUDE_PM_"
)

// OrchestratorConfig controls the scheduling loop.
type OrchestratorConfig struct {
	DebounceMs             int    `koanf:"debounce_ms"`
	MaxConsecutiveFailures int    `koanf:"max_consecutive_failures"`
	ResetOnFailure         bool   `koanf:"reset_on_failure"`
	Order                  string `koanf:"order"` // "id" or "priority"
	ReviewEnabled          bool   `koanf:"review_enabled"`
	ReviewTimeoutMin       int    `koanf:"review_timeout_min"`
}

// AgentConfig controls the agent subprocess.
type AgentConfig struct {
	Command             string   `koanf:"command"`
	ExtraArgs           []string `koanf:"extra_args"`
	ExecutionTimeoutMin int      `koanf:"execution_timeout_min"`
	WatchdogIntervalMin int      `koanf:"watchdog_interval_min"`
	WatchdogMaxWarnings int      `koanf:"watchdog_max_warnings"`
}

// ServerConfig controls the HTTP control surface.
type ServerConfig struct {
	Port int `koanf:"port"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Config is the root configuration.
type Config struct {
	Orchestrator OrchestratorConfig `koanf:"orchestrator"`
	Agent        AgentConfig        `koanf:"agent"`
	Server       ServerConfig       `koanf:"server"`
	Log          LogConfig          `koanf:"log"`
}

// ValidationError reports an invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Orchestrator: OrchestratorConfig{
			DebounceMs:             DefaultDebounceMs,
			MaxConsecutiveFailures: DefaultMaxConsecutiveFailures,
			Order:                  DefaultOrder,
			ReviewTimeoutMin:       DefaultReviewTimeoutMin,
		},
		Agent: AgentConfig{
			Command:             DefaultAgentCommand,
			ExecutionTimeoutMin: DefaultExecutionTimeoutMin,
			WatchdogIntervalMin: DefaultWatchdogIntervalMin,
			WatchdogMaxWarnings: DefaultWatchdogMaxWarnings,
		},
		Server: ServerConfig{Port: DefaultServerPort},
		Log:    LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads .claudepm/config.yaml from basePath, then overlays
// CLAUDE_PM_* environment variables.
//
// Precedence (highest to lowest):
//  1. Environment variables (CLAUDE_PM_AGENT_COMMAND, CLAUDE_PM_SERVER_PORT, ...)
//  2. YAML config file
//  3. Defaults
//
// A missing config file is not an error; defaults apply.
func Load(basePath string) (*Config, error) {
	k := koanf.New(".")

	configPath := filepath.Join(basePath, ".claudepm", "config.yaml")
	content, err := os.ReadFile(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
	}

	// CLAUDE_PM_ORCHESTRATOR_DEBOUNCE_MS -> orchestrator.debounce_ms
	// The first underscore after the prefix separates section from field.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks config fields for out-of-range values.
func Validate(cfg *Config) error {
	if cfg.Orchestrator.DebounceMs < 0 {
		return ValidationError{"orchestrator.debounce_ms", "must be >= 0"}
	}
	if cfg.Orchestrator.MaxConsecutiveFailures < 1 {
		return ValidationError{"orchestrator.max_consecutive_failures", "must be >= 1"}
	}
	if cfg.Orchestrator.Order != "id" && cfg.Orchestrator.Order != "priority" {
		return ValidationError{"orchestrator.order", `must be "id" or "priority"`}
	}
	if cfg.Orchestrator.ReviewTimeoutMin <= 0 {
		return ValidationError{"orchestrator.review_timeout_min", "must be > 0"}
	}
	if cfg.Agent.Command == "" {
		return ValidationError{"agent.command", "must not be empty"}
	}
	if cfg.Agent.ExecutionTimeoutMin <= 0 {
		return ValidationError{"agent.execution_timeout_min", "must be > 0"}
	}
	if cfg.Agent.WatchdogIntervalMin <= 0 {
		return ValidationError{"agent.watchdog_interval_min", "must be > 0"}
	}
	if cfg.Agent.WatchdogMaxWarnings < 1 {
		return ValidationError{"agent.watchdog_max_warnings", "must be >= 1"}
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return ValidationError{"server.port", "must be between 1 and 65535"}
	}
	return nil
}

// Debounce returns the schedule debounce window as a duration.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Orchestrator.DebounceMs) * time.Millisecond
}

// ExecutionTimeout returns the hard per-execution timeout.
func (c *Config) ExecutionTimeout() time.Duration {
	return time.Duration(c.Agent.ExecutionTimeoutMin) * time.Minute
}

// WatchdogInterval returns the staleness warning interval.
func (c *Config) WatchdogInterval() time.Duration {
	return time.Duration(c.Agent.WatchdogIntervalMin) * time.Minute
}

// ReviewTimeout returns the epic review timeout.
func (c *Config) ReviewTimeout() time.Duration {
	return time.Duration(c.Orchestrator.ReviewTimeoutMin) * time.Minute
}
