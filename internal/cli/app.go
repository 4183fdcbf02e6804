package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/oviniciusramosp/claude-pm/internal/agent"
	"github.com/oviniciusramosp/claude-pm/internal/config"
	"github.com/oviniciusramosp/claude-pm/internal/history"
	"github.com/oviniciusramosp/claude-pm/internal/logging"
	"github.com/oviniciusramosp/claude-pm/internal/orchestrator"
	"github.com/oviniciusramosp/claude-pm/internal/server"
	"github.com/oviniciusramosp/claude-pm/internal/task"
	"github.com/oviniciusramosp/claude-pm/internal/watchdog"
)

const claudepmDir = ".claudepm"

// app bundles the wired components shared by run and serve.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    *task.FileStore
	lock     *task.InstanceLock
	orch     *orchestrator.Orchestrator
	registry *prometheus.Registry
}

// baseDir returns the .claudepm directory under the working directory.
func baseDir() string {
	return filepath.Join(workdir, claudepmDir)
}

func tasksDir() string {
	return filepath.Join(baseDir(), "tasks")
}

// buildApp loads configuration and wires the orchestrator stack.
// withMetrics controls whether a prometheus registry is attached (serve
// mode); the run command skips it.
func buildApp(withMetrics bool) (*app, error) {
	if _, err := os.Stat(baseDir()); err != nil {
		return nil, fmt.Errorf("claude-pm not initialized in %s. Run `claude-pm init` first", workdir)
	}

	cfg, err := config.Load(workdir)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, err
	}

	store := task.NewFileStore(tasksDir())
	executor := agent.NewClaudeExecutor(cfg.Agent.Command, cfg.Agent.ExtraArgs, workdir, logger)
	if !executor.IsAvailable() {
		return nil, fmt.Errorf("agent command %q not found in PATH", cfg.Agent.Command)
	}

	dog := watchdog.New(cfg.WatchdogInterval(), cfg.Agent.WatchdogMaxWarnings,
		cfg.Orchestrator.MaxConsecutiveFailures, logger)
	hist := history.NewLog(baseDir())

	opts := orchestrator.Options{
		Store:            store,
		Executor:         executor,
		Watchdog:         dog,
		History:          hist,
		Logger:           logger,
		Workdir:          workdir,
		Policy:           orchestrator.Policy{Order: cfg.Orchestrator.Order},
		Debounce:         cfg.Debounce(),
		ExecutionTimeout: cfg.ExecutionTimeout(),
		ReviewEnabled:    cfg.Orchestrator.ReviewEnabled,
		ReviewTimeout:    cfg.ReviewTimeout(),
		ResetOnFailure:   cfg.Orchestrator.ResetOnFailure,
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		store:  store,
		lock:   task.NewInstanceLock(baseDir()),
	}
	if withMetrics {
		a.registry = prometheus.NewRegistry()
		opts.Metrics = server.NewMetrics(a.registry)
	}
	a.orch = orchestrator.New(opts)
	return a, nil
}
