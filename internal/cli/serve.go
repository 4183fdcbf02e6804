package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oviniciusramosp/claude-pm/internal/server"
	"github.com/oviniciusramosp/claude-pm/internal/task"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the orchestrator daemon",
	Long:  `Starts the reconciliation orchestrator with the HTTP control surface and a task-tree watcher. Runs until interrupted.`,
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := buildApp(true)
	if err != nil {
		return err
	}
	defer a.logger.Sync()

	if err := a.lock.Acquire(); err != nil {
		return err
	}
	defer a.lock.Release()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a.orch.Start(ctx)

	watcher := task.NewWatcher(a.store.Root(), func(reason string) {
		a.orch.Schedule(reason, "")
	}, a.logger)
	go func() {
		if err := watcher.Run(ctx); err != nil {
			a.logger.Error("task watcher stopped", zap.Error(err))
		}
	}()

	// Catch up on whatever happened while the daemon was down.
	a.orch.Schedule("startup", "")

	srv := server.New(a.orch, a.store, a.registry, a.cfg.Server.Port, a.logger)
	if err := srv.Start(ctx); err != nil {
		return err
	}

	a.orch.WaitIdle()
	return nil
}
