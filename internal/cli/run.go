package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oviniciusramosp/claude-pm/internal/orchestrator"
)

var runEpicMode bool

func init() {
	runCmd.Flags().BoolVar(&runEpicMode, "epic", false, "Reconcile in epic mode")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one reconciliation pass",
	Long:  `Selects and executes eligible tasks until none remain or a halt condition triggers, then exits.`,
	Args:  cobra.NoArgs,
	RunE:  runOnce,
}

func runOnce(cmd *cobra.Command, args []string) error {
	a, err := buildApp(false)
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
	mode := orchestrator.ModeTask
	if runEpicMode {
		mode = orchestrator.ModeEpic
	}
	return a.orch.RunOnce(ctx, mode)
}
