package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const defaultConfigYAML = `# claude-pm configuration
orchestrator:
  debounce_ms: 2000
  max_consecutive_failures: 3
  reset_on_failure: false
  order: id            # "id" or "priority"
  review_enabled: false
  review_timeout_min: 15

agent:
  command: claude
  execution_timeout_min: 30
  watchdog_interval_min: 5
  watchdog_max_warnings: 3

server:
  port: 4271

log:
  level: info
  format: console
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize .claudepm/ in the current repository",
	Long:  `Creates the .claudepm directory with a default config.yaml and an empty tasks tree.`,
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	if err := os.MkdirAll(tasksDir(), 0755); err != nil {
		return fmt.Errorf("failed to create tasks directory: %w", err)
	}

	configPath := filepath.Join(baseDir(), "config.yaml")
	if _, err := os.Stat(configPath); err == nil {
		fmt.Println("Already initialized.")
		return nil
	}
	if err := os.WriteFile(configPath, []byte(defaultConfigYAML), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Initialized %s\n", baseDir())
	fmt.Println("Add tasks as markdown files under", tasksDir())
	return nil
}
