package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oviniciusramosp/claude-pm/internal/task"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Inspect the task store",
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all tasks as JSON",
	Args:  cobra.NoArgs,
	RunE:  runTasksList,
}

func init() {
	tasksCmd.AddCommand(tasksListCmd)
}

func runTasksList(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(baseDir()); err != nil {
		return fmt.Errorf("claude-pm not initialized in %s. Run `claude-pm init` first", workdir)
	}

	store := task.NewFileStore(tasksDir())
	tasks, err := store.ListTasks()
	if err != nil {
		return err
	}
	if tasks == nil {
		tasks = []task.Task{}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(tasks)
}
