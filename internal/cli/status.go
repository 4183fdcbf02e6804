package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/oviniciusramosp/claude-pm/internal/task"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the task board",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(baseDir()); err != nil {
		return fmt.Errorf("claude-pm not initialized in %s. Run `claude-pm init` first", workdir)
	}

	store := task.NewFileStore(tasksDir())
	tasks, err := store.ListTasks()
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No tasks found.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tACS\tNAME")
	counts := map[task.Status]int{}
	for _, t := range tasks {
		counts[t.Status]++
		body, err := store.GetBody(t.ID)
		if err != nil {
			return err
		}
		criteria := task.ParseCriteria(body)
		acs := "-"
		if len(criteria) > 0 {
			done := len(criteria) - len(task.UncheckedCriteria(body))
			acs = fmt.Sprintf("%d/%d", done, len(criteria))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Type, t.Status, acs, t.Name)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\n%d total: %d done, %d in progress, %d not started\n",
		len(tasks), counts[task.StatusDone], counts[task.StatusInProgress], counts[task.StatusNotStarted])
	return nil
}
