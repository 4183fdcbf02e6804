// Package cli wires the claude-pm command tree.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/oviniciusramosp/claude-pm/internal/version"
)

var workdir string

var rootCmd = &cobra.Command{
	Use:     "claude-pm",
	Short:   "Backlog automation through an external coding agent",
	Long:    `claude-pm reconciles a backlog of markdown tasks by delegating each one to a coding agent subprocess and verifying the agent's self-reported results against the repository state.`,
	Version: version.Version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&workdir, "dir", "C", ".", "Repository directory containing .claudepm/")
	rootCmd.AddCommand(initCmd, runCmd, serveCmd, statusCmd, tasksCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
