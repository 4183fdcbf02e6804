package main

import (
	"os"

	"github.com/oviniciusramosp/claude-pm/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
