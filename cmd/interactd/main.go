// Command interactd runs the interactive MCP tool engine as a standalone
// server, exposing the greet/age-gate/color-picker demo tools from
// spec.md §8's end-to-end scenarios.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "interactd",
	Short: "Stateful, multi-turn interactive tool-invocation server",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
