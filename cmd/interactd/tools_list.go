package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opentool-run/interact/tool"
)

func init() {
	toolsCmd.AddCommand(toolsListCmd)
	rootCmd.AddCommand(toolsCmd)
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Inspect the tools this server would register",
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the built-in demo tools",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := tool.NewRegistry()
		for _, t := range demoTools() {
			if err := reg.Register(t); err != nil {
				return err
			}
		}
		for _, t := range reg.List() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", t.Name, t.Description)
		}
		return nil
	},
}
