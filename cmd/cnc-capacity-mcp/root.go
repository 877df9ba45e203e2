package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	opts := &serveOptions{}
	rootCmd := &cobra.Command{
		Use:           "cnc-capacity-mcp",
		Short:         "MCP server for CNC cell capacity planning",
		Long:          "cnc-capacity-mcp exposes the calculate-cnc-capacity tool over the MCP HTTP+SSE transport. Without a subcommand it runs the server.",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}
	opts.bind(rootCmd)

	rootCmd.AddCommand(
		newServeCmd(),
		newStdioCmd(),
		newCalcCmd(),
		newVersionCmd(),
	)

	return rootCmd
}
