package main

import (
	"fmt"

	"github.com/ggoodman/cnc-capacity-mcp/planner"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "cnc-capacity-mcp %s (%s %s)\n", version, planner.ServerName, planner.ServerVersion)
			return err
		},
	}
}
