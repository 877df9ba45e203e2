package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/ggoodman/cnc-capacity-mcp/internal/config"
	"github.com/ggoodman/cnc-capacity-mcp/planner"
	"github.com/ggoodman/cnc-capacity-mcp/stdio"
	"github.com/spf13/cobra"
)

func newStdioCmd() *cobra.Command {
	var envFile string
	cmd := &cobra.Command{
		Use:   "stdio",
		Short: "Serve MCP over stdin/stdout for local clients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			// stdout carries protocol messages, so logs go to stderr.
			log, err := cfg.NewLogger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			h := stdio.NewHandler(
				planner.NewServer(planner.WithLogger(log)),
				stdio.WithIO(cmd.InOrStdin(), cmd.OutOrStdout()),
				stdio.WithLogger(log),
			)
			return h.Serve(ctx)
		},
	}
	cmd.Flags().StringVar(&envFile, "env-file", config.DefaultEnvFile, "dotenv file to load before reading the environment")
	return cmd
}
