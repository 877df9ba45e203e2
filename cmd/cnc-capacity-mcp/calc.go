package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ggoodman/cnc-capacity-mcp/capacity"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newCalcCmd() *cobra.Command {
	var (
		in     capacity.Input
		output string
	)
	cmd := &cobra.Command{
		Use:   "calc",
		Short: "Compute the capacity of the cell locally",
		Example: "  cnc-capacity-mcp calc --op1 10 --op2 8 --robot 2\n" +
			"  cnc-capacity-mcp calc --op1 5 --op2 20 --robot 1 --output yaml",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := capacity.Compute(in)
			if err != nil {
				return err
			}
			out, err := renderReport(report, output)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		},
	}

	cmd.Flags().Float64Var(&in.Op1CycleTime, "op1", 0, "OP1 machining cycle time in seconds")
	cmd.Flags().Float64Var(&in.Op2CycleTime, "op2", 0, "cycle time of one OP2 machine in seconds")
	cmd.Flags().Float64Var(&in.RobotMoveTime, "robot", 0, "robot transfer and load/unload time per cycle in seconds")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text, json or yaml")
	for _, name := range []string{"op1", "op2", "robot"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

func renderReport(r capacity.Report, format string) (string, error) {
	switch strings.ToLower(format) {
	case "text":
		return r.Text(), nil
	case "json":
		b, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encode report: %w", err)
		}
		return string(b), nil
	case "yaml":
		b, err := yaml.Marshal(r)
		if err != nil {
			return "", fmt.Errorf("encode report: %w", err)
		}
		return strings.TrimSuffix(string(b), "\n"), nil
	default:
		return "", fmt.Errorf("unknown output format %q", format)
	}
}
