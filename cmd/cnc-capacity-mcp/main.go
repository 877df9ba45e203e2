// Command cnc-capacity-mcp serves the CNC cell capacity model as an MCP tool
// over HTTP+SSE, and can evaluate the model locally.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
