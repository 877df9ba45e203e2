// Package stdio serves an MCP server over stdin/stdout. It is intended for
// running the planner as a subprocess of a desktop MCP client, where piping
// newline-delimited JSON is simpler than running an HTTP server.
//
// Characteristics
//
//	Connection model : 1 process <-> 1 client
//	Sessions         : one, held in memory for the life of the process
//	Transport        : newline-delimited JSON-RPC
//
// Messages are handled in the order they are read and each reply is written
// as one line. Serve returns nil once the reader reaches EOF.
//
// Example:
//
//	h := stdio.NewHandler(planner.NewServer())
//	if err := h.Serve(context.Background()); err != nil { log.Fatal(err) }
package stdio
