// Package mcpservice provides building blocks for implementing MCP server
// capabilities in a composable way. It exposes the capability interfaces
// consumed by the engine plus helpers for static, reflection-described tools.
//
// Quick start:
//
//	type EchoArgs struct {
//	    Message string `json:"message" jsonschema:"minLength=1,description=Text to echo"`
//	}
//	type EchoOut struct {
//	    Length int `json:"length"`
//	}
//	tools := mcpservice.NewToolsContainer(
//	    mcpservice.NewToolWithOutput[EchoArgs, EchoOut]("echo",
//	        func(ctx context.Context, s sessions.Session, w mcpservice.ToolResponseWriterTyped[EchoOut], r *mcpservice.ToolRequest[EchoArgs]) error {
//	            w.SetStructured(EchoOut{Length: len(r.Args().Message)})
//	            return w.AppendText("you said: " + r.Args().Message)
//	        },
//	        mcpservice.WithToolDescription("Echo a message back to the caller"),
//	    ),
//	)
//
//	srv := mcpservice.NewServer(
//	    mcpservice.WithServerInfo(mcp.ImplementationInfo{Name: "example", Version: "1.0.0"}),
//	    mcpservice.WithToolsCapability(tools),
//	)
//
// See server.go and static_tools.go for full API details.
package mcpservice
