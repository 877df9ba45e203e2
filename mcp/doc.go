// Package mcp contains the Model Context Protocol data types and constants
// used by the capacity server. It mirrors the wire representation of the
// subset of the protocol the server speaks (initialize, ping, tools) while
// keeping the surface Go-friendly: exported structs with json tags and string
// constants for method names.
//
// The package is free of transport logic. The ssehttp transport and the
// engine import these types and implement their own framing and session
// handling.
//
// # Method Names
//
// JSON-RPC method and notification names are enumerated as Method constants
// (e.g. ToolsCallMethod).
//
// # Compatibility
//
// LatestProtocolVersion is the protocol date the server prefers.
// SupportedProtocolVersions lists every version the server accepts during
// negotiation; an unknown client version is answered with the latest one.
//
// Example (tool result construction):
//
//	res := &mcp.CallToolResult{
//	    Content: []mcp.ContentBlock{{Type: mcp.ContentTypeText, Text: "hello"}},
//	}
package mcp
