// Package ssehttp serves an MCP server over the HTTP+SSE transport.
//
// A client opens the event stream with GET on the stream path. The first
// event names the endpoint the client must POST its JSON-RPC messages to:
//
//	event: endpoint
//	data: /messages?sessionId=<id>
//
// Each POST is acknowledged with 202 Accepted and the reply is delivered on
// the stream as a "message" event. Only one stream is live at a time; a new
// GET replaces the previous stream. Session bookkeeping lives in package
// sessions, so several replicas can share one slot through a common
// sessions.SessionHost.
package ssehttp
