// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The mcpserver package exposes the execution engine as the execute_code tool
// using the mark3labs/mcp-go library. The language parameter is an enum of
// the identifiers registered with the engine, and every call takes an
// admission slot before it runs.
//
// The server runs on stdio, or is mounted at /mcp of the HTTP API when the
// http transport is configured.
//
// Usage:
//
//	server, err := mcpserver.New(config, logger, executor, limiter)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = server.ServeStdio(ctx)
package mcpserver
