// Package main is the entry point for the coderunner server.
//
// The coderunner server accepts source code plus a language identifier, builds
// and runs it as local child processes inside a per-request scratch workspace
// and returns the captured output. Every execution runs under one deadline,
// its output is capped and its workspace is removed before the reply is sent.
//
// The engine is reachable over a REST API (fiber) and the Model Context
// Protocol. With server.transport set to http both are served on
// server.http_port; with stdio only the MCP tool is served on stdin/stdout.
//
// The application uses Uber's fx framework for dependency injection and lifecycle
// management, with zap for structured logging and viper for configuration.
package main
