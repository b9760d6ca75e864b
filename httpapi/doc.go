// Package httpapi serves the REST interface of the execution engine.
//
// Routes:
//
//	POST /code/execute          run {"code", "language"} and return the response
//	GET  /code/languages        list accepted language identifiers
//	GET  /code/executions/:id   fetch a recorded response by execution id
//	GET  /health                liveness and admission counters
//	ANY  /mcp                   MCP streamable HTTP transport
//
// Validation failures and unsupported languages are answered with 400, a full
// admission queue with 503, failed executions with 500 and successful ones
// with 200. Infrastructure details never appear in replies; they are logged.
package httpapi
