// Package sandbox provides secure code execution capabilities.
//
// The sandbox package implements the execution engine for running untrusted
// code as local child processes. A Registry maps language identifiers to
// declarative recipes, a WorkspaceManager hands every request its own
// uniquely named scratch directory, and the Engine runs the recipe steps with
// structured argv (never a shell), a single deadline for the whole request,
// bounded output capture and process-group termination on timeout.
//
// Every workspace is removed before Execute returns, whatever the outcome.
//
// Usage:
//
//	engine, err := sandbox.NewEngineFromConfig(logger, cfg)
//	result, err := engine.Execute(ctx, sandbox.ExecutionRequest{
//	    Language: "python",
//	    Code:     "print('Hello, World!')",
//	})
package sandbox
