package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/coderunner/admission"
	"github.com/isdmx/coderunner/config"
	"github.com/isdmx/coderunner/sandbox"
)

// ToolExecuteCode is the name of the code execution tool
const ToolExecuteCode = "execute_code"

// EndpointPath is where the streamable HTTP transport is mounted
const EndpointPath = "/mcp"

// MCPServer represents the MCP server
type MCPServer struct {
	config      *config.Config
	logger      *zap.Logger
	sandboxExec sandbox.SandboxExecutor
	limiter     *admission.Limiter
	mcpServer   *server.MCPServer
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, sandboxExec sandbox.SandboxExecutor, limiter *admission.Limiter) (*MCPServer, error) {
	s := &MCPServer{
		config:      cfg,
		logger:      logger,
		sandboxExec: sandboxExec,
		limiter:     limiter,
	}

	s.mcpServer = server.NewMCPServer("coderunner", "1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery())

	s.registerExecuteCodeTool()

	logger.Info("MCP server initialized",
		zap.String("tool", ToolExecuteCode),
		zap.Strings("languages", sandboxExec.Languages()),
		zap.Duration("default_timeout", cfg.GetTimeout()),
		zap.Duration("max_timeout", cfg.GetMaxTimeout()))

	return s, nil
}

// registerExecuteCodeTool registers the execute_code tool
func (s *MCPServer) registerExecuteCodeTool() {
	tool := mcp.NewTool(ToolExecuteCode,
		mcp.WithDescription("Compile and run source code in an isolated, time-bounded workspace"),
		mcp.WithString("code",
			mcp.Required(),
			mcp.Description("Source code to execute"),
		),
		mcp.WithString("language",
			mcp.Required(),
			mcp.Description("Language of the source code"),
			mcp.Enum(s.sandboxExec.Languages()...),
		),
		mcp.WithNumber("timeout_sec",
			mcp.Description(fmt.Sprintf("Execution timeout in seconds, default %d, capped at %d",
				s.config.Sandbox.TimeoutSec, s.config.Sandbox.MaxTimeoutSec)),
			mcp.Min(0),
		),
	)

	s.mcpServer.AddTool(tool, s.handleExecuteCode)
}

// handleExecuteCode handles the execute_code tool
func (s *MCPServer) handleExecuteCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := request.RequireString("code")
	if err != nil {
		return nil, fmt.Errorf("code parameter is required: %w", err)
	}

	language, err := request.RequireString("language")
	if err != nil {
		return nil, fmt.Errorf("language parameter is required: %w", err)
	}

	timeout := sandbox.TimeoutFromSeconds(request.GetFloat("timeout_sec", 0), s.config.GetMaxTimeout())

	req := sandbox.ExecutionRequest{
		Code:     code,
		Language: language,
		Timeout:  timeout,
	}
	if validateErr := req.Validate(); validateErr != nil {
		return nil, validateErr
	}

	release, err := s.limiter.Acquire(ctx)
	if err != nil {
		if errors.Is(err, admission.ErrCapacityExhausted) {
			return mcp.NewToolResultError(admission.MessageBusy), nil
		}
		return nil, err
	}
	defer release()

	s.logger.Info("code execution requested",
		zap.String("transport", "mcp"),
		zap.String("language", language),
		zap.Int("code_len", len(code)))

	result, err := s.sandboxExec.Execute(ctx, req)
	if err != nil {
		// Only rejections before any work reach this point.
		return nil, err
	}

	payload, err := json.Marshal(result.Response())
	if err != nil {
		s.logger.Error("failed to encode execution result", zap.Error(err))
		return mcp.NewToolResultError(sandbox.MessageExecutionFailed), nil
	}

	toolResult := mcp.NewToolResultText(string(payload))
	toolResult.IsError = !result.Success
	return toolResult, nil
}

// ServeStdio serves the MCP protocol on stdin/stdout until ctx is done
func (s *MCPServer) ServeStdio(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio")

	stdio := server.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(zap.NewStdLog(s.logger))
	err := stdio.Listen(ctx, os.Stdin, os.Stdout)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// HTTPHandler returns the streamable HTTP transport, served by the REST app
// at EndpointPath
func (s *MCPServer) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcpServer,
		server.WithEndpointPath(EndpointPath),
		server.WithStateLess(true))
}

// GetMCPServer returns the underlying MCP server for fx
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
