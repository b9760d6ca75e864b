package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"

	"github.com/isdmx/coderunner/admission"
	"github.com/isdmx/coderunner/config"
	"github.com/isdmx/coderunner/mcpserver"
	"github.com/isdmx/coderunner/results"
	"github.com/isdmx/coderunner/sandbox"
)

// Server is the fiber application serving the REST API
type Server struct {
	config      *config.Config
	logger      *zap.Logger
	sandboxExec sandbox.SandboxExecutor
	limiter     *admission.Limiter
	store       results.Store
	app         *fiber.App
}

// New creates the fiber app and registers all routes. mcp may be nil.
func New(cfg *config.Config, logger *zap.Logger, sandboxExec sandbox.SandboxExecutor,
	limiter *admission.Limiter, store results.Store, mcp *mcpserver.MCPServer,
) *Server {
	s := &Server{
		config:      cfg,
		logger:      logger,
		sandboxExec: sandboxExec,
		limiter:     limiter,
		store:       store,
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "coderunner",
		BodyLimit:             cfg.Server.BodyLimitBytes,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})

	s.app.Use(recover.New())
	s.app.Use(requestid.New())
	s.app.Use(requestLogger(logger))
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.Server.CORSOrigins, ","),
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Mcp-Session-Id",
	}))

	s.app.Get("/health", s.handleHealth)

	code := s.app.Group("/code")
	code.Post("/execute", s.handleExecute)
	code.Get("/languages", s.handleLanguages)
	code.Get("/executions/:id", s.handleGetExecution)

	if mcp != nil {
		s.app.All(mcpserver.EndpointPath, adaptor.HTTPHandler(mcp.HTTPHandler()))
	}

	return s
}

// App returns the underlying fiber app
func (s *Server) App() *fiber.App {
	return s.app
}

// Start binds the configured port and serves in the background. Bind errors
// are returned synchronously.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Server.HTTPPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.logger.Info("starting HTTP server", zap.Int("port", s.config.Server.HTTPPort))
	go func() {
		if serveErr := s.app.Listener(ln); serveErr != nil {
			s.logger.Error("HTTP server stopped", zap.Error(serveErr))
		}
	}()
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.app.ShutdownWithContext(ctx)
}

// handleError renders errors returned by handlers and middleware. Anything
// that is not a *fiber.Error becomes a generic 500.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := sandbox.MessageExecutionFailed

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
		message = fiberErr.Message
	} else {
		s.logger.Error("unhandled request error",
			zap.String("path", c.Path()),
			zap.Error(err))
	}

	return c.Status(code).JSON(fiber.Map{
		"success": false,
		"error":   message,
		"output":  "",
	})
}

// requestLogger logs every request with zap
func requestLogger(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		var fiberErr *fiber.Error
		switch {
		case errors.As(err, &fiberErr):
			status = fiberErr.Code
		case err != nil:
			status = fiber.StatusInternalServerError
		}

		logger.Info("request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", c.GetRespHeader(fiber.HeaderXRequestID)))
		return err
	}
}
