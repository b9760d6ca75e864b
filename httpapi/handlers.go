package httpapi

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/isdmx/coderunner/admission"
	"github.com/isdmx/coderunner/results"
	"github.com/isdmx/coderunner/sandbox"
)

// ExecuteRequest is the body of POST /code/execute
type ExecuteRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
	// Timeout in seconds; zero selects the server default.
	Timeout float64 `json:"timeout,omitempty"`
}

func (s *Server) handleExecute(c *fiber.Ctx) error {
	var body ExecuteRequest
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	req := sandbox.ExecutionRequest{
		Code:     body.Code,
		Language: body.Language,
		Timeout:  sandbox.TimeoutFromSeconds(body.Timeout, s.config.GetMaxTimeout()),
	}
	if err := req.Validate(); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	ctx := c.UserContext()
	release, err := s.limiter.Acquire(ctx)
	if err != nil {
		if errors.Is(err, admission.ErrCapacityExhausted) {
			return fiber.NewError(fiber.StatusServiceUnavailable, admission.MessageBusy)
		}
		return err
	}
	defer release()

	result, err := s.sandboxExec.Execute(ctx, req)
	switch {
	case errors.Is(err, sandbox.ErrUnsupportedLanguage):
		return c.Status(fiber.StatusBadRequest).JSON(sandbox.Response{
			Status: sandbox.StatusUnsupportedLanguage,
			Error:  "Unsupported language: " + body.Language,
		})
	case errors.Is(err, sandbox.ErrInvalidRequest):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case err != nil:
		return err
	}

	status := fiber.StatusOK
	if !result.Success {
		status = fiber.StatusInternalServerError
	}
	return c.Status(status).JSON(result.Response())
}

func (s *Server) handleLanguages(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"languages": s.sandboxExec.Languages()})
}

func (s *Server) handleGetExecution(c *fiber.Ctx) error {
	id := c.Params("id")
	resp, err := s.store.Get(c.UserContext(), id)
	if errors.Is(err, results.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "Execution not found")
	}
	if err != nil {
		s.logger.Error("failed to load execution result", zap.String("execution_id", id), zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to load execution result")
	}
	return c.JSON(resp)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":   "UP",
		"inFlight": s.limiter.InFlight(),
		"capacity": s.limiter.Capacity(),
	})
}
