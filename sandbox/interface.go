package sandbox

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ExecutionRequest represents the parameters for code execution
type ExecutionRequest struct {
	Code     string
	Language string
	// Timeout bounds the whole request. Zero selects the engine default.
	Timeout time.Duration
}

// SandboxExecutor defines the interface for sandbox execution
type SandboxExecutor interface {
	// Execute returns an error only when the request is rejected before any
	// filesystem or process activity. Every other outcome is a result.
	Execute(ctx context.Context, req ExecutionRequest) (ExecutionResult, error)
	// Languages lists the identifiers Execute accepts.
	Languages() []string
}

var (
	// ErrInvalidRequest marks requests with missing or empty fields.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUnsupportedLanguage marks languages with no registered recipe.
	ErrUnsupportedLanguage = errors.New("unsupported language")
)

// File permission constants
const (
	DirPermission  = 0o700
	FilePermission = 0o600
)

// Validate checks that both code and language are present.
func (r ExecutionRequest) Validate() error {
	if strings.TrimSpace(r.Code) == "" {
		return fmt.Errorf("%w: code is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.Language) == "" {
		return fmt.Errorf("%w: language is required", ErrInvalidRequest)
	}
	if r.Timeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative", ErrInvalidRequest)
	}
	return nil
}

// maxSeconds is the largest second count a time.Duration can hold.
const maxSeconds = float64(math.MaxInt64) / float64(time.Second)

// TimeoutFromSeconds converts a client supplied timeout in seconds. Values
// above limit are capped to it when limit is positive, and the conversion
// saturates instead of overflowing. Negative values stay negative so
// Validate rejects them.
func TimeoutFromSeconds(sec float64, limit time.Duration) time.Duration {
	switch {
	case math.IsNaN(sec):
		return 0
	case limit > 0 && sec > limit.Seconds():
		return limit
	case sec >= maxSeconds:
		return math.MaxInt64
	case sec <= -maxSeconds:
		return math.MinInt64
	}
	return time.Duration(sec * float64(time.Second))
}
