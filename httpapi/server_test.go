package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/isdmx/coderunner/admission"
	"github.com/isdmx/coderunner/config"
	"github.com/isdmx/coderunner/mcpserver"
	"github.com/isdmx/coderunner/results"
	"github.com/isdmx/coderunner/sandbox"
)

// MockSandboxExecutor implements sandbox.SandboxExecutor for testing
type MockSandboxExecutor struct {
	result      sandbox.ExecutionResult
	err         error
	lastRequest sandbox.ExecutionRequest
	calls       int
}

func (m *MockSandboxExecutor) Execute(_ context.Context, req sandbox.ExecutionRequest) (sandbox.ExecutionResult, error) { //nolint:gocritic // Mock implementation requires full parameter signature
	m.calls++
	m.lastRequest = req
	return m.result, m.err
}

func (m *MockSandboxExecutor) Languages() []string {
	return []string{"cpp", "python"}
}

type testEnv struct {
	server  *Server
	exec    *MockSandboxExecutor
	limiter *admission.Limiter
	store   *results.MemoryStore
}

func newTestEnv(t *testing.T, logger *zap.Logger) *testEnv {
	t.Helper()
	if logger == nil {
		logger = zaptest.NewLogger(t)
	}
	cfg := &config.Config{
		Server: config.ServerConfig{
			Transport:      "http",
			HTTPPort:       8080,
			CORSOrigins:    []string{"http://localhost:5173"},
			BodyLimitBytes: 64 * 1024,
			MaxConcurrent:  1,
		},
		Sandbox: config.SandboxConfig{TimeoutSec: 5, MaxTimeoutSec: 30},
	}

	env := &testEnv{
		exec:    &MockSandboxExecutor{},
		limiter: admission.New(logger, 1, 0),
		store:   results.NewMemoryStore(10, time.Minute),
	}
	mcp, err := mcpserver.New(cfg, logger, env.exec, env.limiter)
	require.NoError(t, err)
	env.server = New(cfg, logger, env.exec, env.limiter, env.store, mcp)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := e.server.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]any
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &decoded), string(data))
	}
	return resp.StatusCode, decoded
}

func TestExecuteSuccess(t *testing.T) {
	env := newTestEnv(t, nil)
	env.exec.result = sandbox.ExecutionResult{
		ID:       "1-a",
		Success:  true,
		Status:   sandbox.StatusSuccess,
		Stdout:   "4\n",
		Duration: 35 * time.Millisecond,
	}

	status, body := env.do(t, http.MethodPost, "/code/execute", `{"code":"print(2+2)","language":"python"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "4\n", body["output"])
	assert.Equal(t, "", body["error"])
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "1-a", body["executionId"])
	assert.InDelta(t, 35, body["executionTime"], 0)

	assert.Equal(t, sandbox.ExecutionRequest{Code: "print(2+2)", Language: "python"}, env.exec.lastRequest)
	assert.Zero(t, env.limiter.InFlight(), "slot must be released")
}

func TestExecuteTimeoutParameter(t *testing.T) {
	env := newTestEnv(t, nil)
	env.exec.result = sandbox.ExecutionResult{Success: true, Status: sandbox.StatusSuccess}

	status, _ := env.do(t, http.MethodPost, "/code/execute", `{"code":"x","language":"python","timeout":1.5}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1500*time.Millisecond, env.exec.lastRequest.Timeout)
}

func TestExecuteHugeTimeoutIsCapped(t *testing.T) {
	env := newTestEnv(t, nil)
	env.exec.result = sandbox.ExecutionResult{Success: true, Status: sandbox.StatusSuccess}

	status, _ := env.do(t, http.MethodPost, "/code/execute", `{"code":"x","language":"python","timeout":1e12}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 30*time.Second, env.exec.lastRequest.Timeout)
}

func TestExecuteFailedExecution(t *testing.T) {
	env := newTestEnv(t, nil)
	env.exec.result = sandbox.ExecutionResult{
		ID:         "1-a",
		Status:     sandbox.StatusStepFailed,
		FailedStep: "compile",
		ExitCode:   1,
		Stderr:     "main.cpp:1:25: error: expected ';' before '}' token",
		Message:    "main.cpp:1:25: error: expected ';' before '}' token",
	}

	status, body := env.do(t, http.MethodPost, "/code/execute", `{"code":"int main(){return 0}","language":"cpp"}`)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "step_failed", body["status"])
	assert.Contains(t, body["error"], "expected ';'")
	assert.Contains(t, body["stderr"], "expected ';'")
}

func TestExecuteInfrastructureFailureHidesDetails(t *testing.T) {
	env := newTestEnv(t, nil)
	env.exec.result = sandbox.ExecutionResult{
		ID:       "1-a",
		Status:   sandbox.StatusSpawnFailed,
		Exit:     sandbox.ExitSpawnError,
		ExitCode: -1,
		Message:  sandbox.MessageExecutionFailed,
	}

	status, body := env.do(t, http.MethodPost, "/code/execute", `{"code":"x","language":"cpp"}`)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Execution failed", body["error"])
	assert.Equal(t, "spawn_failed", body["status"])
}

func TestExecuteBadRequests(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		errText string
	}{
		{"InvalidJSON", `{"code":`, "Invalid request body"},
		{"MissingCode", `{"language":"python"}`, "code is required"},
		{"BlankCode", `{"code":"   ","language":"python"}`, "code is required"},
		{"MissingLanguage", `{"code":"print(1)"}`, "language is required"},
		{"NegativeTimeout", `{"code":"x","language":"python","timeout":-1}`, "timeout must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			status, body := env.do(t, http.MethodPost, "/code/execute", tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, false, body["success"])
			assert.Contains(t, body["error"], tt.errText)
			assert.Equal(t, "", body["output"])
			assert.Zero(t, env.exec.calls)
		})
	}
}

func TestExecuteUnsupportedLanguage(t *testing.T) {
	env := newTestEnv(t, nil)
	env.exec.err = sandbox.ErrUnsupportedLanguage

	status, body := env.do(t, http.MethodPost, "/code/execute", `{"code":"x","language":"cobol"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "unsupported_language", body["status"])
	assert.Equal(t, "Unsupported language: cobol", body["error"])
	assert.Zero(t, env.limiter.InFlight())
}

func TestExecuteCapacityExhausted(t *testing.T) {
	env := newTestEnv(t, nil)
	release, err := env.limiter.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	status, body := env.do(t, http.MethodPost, "/code/execute", `{"code":"x","language":"python"}`)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, admission.MessageBusy, body["error"])
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "", body["output"])
	assert.Zero(t, env.exec.calls)
}

func TestExecuteBodyLimit(t *testing.T) {
	env := newTestEnv(t, nil)
	big := `{"code":"` + strings.Repeat("a", 128*1024) + `","language":"python"}`

	req := httptest.NewRequest(http.MethodPost, "/code/execute", strings.NewReader(big))
	req.Header.Set("Content-Type", "application/json")
	// fasthttp rejects the oversized body while reading the request, so the
	// in-memory test transport reports it as an error instead of a 413.
	_, err := env.server.App().Test(req, -1) //nolint:bodyclose // no response on error
	require.ErrorContains(t, err, "body size exceeds")
	assert.Zero(t, env.exec.calls)
	assert.Zero(t, env.limiter.InFlight())
}

func TestLanguages(t *testing.T) {
	env := newTestEnv(t, nil)
	status, body := env.do(t, http.MethodGet, "/code/languages", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{"cpp", "python"}, body["languages"])
}

func TestGetExecution(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, env.store.Put(context.Background(), "1-a", sandbox.Response{
		ExecutionID: "1-a",
		Success:     true,
		Status:      sandbox.StatusSuccess,
		Output:      "4\n",
	}))

	status, body := env.do(t, http.MethodGet, "/code/executions/1-a", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "4\n", body["output"])

	status, body = env.do(t, http.MethodGet, "/code/executions/unknown", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Execution not found", body["error"])
	assert.Equal(t, "", body["output"])
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	status, body := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "UP", body["status"])
	assert.InDelta(t, 1, body["capacity"], 0)
}

func TestRequestLogging(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	env := newTestEnv(t, zap.New(core))

	req := httptest.NewRequest(http.MethodGet, "/health", http.NoBody)
	resp, err := env.server.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/health", fields["path"])
	assert.Equal(t, int64(http.StatusOK), fields["status"])
	assert.NotEmpty(t, fields["request_id"])
	assert.Equal(t, resp.Header.Get("X-Request-ID"), fields["request_id"])
}

func TestPanicRecovery(t *testing.T) {
	env := newTestEnv(t, nil)
	env.server.App().Get("/panic", func(*fiber.Ctx) error { panic("boom") })

	status, body := env.do(t, http.MethodGet, "/panic", "")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Execution failed", body["error"])
	assert.Equal(t, "", body["output"])
}

func TestMCPEndpointMounted(t *testing.T) {
	env := newTestEnv(t, nil)

	initialize := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"test","version":"1.0"}}}`
	req := httptest.NewRequest(http.MethodPost, mcpserver.EndpointPath, strings.NewReader(initialize))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")

	resp, err := env.server.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"serverInfo"`)
	assert.Contains(t, string(data), `"coderunner"`)
}
