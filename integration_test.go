//go:build unix

package integration

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/coderunner/admission"
	"github.com/isdmx/coderunner/config"
	"github.com/isdmx/coderunner/httpapi"
	"github.com/isdmx/coderunner/logger"
	"github.com/isdmx/coderunner/mcpserver"
	"github.com/isdmx/coderunner/results"
	"github.com/isdmx/coderunner/sandbox"
)

const testConfig = `
server:
  transport: http
  http_port: 8080
  max_concurrent: 2
  queue_timeout_ms: 0
sandbox:
  scratch_root: %SCRATCH%
  timeout_sec: 2
  max_timeout_sec: 4
  output_limit_bytes: 4096
  kill_grace_ms: 200
logging:
  mode: development
  level: debug
results:
  backend: memory
  ttl_sec: 60
languages:
  shell:
    aliases: [sh]
    extension: .sh
    steps:
      - name: run
        program: sh
        args: ["{source}"]
        capture: true
`

func loadTestConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	dir := t.TempDir()
	scratch := filepath.Join(dir, "scratch")
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strings.ReplaceAll(testConfig, "%SCRATCH%", scratch)), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg, scratch
}

// newTestAPI wires the application the way cmd/server does, without fx.
func newTestAPI(t *testing.T, cfg *config.Config) *httpapi.Server {
	t.Helper()
	log := zaptest.NewLogger(t)

	engine, err := sandbox.NewEngineFromConfig(log, cfg)
	require.NoError(t, err)
	store, err := results.NewFromConfig(log, cfg)
	require.NoError(t, err)
	executor := results.NewRecorder(log, engine, store)
	limiter := admission.NewFromConfig(log, cfg)

	mcp, err := mcpserver.New(cfg, log, executor, limiter)
	require.NoError(t, err)
	return httpapi.New(cfg, log, executor, limiter, store, mcp)
}

func call(t *testing.T, api *httpapi.Server, method, path, body string) (int, sandbox.Response) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := api.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded sandbox.Response
	require.NoError(t, json.Unmarshal(data, &decoded), string(data))
	return resp.StatusCode, decoded
}

func assertScratchEmpty(t *testing.T, scratch string) {
	t.Helper()
	entries, err := os.ReadDir(scratch)
	if os.IsNotExist(err) {
		return
	}
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// TestIntegrationConfigLoggerSandbox tests the integration between config, logger, and sandbox packages
func TestIntegrationConfigLoggerSandbox(t *testing.T) {
	cfg, _ := loadTestConfig(t)

	testLogger, err := logger.NewFromConfig(cfg)
	require.NoError(t, err)
	testLogger.Info("Integration test started")
	_ = testLogger.Sync()

	engine, err := sandbox.NewEngineFromConfig(testLogger, cfg)
	require.NoError(t, err)
	assert.Contains(t, engine.Languages(), "shell")
	assert.Contains(t, engine.Languages(), sandbox.LanguagePython)
}

func TestIntegrationExecuteAndLookup(t *testing.T) {
	cfg, scratch := loadTestConfig(t)
	api := newTestAPI(t, cfg)

	status, resp := call(t, api, http.MethodPost, "/code/execute", `{"code":"echo $((2+2))","language":"sh"}`)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, resp.Success)
	assert.Equal(t, "4\n", resp.Output)
	assert.Equal(t, "", resp.Error)
	require.NotEmpty(t, resp.ExecutionID)
	assertScratchEmpty(t, scratch)

	status, stored := call(t, api, http.MethodGet, "/code/executions/"+resp.ExecutionID, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, resp, stored)
}

func TestIntegrationFailures(t *testing.T) {
	cfg, scratch := loadTestConfig(t)
	api := newTestAPI(t, cfg)

	t.Run("RuntimeError", func(t *testing.T) {
		status, resp := call(t, api, http.MethodPost, "/code/execute", `{"code":"echo oops >&2; exit 1","language":"shell"}`)
		assert.Equal(t, http.StatusInternalServerError, status)
		assert.False(t, resp.Success)
		assert.Equal(t, sandbox.StatusStepFailed, resp.Status)
		assert.Equal(t, "oops\n", resp.Error)
	})

	t.Run("Timeout", func(t *testing.T) {
		status, resp := call(t, api, http.MethodPost, "/code/execute", `{"code":"while :; do :; done","language":"shell"}`)
		assert.Equal(t, http.StatusInternalServerError, status)
		assert.Equal(t, sandbox.StatusTimedOut, resp.Status)
		assert.Equal(t, "Execution timed out after 2s", resp.Error)
	})

	t.Run("OutputCap", func(t *testing.T) {
		status, resp := call(t, api, http.MethodPost, "/code/execute", `{"code":"while :; do echo spam; done","language":"shell","timeout":1}`)
		assert.Equal(t, http.StatusInternalServerError, status)
		assert.Len(t, resp.Output, 4096)
		assert.True(t, resp.Truncated)
	})

	t.Run("UnsupportedLanguage", func(t *testing.T) {
		status, resp := call(t, api, http.MethodPost, "/code/execute", `{"code":"x","language":"cobol"}`)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, sandbox.StatusUnsupportedLanguage, resp.Status)
	})

	assertScratchEmpty(t, scratch)
}

func TestIntegrationPython(t *testing.T) {
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not installed")
	}
	cfg, scratch := loadTestConfig(t)
	api := newTestAPI(t, cfg)

	status, resp := call(t, api, http.MethodPost, "/code/execute", `{"code":"print(2+2)","language":"python"}`)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, resp.Success)
	assert.Equal(t, "4\n", resp.Output)
	assert.Equal(t, "", resp.Error)
	assertScratchEmpty(t, scratch)
}
