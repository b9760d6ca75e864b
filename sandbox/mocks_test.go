package sandbox

import (
	"context"
	"os"
	"sync"
)

// MockCommandRunner implements CommandRunner for testing
type MockCommandRunner struct {
	mu       sync.Mutex
	commands []Command
	// results are returned in order; the last one repeats.
	results []CommandResult
	errors  map[string]error
}

func (m *MockCommandRunner) Run(_ context.Context, cmd Command) (CommandResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.commands = append(m.commands, cmd)
	if err, exists := m.errors[cmd.Program]; exists {
		return CommandResult{Exit: ExitSpawnError, ExitCode: -1}, err
	}
	if len(m.results) == 0 {
		return CommandResult{Exit: ExitNormal}, nil
	}
	res := m.results[0]
	if len(m.results) > 1 {
		m.results = m.results[1:]
	}
	return res, nil
}

func (m *MockCommandRunner) Commands() []Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Command(nil), m.commands...)
}

// recordingRunner records commands and delegates to a real runner
type recordingRunner struct {
	inner CommandRunner
	mu    sync.Mutex
	cmds  []Command
}

func (r *recordingRunner) Run(ctx context.Context, cmd Command) (CommandResult, error) {
	r.mu.Lock()
	r.cmds = append(r.cmds, cmd)
	r.mu.Unlock()
	return r.inner.Run(ctx, cmd)
}

func (r *recordingRunner) Commands() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Command(nil), r.cmds...)
}

// MockFileSystem wraps RealFileSystem and injects errors per operation
type MockFileSystem struct {
	RealFileSystem
	mkdirErrors     map[string]error
	writeFileErrors map[string]error
	removeErrors    map[string]error
	removeAllErrors map[string]error
	writeAnyError   error
}

func (m *MockFileSystem) Mkdir(path string, perm os.FileMode) error {
	if err, exists := m.mkdirErrors[path]; exists {
		return err
	}
	return m.RealFileSystem.Mkdir(path, perm)
}

func (m *MockFileSystem) WriteFile(filename string, data []byte, perm os.FileMode) error {
	if m.writeAnyError != nil {
		return m.writeAnyError
	}
	if err, exists := m.writeFileErrors[filename]; exists {
		return err
	}
	return m.RealFileSystem.WriteFile(filename, data, perm)
}

func (m *MockFileSystem) Remove(path string) error {
	if err, exists := m.removeErrors[path]; exists {
		return err
	}
	return m.RealFileSystem.Remove(path)
}

func (m *MockFileSystem) RemoveAll(path string) error {
	if err, exists := m.removeAllErrors[path]; exists {
		return err
	}
	return m.RealFileSystem.RemoveAll(path)
}
