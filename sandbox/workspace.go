package sandbox

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SourcePrefix starts every generated file name.
const SourcePrefix = "code_"

// WorkspaceManager allocates per-request scratch directories under a shared
// root. Requests never share a directory, so no locking is needed.
type WorkspaceManager struct {
	logger *zap.Logger
	root   string
	fs     FileSystem
	newID  func() string
}

// WorkspaceOption defines a functional option for WorkspaceManager
type WorkspaceOption func(*WorkspaceManager)

// WithFileSystem sets the FileSystem for WorkspaceManager
func WithFileSystem(fs FileSystem) WorkspaceOption {
	return func(m *WorkspaceManager) {
		m.fs = fs
	}
}

// WithIDGenerator replaces the workspace identifier source
func WithIDGenerator(gen func() string) WorkspaceOption {
	return func(m *WorkspaceManager) {
		m.newID = gen
	}
}

// NewWorkspaceManager creates a manager rooted at root.
func NewWorkspaceManager(logger *zap.Logger, root string, opts ...WorkspaceOption) *WorkspaceManager {
	m := &WorkspaceManager{
		logger: logger,
		root:   filepath.Clean(root),
		fs:     &RealFileSystem{},
		newID:  NewWorkspaceID,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// NewWorkspaceID combines a millisecond timestamp with a random UUID.
func NewWorkspaceID() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10) + "-" + uuid.NewString()
}

// Root returns the scratch root directory.
func (m *WorkspaceManager) Root() string {
	return m.root
}

// Open creates a new exclusively owned workspace directory.
func (m *WorkspaceManager) Open() (*Workspace, error) {
	if err := m.fs.MkdirAll(m.root, DirPermission); err != nil {
		return nil, fmt.Errorf("failed to create scratch root: %w", err)
	}

	id := m.newID()
	dir := filepath.Join(m.root, id)
	// Mkdir, not MkdirAll: an existing directory belongs to someone else.
	if err := m.fs.Mkdir(dir, DirPermission); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	return &Workspace{
		id:     id,
		dir:    dir,
		fs:     m.fs,
		logger: m.logger.With(zap.String("workspace", id)),
	}, nil
}

// Workspace is a scratch directory owned by exactly one request. Every path
// it creates or is told about is removed by Close.
type Workspace struct {
	id     string
	dir    string
	fs     FileSystem
	logger *zap.Logger

	mu        sync.Mutex
	tracked   []string
	closeOnce sync.Once
}

// ID returns the collision-resistant workspace identifier.
func (w *Workspace) ID() string {
	return w.id
}

// Dir returns the workspace directory.
func (w *Workspace) Dir() string {
	return w.dir
}

// FileName returns the generated file name for the given extension.
func (w *Workspace) FileName(extension string) string {
	return SourcePrefix + w.id + extension
}

// Path returns the absolute path of name inside the workspace.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// Stage writes source to a generated file with the given extension.
func (w *Workspace) Stage(source, extension string) (string, error) {
	return w.StageAs(source, w.FileName(extension))
}

// StageAs writes source to fileName inside the workspace.
func (w *Workspace) StageAs(source, fileName string) (string, error) {
	if fileName == "" || filepath.Base(fileName) != fileName || fileName == ".." {
		return "", fmt.Errorf("invalid source file name %q", fileName)
	}

	path := w.Path(fileName)
	// Track before writing so a partial file is removed too.
	w.TrackArtifact(path)
	if err := w.fs.WriteFile(path, []byte(source), FilePermission); err != nil {
		return "", fmt.Errorf("failed to write source file: %w", err)
	}
	return path, nil
}

// TrackArtifact registers a generated path for removal on Close.
func (w *Workspace) TrackArtifact(path string) {
	if !w.contains(path) {
		w.logger.Warn("refusing to track path outside workspace", zap.String("path", path))
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.tracked = append(w.tracked, filepath.Clean(path))
}

// Tracked returns a copy of the tracked paths.
func (w *Workspace) Tracked() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.tracked...)
}

// Close removes every tracked path and the directory itself. Failures are
// logged and never returned so they cannot mask an execution result.
func (w *Workspace) Close() {
	w.closeOnce.Do(func() {
		for _, path := range w.Tracked() {
			if err := w.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				w.logger.Warn("failed to remove workspace artifact", zap.String("path", path), zap.Error(err))
			}
		}
		// Catches files the recipe did not declare (inner classes, core dumps).
		if err := w.fs.RemoveAll(w.dir); err != nil {
			w.logger.Warn("failed to remove workspace directory", zap.String("path", w.dir), zap.Error(err))
		}
	})
}

func (w *Workspace) contains(path string) bool {
	rel, err := filepath.Rel(w.dir, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
