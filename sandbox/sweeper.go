package sandbox

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sweeper removes workspace leftovers older than maxAge from the scratch
// root. Workspaces clean up after themselves; the sweeper only catches what a
// failed removal or a crashed process left behind.
type Sweeper struct {
	logger   *zap.Logger
	root     string
	fs       FileSystem
	interval time.Duration
	maxAge   time.Duration
	now      func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex
}

// NewSweeper creates a Sweeper. A zero interval disables the background loop.
func NewSweeper(logger *zap.Logger, root string, interval, maxAge time.Duration, fs FileSystem) *Sweeper {
	if fs == nil {
		fs = &RealFileSystem{}
	}
	return &Sweeper{
		logger:   logger,
		root:     filepath.Clean(root),
		fs:       fs,
		interval: interval,
		maxAge:   maxAge,
		now:      time.Now,
	}
}

// SweepOnce removes stale entries and returns how many were removed.
func (s *Sweeper) SweepOnce() (int, error) {
	entries, err := s.fs.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := s.now().Add(-s.maxAge)
	removed := 0
	for _, entry := range entries {
		info, infoErr := entry.Info()
		if infoErr != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(s.root, entry.Name())
		if rmErr := s.fs.RemoveAll(path); rmErr != nil {
			s.logger.Warn("failed to sweep stale workspace", zap.String("path", path), zap.Error(rmErr))
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.Info("swept stale workspaces", zap.Int("removed", removed), zap.String("root", s.root))
	}
	return removed, nil
}

// Start launches the background loop.
func (s *Sweeper) Start() {
	if s.interval <= 0 || s.maxAge <= 0 {
		s.logger.Info("workspace sweeper disabled")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.SweepOnce(); err != nil {
					s.logger.Warn("workspace sweep failed", zap.Error(err))
				}
			}
		}
	}()
}

// Stop ends the background loop and waits for it to exit.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
