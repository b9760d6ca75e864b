package results

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/coderunner/config"
	"github.com/isdmx/coderunner/sandbox"
)

// ErrNotFound is returned for unknown or expired execution identifiers.
var ErrNotFound = errors.New("execution result not found")

// Store persists execution responses by execution identifier.
type Store interface {
	Put(ctx context.Context, id string, resp sandbox.Response) error
	Get(ctx context.Context, id string) (sandbox.Response, error)
	Close() error
}

// Backend names accepted in results.backend
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendNone   = "none"
)

// NewFromConfig creates the configured Store.
func NewFromConfig(logger *zap.Logger, cfg *config.Config) (Store, error) {
	ttl := time.Duration(cfg.Results.TTLSec) * time.Second

	switch cfg.Results.Backend {
	case BackendMemory:
		logger.Info("result history in memory",
			zap.Duration("ttl", ttl),
			zap.Int("max_entries", cfg.Results.MaxEntries))
		return NewMemoryStore(cfg.Results.MaxEntries, ttl), nil
	case BackendRedis:
		store := NewRedisStore(cfg.Results.RedisAddr, cfg.Results.RedisPassword, cfg.Results.RedisDB, ttl)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Results.RedisAddr, err)
		}
		logger.Info("result history in redis",
			zap.String("addr", cfg.Results.RedisAddr),
			zap.Int("db", cfg.Results.RedisDB),
			zap.Duration("ttl", ttl))
		return store, nil
	case BackendNone:
		logger.Info("result history disabled")
		return NoopStore{}, nil
	default:
		return nil, fmt.Errorf("unsupported results backend: %s", cfg.Results.Backend)
	}
}

// NoopStore discards everything.
type NoopStore struct{}

func (NoopStore) Put(context.Context, string, sandbox.Response) error { return nil }

func (NoopStore) Get(context.Context, string) (sandbox.Response, error) {
	return sandbox.Response{}, ErrNotFound
}

func (NoopStore) Close() error { return nil }
