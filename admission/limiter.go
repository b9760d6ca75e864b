package admission

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/isdmx/coderunner/config"
)

// ErrCapacityExhausted is returned when no slot frees up within the queue timeout.
var ErrCapacityExhausted = errors.New("execution capacity exhausted")

// MessageBusy is the client facing reply to ErrCapacityExhausted.
const MessageBusy = "Server is busy, try again later"

// Limiter admits at most a fixed number of concurrent executions.
type Limiter struct {
	logger       *zap.Logger
	sem          *semaphore.Weighted
	slots        int64
	queueTimeout time.Duration
	inFlight     atomic.Int64
}

// New creates a Limiter with slots concurrent executions. A zero queueTimeout
// rejects immediately when all slots are busy.
func New(logger *zap.Logger, slots int, queueTimeout time.Duration) *Limiter {
	if slots <= 0 {
		slots = 1
	}
	return &Limiter{
		logger:       logger,
		sem:          semaphore.NewWeighted(int64(slots)),
		slots:        int64(slots),
		queueTimeout: queueTimeout,
	}
}

// NewFromConfig creates a Limiter from the server configuration
func NewFromConfig(logger *zap.Logger, cfg *config.Config) *Limiter {
	return New(logger, cfg.Server.MaxConcurrent, cfg.GetQueueTimeout())
}

// Acquire blocks until a slot is free, the queue timeout passes or ctx is
// done. The returned release func must be called exactly once.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	if !l.sem.TryAcquire(1) {
		if l.queueTimeout <= 0 {
			return nil, l.rejected(ctx)
		}

		waitCtx, cancel := context.WithTimeout(ctx, l.queueTimeout)
		defer cancel()
		if err := l.sem.Acquire(waitCtx, 1); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, l.rejected(ctx)
		}
	}

	l.inFlight.Add(1)
	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			l.inFlight.Add(-1)
			l.sem.Release(1)
		}
	}, nil
}

// InFlight returns the number of executions holding a slot.
func (l *Limiter) InFlight() int64 {
	return l.inFlight.Load()
}

// Capacity returns the total number of slots.
func (l *Limiter) Capacity() int64 {
	return l.slots
}

func (l *Limiter) rejected(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	l.logger.Warn("execution rejected, no free slot",
		zap.Int64("capacity", l.slots),
		zap.Duration("queue_timeout", l.queueTimeout))
	return ErrCapacityExhausted
}
