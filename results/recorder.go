package results

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/coderunner/sandbox"
)

// storeTimeout bounds a single history write.
const storeTimeout = 2 * time.Second

// Recorder is a SandboxExecutor that stores every identified result.
type Recorder struct {
	logger *zap.Logger
	next   sandbox.SandboxExecutor
	store  Store
}

// NewRecorder wraps next so that its results are written to store.
func NewRecorder(logger *zap.Logger, next sandbox.SandboxExecutor, store Store) *Recorder {
	return &Recorder{logger: logger, next: next, store: store}
}

//nolint:gocritic // request is passed by value like the rest of the API
func (r *Recorder) Execute(ctx context.Context, req sandbox.ExecutionRequest) (sandbox.ExecutionResult, error) {
	res, err := r.next.Execute(ctx, req)
	if err != nil || res.ID == "" {
		return res, err
	}

	// The caller may be gone already; the record is still useful.
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()
	if putErr := r.store.Put(storeCtx, res.ID, res.Response()); putErr != nil {
		r.logger.Warn("failed to record execution result",
			zap.String("execution_id", res.ID),
			zap.Error(putErr))
	}
	return res, nil
}

func (r *Recorder) Languages() []string {
	return r.next.Languages()
}
