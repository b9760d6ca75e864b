package sandbox

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Engine implements SandboxExecutor by running recipe steps as local child
// processes inside per-request workspaces.
type Engine struct {
	logger      *zap.Logger
	registry    *Registry
	workspaces  *WorkspaceManager
	cmdRunner   CommandRunner
	timeout     time.Duration
	maxTimeout  time.Duration
	outputLimit int
}

// Config holds execution limits of the engine
type Config struct {
	Timeout     time.Duration
	MaxTimeout  time.Duration
	OutputLimit int
	KillGrace   time.Duration
}

// DefaultTimeout bounds a request when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// EngineOption defines a functional option for Engine
type EngineOption func(*Engine)

// WithCommandRunner sets the CommandRunner for Engine
func WithCommandRunner(cmdRunner CommandRunner) EngineOption {
	return func(e *Engine) {
		e.cmdRunner = cmdRunner
	}
}

// NewEngine creates an Engine with a ProcessRunner unless overridden.
func NewEngine(logger *zap.Logger, config Config, registry *Registry, workspaces *WorkspaceManager, opts ...EngineOption) *Engine {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.MaxTimeout < config.Timeout {
		config.MaxTimeout = config.Timeout
	}
	if config.OutputLimit <= 0 {
		config.OutputLimit = DefaultOutputLimit
	}

	engine := &Engine{
		logger:      logger,
		registry:    registry,
		workspaces:  workspaces,
		cmdRunner:   NewProcessRunner(config.KillGrace),
		timeout:     config.Timeout,
		maxTimeout:  config.MaxTimeout,
		outputLimit: config.OutputLimit,
	}

	for _, opt := range opts {
		opt(engine)
	}

	return engine
}

// Languages lists the identifiers the engine accepts.
func (e *Engine) Languages() []string {
	return e.registry.Languages()
}

// Execute stages req.Code into a fresh workspace and runs the recipe of
// req.Language under a single deadline shared by all steps. The workspace is
// removed before Execute returns on every path.
//
//nolint:gocritic // request is passed by value like the rest of the API
func (e *Engine) Execute(ctx context.Context, req ExecutionRequest) (ExecutionResult, error) {
	if err := req.Validate(); err != nil {
		return ExecutionResult{}, err
	}

	spec, err := e.registry.Resolve(req.Language)
	if err != nil {
		return ExecutionResult{}, err
	}

	timeout := e.effectiveTimeout(req.Timeout)
	o := outcome{language: spec.ID, timeout: timeout}

	ws, err := e.workspaces.Open()
	if err != nil {
		e.logger.Error("failed to open workspace", zap.String("language", spec.ID), zap.Error(err))
		o.stageErr = err
		return assemble(o), nil
	}
	defer ws.Close()

	o.id = ws.ID()
	log := e.logger.With(zap.String("workspace", ws.ID()), zap.String("language", spec.ID))

	var sourcePath string
	if spec.SourceFile != "" {
		sourcePath, err = ws.StageAs(req.Code, spec.SourceFile)
	} else {
		sourcePath, err = ws.Stage(req.Code, spec.Extension)
	}
	if err != nil {
		log.Error("failed to stage source", zap.Error(err))
		o.stageErr = err
		return assemble(o), nil
	}

	vars := templateVars{
		Source:     sourcePath,
		SourceName: ws.FileName(spec.Extension),
		Binary:     ws.Path(SourcePrefix + ws.ID()),
		Workdir:    ws.Dir(),
		ID:         ws.ID(),
	}
	if spec.SourceFile != "" {
		vars.SourceName = spec.SourceFile
	}
	// Registered up front so a kill in the middle of a build still removes
	// whatever the compiler managed to write.
	for _, artifact := range spec.Artifacts {
		ws.TrackArtifact(vars.expand(artifact))
	}

	env := make([]string, 0, len(spec.Env))
	for key, value := range spec.Env {
		env = append(env, key+"="+vars.expand(value))
	}

	deadlineCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.Debug("execution started", zap.Duration("timeout", timeout), zap.Int("steps", len(spec.Steps)))

	start := time.Now()
	o.steps = make([]stepOutcome, 0, len(spec.Steps))
	for _, step := range spec.Steps {
		cmd := Command{
			Program:     vars.expand(step.Program),
			Args:        vars.expandArgs(step.Args),
			Dir:         ws.Dir(),
			Env:         env,
			OutputLimit: e.outputLimit,
		}

		res, runErr := e.cmdRunner.Run(deadlineCtx, cmd)
		if runErr != nil {
			log.Error("failed to spawn step",
				zap.String("step", step.Name),
				zap.String("program", cmd.Program),
				zap.Error(runErr))
			o.spawnErr = runErr
			o.spawnStep = step.Name
			break
		}

		o.steps = append(o.steps, stepOutcome{step: step, result: res})
		if res.Exit == ExitTimeout {
			break
		}
		if res.Failed() && !step.ContinueOnFailure {
			break
		}
	}
	o.duration = time.Since(start)

	result := assemble(o)
	log.Info("execution finished",
		zap.String("status", string(result.Status)),
		zap.String("exit", string(result.Exit)),
		zap.Int("exit_code", result.ExitCode),
		zap.String("failed_step", result.FailedStep),
		zap.Duration("duration", result.Duration),
		zap.Int("stdout_len", len(result.Stdout)),
		zap.Int("stderr_len", len(result.Stderr)),
		zap.Bool("truncated", result.Truncated))

	return result, nil
}

func (e *Engine) effectiveTimeout(requested time.Duration) time.Duration {
	switch {
	case requested <= 0:
		return e.timeout
	case requested > e.maxTimeout:
		return e.maxTimeout
	default:
		return requested
	}
}

