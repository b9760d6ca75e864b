package sandbox

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/isdmx/coderunner/config"
)

// NewEngineFromConfig builds the registry, workspace manager and engine from
// the application configuration.
func NewEngineFromConfig(logger *zap.Logger, cfg *config.Config) (*Engine, error) {
	registry, err := NewRegistryFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	workspaces := NewWorkspaceManager(logger, cfg.Sandbox.ScratchRoot)
	engine := NewEngine(logger, Config{
		Timeout:     cfg.GetTimeout(),
		MaxTimeout:  cfg.GetMaxTimeout(),
		OutputLimit: cfg.Sandbox.OutputLimitBytes,
		KillGrace:   cfg.GetKillGrace(),
	}, registry, workspaces)

	logger.Info("execution engine configured",
		zap.String("sandbox.scratch_root", workspaces.Root()),
		zap.Duration("sandbox.timeout", cfg.GetTimeout()),
		zap.Duration("sandbox.max_timeout", cfg.GetMaxTimeout()),
		zap.Int("sandbox.output_limit_bytes", cfg.Sandbox.OutputLimitBytes),
		zap.Strings("languages", registry.Languages()))

	return engine, nil
}

// NewRegistryFromConfig overlays configured recipes on DefaultLanguages.
func NewRegistryFromConfig(cfg *config.Config) (*Registry, error) {
	ids := make([]string, 0, len(cfg.Languages))
	for id := range cfg.Languages {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	overrides := make([]LanguageSpec, 0, len(ids))
	for _, id := range ids {
		overrides = append(overrides, SpecFromConfig(id, cfg.Languages[id]))
	}

	registry, err := NewRegistry(MergeLanguages(DefaultLanguages(), overrides...)...)
	if err != nil {
		return nil, fmt.Errorf("invalid language table: %w", err)
	}
	return registry, nil
}

// SpecFromConfig converts a configured recipe.
func SpecFromConfig(id string, lang config.Language) LanguageSpec {
	steps := make([]Step, len(lang.Steps))
	for i, s := range lang.Steps {
		steps[i] = Step{
			Name:              s.Name,
			Program:           s.Program,
			Args:              append([]string(nil), s.Args...),
			ContinueOnFailure: s.ContinueOnFailure,
			Capture:           s.Capture,
		}
		if steps[i].Name == "" {
			steps[i].Name = fmt.Sprintf("step%d", i+1)
		}
	}

	return LanguageSpec{
		ID:         id,
		Aliases:    append([]string(nil), lang.Aliases...),
		Extension:  lang.Extension,
		SourceFile: lang.SourceFile,
		Steps:      steps,
		Artifacts:  append([]string(nil), lang.Artifacts...),
		Env:        lang.Env(),
	}
}

// NewSweeperFromConfig creates the scratch root sweeper.
func NewSweeperFromConfig(logger *zap.Logger, cfg *config.Config) *Sweeper {
	return NewSweeper(logger, cfg.Sandbox.ScratchRoot, cfg.GetSweepInterval(), cfg.GetSweepMaxAge(), &RealFileSystem{})
}
