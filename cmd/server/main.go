package main

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/isdmx/coderunner/admission"
	"github.com/isdmx/coderunner/config"
	"github.com/isdmx/coderunner/httpapi"
	"github.com/isdmx/coderunner/logger"
	"github.com/isdmx/coderunner/mcpserver"
	"github.com/isdmx/coderunner/results"
	"github.com/isdmx/coderunner/sandbox"
)

func main() {
	app := fx.New(
		// Provide dependencies
		fx.Provide(
			// Config
			config.New,

			// Logger with configuration
			logger.NewFromConfig,

			// Execution engine and result history
			sandbox.NewEngineFromConfig,
			results.NewFromConfig,
			newExecutor,

			// Admission limiter shared by both transports
			admission.NewFromConfig,

			// Transports
			mcpserver.New,
			httpapi.New,
		),

		// Start the appropriate transport based on config
		fx.Invoke(
			registerSweeper,
			registerTransport,
		),

		// Use the application logger for fx logs
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	// Start the application
	app.Run()
}

// newExecutor records every engine result in the result store.
func newExecutor(lc fx.Lifecycle, log *zap.Logger, engine *sandbox.Engine, store results.Store) sandbox.SandboxExecutor {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return store.Close()
		},
	})
	return results.NewRecorder(log, engine, store)
}

func registerSweeper(lc fx.Lifecycle, log *zap.Logger, cfg *config.Config) {
	sweeper := sandbox.NewSweeperFromConfig(log, cfg)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			// Leftovers of a previous run are swept at startup.
			if _, err := sweeper.SweepOnce(); err != nil {
				log.Warn("initial workspace sweep failed", zap.Error(err))
			}
			sweeper.Start()
			return nil
		},
		OnStop: func(context.Context) error {
			sweeper.Stop()
			return nil
		},
	})
}

func registerTransport(lc fx.Lifecycle, shutdowner fx.Shutdowner, log *zap.Logger, cfg *config.Config,
	mcp *mcpserver.MCPServer, api *httpapi.Server,
) {
	switch cfg.Server.Transport {
	case "stdio":
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go func() {
					defer close(done)
					if err := mcp.ServeStdio(ctx); err != nil {
						log.Error("stdio server failed", zap.Error(err))
					}
					// The client closed stdin; nothing left to serve.
					_ = shutdowner.Shutdown()
				}()
				return nil
			},
			OnStop: func(stopCtx context.Context) error {
				cancel()
				select {
				case <-done:
				case <-stopCtx.Done():
				}
				return nil
			},
		})
	case "http":
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				return api.Start()
			},
			OnStop: func(ctx context.Context) error {
				return api.Shutdown(ctx)
			},
		})
	default:
		panic("unsupported transport: " + cfg.Server.Transport)
	}
}
