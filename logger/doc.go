// Package logger builds the zap logger shared by every component.
//
// Entries are written to stderr in both modes: stdout is reserved for the
// MCP stdio transport. Production mode emits JSON with ISO8601 timestamps
// and millisecond durations; development mode emits colored console lines.
//
//	log, err := logger.NewFromConfig(cfg)
//	if err != nil {
//	    return err
//	}
//	log.Info("execution finished", zap.String("execution_id", id))
package logger
