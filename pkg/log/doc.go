/*
Package log provides structured logging for minicluster using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper functions
for common logging patterns. Orchestrator logs are kept separate from the
captured stdout/stderr of supervised node processes (see pkg/process).

# Usage

Initializing the Logger:

	import "github.com/cuemby/minicluster/pkg/log"

	// JSON output (CI)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
	})

	// Console output (interactive runs)
	log.Init(log.Config{
		Level:  log.DebugLevel,
		Output: os.Stderr,
	})

Simple Logging:

	log.Info("cluster built")
	log.Warn("graceful stop escalated to kill")

Structured Logging:

	log.Logger.Info().
		Str("address", addr).
		Dur("elapsed", elapsed).
		Msg("node listening")

Component Loggers:

	supLog := log.WithComponent("supervisor")
	supLog.Info().Int("masters", 3).Int("workers", 2).Msg("building cluster")

	nodeLog := log.WithNode("master", "127.0.0.1:7051")
	nodeLog.Debug().Msg("waiting for port")

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance
  - Initialized once at startup (or by TestMain in tests)
  - Accessible from all packages without passing

Context Logger Pattern:
  - Create child loggers with context fields (component, cluster_id,
    role/address) so every line from a code path carries its origin

# Integration Points

This package integrates with:

  - pkg/cluster: Logs lifecycle operations per node
  - pkg/process: Logs spawn/signal/reap events
  - pkg/state: Logs registry and reaper activity
  - cmd/minicluster: Initializes the logger from CLI flags
*/
package log
