/*
Package process wraps a single child OS process with signal-level lifecycle
control and output capture.

The cluster supervisor builds one Controller per node it launches. The
controller is deliberately single-shot: it runs exactly one invocation of a
binary, and a node restart constructs a fresh controller with identical
configuration. That keeps process identity unambiguous — a PID belongs to
exactly one controller for its whole life.

# Architecture

	┌──────────────────────────────────────────────────┐
	│                   Controller                     │
	│  Binary, Args, Env (complete), Dir, LogPath      │
	└────┬─────────────────┬───────────────────────────┘
	     │                 │
	     ▼                 ▼
	┌──────────┐   ┌────────────────────────────┐
	│ exec.Cmd │   │     capture goroutines      │
	│  child   │──▶│ stdout/stderr → LogBuffer   │
	│ process  │   │            └──→ rotated file│
	└────┬─────┘   └──────────┬─────────────────┘
	     │                    │
	     ▼                    ▼
	  reaper: readers drain → Wait() → done closed

## Lifecycle Flow

 1. NewController(binary), set Args/Env/Dir/LogPath
 2. Start() spawns the child and begins output capture
 3. Signal() delivers stop/continue/terminate/quit/kill
 4. KillAndWait() shuts down with SIGKILL escalation
 5. Wait() observes the exit status

# Core Components

## Controller

One child process, from spawn to reap:

	ctl := process.NewController("/opt/cluster/bin/master")
	ctl.Args = []string{"--port", "7051"}
	ctl.Env = map[string]string{"PATH": os.Getenv("PATH")}
	ctl.LogPath = "/tmp/scratch/master-0/master.log"

	if err := ctl.Start(); err != nil {
		// wraps ErrLaunchFailure: missing binary, bad permissions, ...
		return err
	}

The environment is fully specified: when Env is non-nil the child sees
exactly those variables and nothing else, serialized in sorted order so two
launches with the same map are byte-identical. Inherited environments make
test runs depend on whatever shell started them; node launches avoid that.

## Signals

Signals are named, not numbered:

	ctl.Signal(process.SignalStop)      // pause (SIGSTOP)
	ctl.Signal(process.SignalContinue)  // resume (SIGCONT)
	ctl.Signal(process.SignalQuit)      // diagnostic dump (SIGQUIT)

Unknown names are rejected with ErrUnsupported so callers cannot silently
deliver the wrong signal.

## KillAndWait

Shutdown with bounded patience:

	err := ctl.KillAndWait(process.SignalTerminate, 10*time.Second)
	if errors.Is(err, process.ErrForcedKill) {
		// the child ignored SIGTERM and was SIGKILLed; it is gone,
		// so most callers log this and move on
	}

The ForcedKill error is deliberately soft: by the time it is returned the
process is confirmed dead, so teardown paths treat it as a warning rather
than aborting.

## LogBuffer

Captured output is kept in memory with timestamps for assertions and
error reports:

	if err := ctl.WaitForLog("server listening", 30*time.Second); err != nil {
		return fmt.Errorf("node never came up: %s", ctl.Logs())
	}

When LogPath is set the same stream is mirrored to a size-rotated file
(50MB per file, 3 backups) so long-running clusters do not fill the
scratch directory.

# Design Patterns

## Reaper Ordering

Wait on an exec.Cmd closes its pipes, so the reaper goroutine first waits
for both capture goroutines to hit EOF and only then collects the exit
status. Exit and EOF arrive together when the child dies, making this
ordering deadlock-free.

## Sentinel Errors

All failure classes are exported sentinels (ErrLaunchFailure,
ErrInvalidState, ErrForcedKill, ErrUnsupported) matched with errors.Is,
never by message.

# See Also

  - pkg/cluster - Builds one controller per node and owns restart logic
  - pkg/probe - Confirms liveness at the port level, not the PID level
*/
package process
