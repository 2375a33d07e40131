package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultGraceTimeout is how long KillAndWait waits for a signalled process
// to exit before escalating to SIGKILL.
const DefaultGraceTimeout = 10 * time.Second

// Signal names a POSIX signal the controller can deliver to its process.
type Signal string

const (
	SignalStop      Signal = "stop"      // SIGSTOP, pauses the process
	SignalContinue  Signal = "continue"  // SIGCONT, resumes a paused process
	SignalTerminate Signal = "terminate" // SIGTERM, polite shutdown request
	SignalQuit      Signal = "quit"      // SIGQUIT, requests a diagnostic dump
	SignalKill      Signal = "kill"      // SIGKILL, immediate termination
)

func (s Signal) unix() (syscall.Signal, error) {
	switch s {
	case SignalStop:
		return syscall.SIGSTOP, nil
	case SignalContinue:
		return syscall.SIGCONT, nil
	case SignalTerminate:
		return syscall.SIGTERM, nil
	case SignalQuit:
		return syscall.SIGQUIT, nil
	case SignalKill:
		return syscall.SIGKILL, nil
	}
	return 0, fmt.Errorf("%w: signal %q", ErrUnsupported, string(s))
}

// NewController creates a controller for a single invocation of the given
// binary. A controller runs exactly one process; restarting means building
// a fresh controller with the same configuration.
func NewController(binary string) *Controller {
	return &Controller{
		Binary: binary,
		logs:   &LogBuffer{},
	}
}

// Controller manages one child process with output capture and lifecycle
// control. Configure the exported fields before calling Start; they must
// not be modified afterwards.
type Controller struct {
	Binary string
	Args   []string

	// Env is the complete environment for the child. When non-nil the
	// child sees exactly these variables, serialized in sorted order so
	// repeated launches are byte-identical. A nil map inherits the parent
	// environment.
	Env map[string]string

	// Dir is the working directory for the child. Empty means inherit.
	Dir string

	// LogPath, when set, mirrors captured output to a size-rotated file.
	LogPath string

	mu      sync.Mutex
	cmd     *exec.Cmd
	logs    *LogBuffer
	rotator *lumberjack.Logger
	done    chan struct{}
	waitErr error
}

// Start spawns the process and begins capturing its output. Launch
// problems are reported wrapping ErrLaunchFailure; starting twice is an
// ErrInvalidState.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cmd != nil {
		return fmt.Errorf("%w: process already started with PID %d", ErrInvalidState, c.cmd.Process.Pid)
	}

	cmd := exec.Command(c.Binary, c.Args...)
	cmd.Dir = c.Dir
	if c.Env != nil {
		cmd.Env = flattenEnv(c.Env)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("%w: creating stdout pipe: %v", ErrLaunchFailure, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("%w: creating stderr pipe: %v", ErrLaunchFailure, err)
	}

	if c.LogPath != "" {
		c.rotator = &lumberjack.Logger{
			Filename:   c.LogPath,
			MaxSize:    50, // megabytes
			MaxBackups: 3,
			MaxAge:     7, // days
		}
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: starting %s: %v", ErrLaunchFailure, c.Binary, err)
	}

	c.cmd = cmd
	c.done = make(chan struct{})

	var readers sync.WaitGroup
	readers.Add(2)
	go c.capture("stdout", stdout, &readers)
	go c.capture("stderr", stderr, &readers)
	go c.reap(&readers)

	return nil
}

// Signal delivers the given signal to the running process.
func (c *Controller) Signal(sig Signal) error {
	unixSig, err := sig.unix()
	if err != nil {
		return err
	}

	c.mu.Lock()
	cmd := c.cmd
	c.mu.Unlock()

	if cmd == nil {
		return fmt.Errorf("%w: process not started", ErrInvalidState)
	}

	if err := cmd.Process.Signal(unixSig); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("%w: process %d already finished", ErrInvalidState, cmd.Process.Pid)
		}
		return fmt.Errorf("sending %s to PID %d: %w", sig, cmd.Process.Pid, err)
	}
	return nil
}

// KillAndWait delivers the given signal and waits up to grace for the
// process to exit. If it is still running after the grace period it is
// killed with SIGKILL; that path returns an error wrapping ErrForcedKill
// once the process is confirmed gone, which callers may treat as a
// warning. A process that already exited yields nil.
func (c *Controller) KillAndWait(sig Signal, grace time.Duration) error {
	c.mu.Lock()
	cmd, done := c.cmd, c.done
	c.mu.Unlock()

	if cmd == nil {
		return fmt.Errorf("%w: process not started", ErrInvalidState)
	}
	if grace <= 0 {
		grace = DefaultGraceTimeout
	}

	if err := c.Signal(sig); err != nil {
		if errors.Is(err, ErrInvalidState) {
			// Already exited, nothing left to do.
			return nil
		}
		return err
	}

	select {
	case <-done:
		return nil
	case <-time.After(grace):
	}

	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("killing PID %d: %w", cmd.Process.Pid, err)
	}
	<-done
	return fmt.Errorf("%w: PID %d ignored %s for %v", ErrForcedKill, cmd.Process.Pid, sig, grace)
}

// Wait blocks until the process exits and returns its exit error, nil for
// a clean exit. Safe to call from multiple goroutines.
func (c *Controller) Wait() error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	if done == nil {
		return fmt.Errorf("%w: process not started", ErrInvalidState)
	}
	<-done
	return c.waitErr
}

// Alive reports whether the process has started and not yet exited.
func (c *Controller) Alive() bool {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Pid returns the process ID, or zero before Start.
func (c *Controller) Pid() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cmd == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

// Logs returns all captured output as a single string.
func (c *Controller) Logs() string {
	return c.logs.String()
}

// LogsSince returns output captured after the given timestamp.
func (c *Controller) LogsSince(since time.Time) string {
	return c.logs.Since(since)
}

// LogsTail returns the last n captured lines.
func (c *Controller) LogsTail(n int) string {
	return c.logs.Tail(n)
}

// WaitForLog polls until the captured output contains the pattern or the
// timeout elapses.
func (c *Controller) WaitForLog(pattern string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if c.logs.Contains(pattern) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timeout waiting for log pattern: %s", pattern)
		}
		<-ticker.C
	}
}

func (c *Controller) capture(stream string, reader io.Reader, readers *sync.WaitGroup) {
	defer readers.Done()

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		c.logs.Append(line)
		if c.rotator != nil {
			fmt.Fprintf(c.rotator, "[%s] %s\n", stream, line)
		}
	}
}

// reap waits for the output readers to drain, then collects the exit
// status. Reading must finish first because Wait closes the pipes.
func (c *Controller) reap(readers *sync.WaitGroup) {
	readers.Wait()
	err := c.cmd.Wait()

	c.mu.Lock()
	c.waitErr = err
	if c.rotator != nil {
		c.rotator.Close()
	}
	close(c.done)
	c.mu.Unlock()
}

// flattenEnv serializes an environment map as KEY=VALUE pairs in sorted
// key order.
func flattenEnv(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}
