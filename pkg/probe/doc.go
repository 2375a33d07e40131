/*
Package probe provides TCP port readiness detection for cluster nodes.

This package answers one question in both directions: is a node's service
port accepting connections? The same polling primitive drives startup
detection (wait for a port to open) and shutdown detection (wait for a port
to close), so the cluster supervisor never guesses at process state from
timers alone.

# Architecture

	┌─────────────────────────────────────────────┐
	│              Cluster Supervisor             │
	└──────────────────┬──────────────────────────┘
	                   │
	                   ▼
	┌─────────────────────────────────────────────┐
	│                  Prober                     │
	│  • CheckOpen(ctx, addr) bool                │
	│  • WaitForState(ctx, addr, open, deadline)  │
	└──────────┬──────────────────┬───────────────┘
	           │                  │
	           ▼                  ▼
	    TCP dial attempt    DeadlineTracker
	    (bounded timeout)   (elapsed vs. budget)

## Probe Flow

 1. Supervisor starts a node process
 2. Prober dials the node's advertised port
 3. Connection accepted → port open → node considered up
 4. Connection refused/timed out → port closed → retry after interval
 5. Deadline elapsed without a match → ErrTimeout

# Core Components

## Prober

A connection classifier with fixed timing:

	type Prober struct {
		DialTimeout time.Duration // bounds one attempt (default: 1s)
		Interval    time.Duration // delay between attempts (default: 200ms)
	}

A successful dial is immediately closed; the probe never writes to the
connection. Services that log accepted-then-dropped connections will see
one per probe cycle.

## DeadlineTracker

A small value type that measures elapsed time against a budget:

	tracker := probe.NewDeadlineTracker()
	...
	if tracker.Expired(60 * time.Second) {
		// give up
	}

The clock is injectable (NewDeadlineTrackerWithClock) so timeout logic can
be tested without sleeping.

# Usage Examples

## Wait for a Node to Come Up

	p := probe.New()

	ctx := context.Background()
	if err := p.WaitForState(ctx, "127.0.0.1:7051", true, 60*time.Second); err != nil {
		// wraps probe.ErrTimeout if the port never opened
		return fmt.Errorf("master did not start: %w", err)
	}

## Wait for a Node to Go Down

	// After sending SIGKILL, confirm the port actually closed.
	if err := p.WaitForState(ctx, addr, false, 10*time.Second); err != nil {
		return err
	}

## One-Shot Classification

	if p.CheckOpen(ctx, addr) {
		fmt.Println("node is accepting connections")
	}

# Design Patterns

## Poll-Then-Sleep Loop

WaitForState checks immediately and then once per interval:

	check → match? → return nil
	      → expired? → ErrTimeout
	      → sleep interval → check again

The immediate first check makes already-satisfied waits return without
delay, which matters when restarting a node whose port never closed.

## Sentinel Errors

Timeout failures wrap ErrTimeout so callers can classify with errors.Is
without parsing messages:

	if errors.Is(err, probe.ErrTimeout) {
		// node never reached the desired state
	}

# See Also

  - pkg/cluster - Drives probes during build, kill, and restart
  - pkg/process - Supplies the processes whose ports are probed
*/
package probe
