/*
Package cluster stands up and supervises disposable multi-process test
clusters: N masters, M workers, and optionally one metadata service, each
a real OS process listening on a real loopback port.

The package exists for integration tests that need to do rude things to a
running cluster — kill a master mid-write, pause a worker to simulate a
hang, restart a node on its original address — and then tear everything
down without leaking processes, ports, or scratch directories.

# Architecture

	                         ┌─────────────────────────┐
	                         │         Cluster         │
	                         │  New → Build → ops →    │
	                         │         Close           │
	                         └──────┬───────┬──────────┘
	            byAddr lookup       │       │ spawn order
	                 ┌──────────────┘       └──────────────┐
	                 ▼                                      ▼
	        ┌─────────────────┐                   ┌──────────────────┐
	        │ node (master-0) │ ... per process   │ config.Generator │
	        │ role, host:port │                   │ site + identity  │
	        │ argv, env, dir  │                   │    documents     │
	        └────┬────────────┘                   └──────────────────┘
	             │ one per launch
	             ▼
	   ┌──────────────────────┐     ┌───────────────┐    ┌──────────────┐
	   │ process.Controller   │     │ probe.Prober  │    │ state.       │
	   │ spawn/signal/reap    │     │ port open/    │    │ Registry     │
	   │ + log capture        │     │ closed waits  │    │ crash ledger │
	   └──────────────────────┘     └───────────────┘    └──────────────┘

## Build Flow

 1. Resolve every binary and home directory up front; a missing worker
    binary fails the build before the first master ever spawns.
 2. Create the scratch directory and generate the config documents.
 3. Reserve all master ports, so each master can be told the full peer
    list on its command line.
 4. Launch masters, then workers, then the metadata service. Each
    reservation is released immediately before its spawn, and the child
    is passed the reserved port with a trailing --port flag.
 5. Wait for each node's port to accept connections before starting the
    next. A node that never becomes ready is sent SIGQUIT for a
    diagnostic dump, then killed, then every already-running sibling is
    stopped — Build never returns a half-alive cluster.

## Teardown Flow

Close stops nodes in reverse spawn order with the graceful protocol
(SIGTERM, SIGKILL after the stop timeout), clears the crash-ledger
records, and removes the scratch directory. Failures are collected with
errors.Join rather than aborting, so one stubborn process cannot leak
its siblings. Close is idempotent.

# Core Components

## Cluster

Builder and handle in one. New validates, Build spawns:

	spec := types.ClusterSpec{
		Masters:      1,
		Workers:      3,
		MasterBinary: "/opt/cluster/bin/master",
		WorkerBinary: "/opt/cluster/bin/worker",
	}
	c, err := cluster.New(spec)
	if err != nil {
		return err
	}
	if err := c.Build(ctx); err != nil {
		return err
	}
	defer c.Close()

## Lifecycle Operations

Every operation addresses a node by its host:port string, the same
address a client of the cluster would dial:

	master := c.MasterAddresses()[0]

	c.KillOnAddress(ctx, master)        // graceful stop, port confirmed closed
	c.RestartDeadOnAddress(ctx, master) // same binary, argv, env, and port
	c.PauseOnAddress(master)            // SIGSTOP: port stays bound, node hangs
	c.ResumeOnAddress(master)           // SIGCONT

Operations are strict about state: restarting a running node or pausing
a stopped one fails with ErrInvalidState instead of guessing. The one
exception is killing an already-stopped node, which is a no-op so tests
can converge on "down" without bookkeeping. Unknown addresses fail with
ErrNotFound.

## Snapshot

Snapshot projects a read-only view for debug tooling — role, address,
state, PID, restart count, RSS and CPU for live processes — without
exposing any process handles:

	for _, st := range c.Snapshot() {
		fmt.Printf("%-8s %-21s %s\n", st.Role, st.Address, st.State)
	}

# Usage Examples

## Surviving a Master Failure

	c, _ := cluster.New(spec)
	if err := c.Build(ctx); err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	master := c.MasterAddresses()[0]
	if err := c.KillOnAddress(ctx, master); err != nil {
		t.Fatal(err)
	}
	// ... assert client behavior against the dead master ...
	if err := c.RestartDeadOnAddress(ctx, master); err != nil {
		t.Fatal(err)
	}
	// The node is back on the exact same address; clients reconnect
	// without re-resolving anything.

## Observing Lifecycle Events

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()

	c, _ := cluster.New(spec, cluster.WithEventBroker(broker))

# Design Patterns

## Reserve, Release, Re-request

Ports come from the kernel: a short-lived listener on port 0 yields a
free port, the listener is closed immediately before the spawn, and the
child is told to bind that exact port. The window between release and
bind is small, and a stolen port surfaces as a readiness failure rather
than silent misbehavior.

## Addresses As Identity

Nodes are addressed by host:port string for their whole life, including
across restarts. PIDs change on restart; addresses do not, and they are
what test clients actually hold.

## Serialized Operations

All operations share one mutex and block until their outcome is known.
Disruption tests want a strict happens-before order between "I killed
the master" and "the client observed the failure"; concurrency here
would buy nothing but races.

## Sentinel Taxonomy

The package re-exports the sentinel errors of its subsystems (see
errors.go) so callers match failure classes with errors.Is against one
package, regardless of which layer produced the error.

# See Also

  - pkg/process - Single-process lifecycle and output capture
  - pkg/probe - TCP readiness and shutdown confirmation
  - pkg/config - Generated site and identity documents
  - pkg/state - Crash ledger for reaping leaked processes
  - pkg/events - Lifecycle event fan-out
*/
package cluster
