package cluster

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cuemby/minicluster/pkg/events"
	"github.com/cuemby/minicluster/pkg/log"
	"github.com/cuemby/minicluster/pkg/metrics"
	"github.com/cuemby/minicluster/pkg/process"
	"github.com/cuemby/minicluster/pkg/types"
)

// KillOnAddress gracefully stops the node listening at addr (SIGTERM,
// escalating to SIGKILL after the stop timeout) and confirms its port
// closed. Killing an already-stopped node is a no-op, so tests may call
// this repeatedly without state bookkeeping. Sibling nodes are never
// affected.
func (c *Cluster) KillOnAddress(ctx context.Context, addr string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.lookup(addr)
	if err != nil {
		return err
	}
	if n.state == types.StateStopped {
		return nil
	}

	// A paused process cannot handle SIGTERM until it is continued.
	if n.state == types.StatePaused {
		if err := n.ctl.Signal(process.SignalContinue); err != nil {
			logger := log.WithNode(string(n.role), addr)
			logger.Warn().Err(err).Msg("Failed to resume paused node before stop")
		}
	}

	return c.stopNode(ctx, n)
}

// stopNode performs the graceful-stop protocol for one node and records
// the transition. Caller holds the lock.
func (c *Cluster) stopNode(ctx context.Context, n *node) error {
	logger := log.WithNode(string(n.role), n.address())

	err := n.ctl.KillAndWait(process.SignalTerminate, c.spec.StopTimeout)
	if errors.Is(err, ErrForcedKill) {
		logger.Warn().Err(err).Msg("Graceful stop escalated to SIGKILL")
		metrics.ForcedKillsTotal.Inc()
		c.broker.Publish(events.NewEvent(events.EventForcedKill, c.id, n.role, n.address(), err.Error()))
		err = nil
	}
	if err != nil {
		return fmt.Errorf("stopping %s: %w", n.address(), err)
	}

	// The process is reaped, but socket teardown is not instantaneous
	// relative to process exit; confirm the listener is actually gone.
	waitTimer := metrics.NewTimer()
	err = c.prober.WaitForState(ctx, n.address(), false, c.spec.StopTimeout)
	waitTimer.ObserveDurationVec(metrics.ReadinessWaitSeconds, "closed")
	if err != nil {
		return fmt.Errorf("%s stopped but port never closed: %w", n.address(), err)
	}

	c.setState(n, types.StateStopped)
	metrics.NodeStopsTotal.WithLabelValues(string(n.role)).Inc()
	c.unrecord(n)
	c.broker.Publish(events.NewEvent(events.EventNodeStopped, c.id, n.role, n.address(), ""))
	logger.Info().Msg("Node stopped")
	return nil
}

// RestartDeadOnAddress revives a stopped node on its original address:
// identical binary, argv, environment, and port. Fails with
// ErrInvalidState if the node is still running or paused. Readiness
// follows the same policy as Build, but a restart failure never touches
// sibling nodes; the node is simply left stopped.
func (c *Cluster) RestartDeadOnAddress(ctx context.Context, addr string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("%w: cluster is closed", ErrInvalidState)
	}
	n, err := c.lookup(addr)
	if err != nil {
		return err
	}
	if n.state != types.StateStopped {
		return fmt.Errorf("%w: node %s is %s, restart requires stopped", ErrInvalidState, addr, n.state)
	}

	// Reserve the original port to prove it is free, then hand it back
	// to the child.
	res, err := c.reserve(n.host, n.port)
	if err != nil {
		return fmt.Errorf("address %s not rebindable: %w", addr, err)
	}
	res.release()

	n.ctl = n.newController()
	if err := n.ctl.Start(); err != nil {
		return fmt.Errorf("relaunching %s %s: %w", n.role, addr, err)
	}
	n.startedAt = time.Now()
	c.record(n)

	waitTimer := metrics.NewTimer()
	err = c.prober.WaitForState(ctx, addr, true, c.spec.StartTimeout)
	waitTimer.ObserveDurationVec(metrics.ReadinessWaitSeconds, "open")
	if err != nil {
		c.abortStartup(n)
		return fmt.Errorf("%s %s never became ready after restart: %w", n.role, addr, err)
	}

	c.setState(n, types.StateRunning)
	n.restarts++
	metrics.NodeStartsTotal.WithLabelValues(string(n.role)).Inc()
	metrics.NodeRestartsTotal.WithLabelValues(string(n.role)).Inc()
	c.broker.Publish(events.NewEvent(events.EventNodeRestarted, c.id, n.role, addr, ""))
	restartLogger := log.WithNode(string(n.role), addr)
	restartLogger.Info().
		Int("pid", n.ctl.Pid()).
		Int("restarts", n.restarts).
		Msg("Node restarted")
	return nil
}

// PauseOnAddress suspends the node's process with SIGSTOP, simulating a
// hung node. The port stays bound and the OS resources stay alive. Fails
// with ErrInvalidState unless the node is running.
func (c *Cluster) PauseOnAddress(addr string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.lookup(addr)
	if err != nil {
		return err
	}
	if n.state != types.StateRunning {
		return fmt.Errorf("%w: node %s is %s, pause requires running", ErrInvalidState, addr, n.state)
	}

	if err := n.ctl.Signal(process.SignalStop); err != nil {
		return fmt.Errorf("pausing %s: %w", addr, err)
	}

	c.setState(n, types.StatePaused)
	c.broker.Publish(events.NewEvent(events.EventNodePaused, c.id, n.role, addr, ""))
	pauseLogger := log.WithNode(string(n.role), addr)
	pauseLogger.Info().Msg("Node paused")
	return nil
}

// ResumeOnAddress continues a paused node with SIGCONT. Fails with
// ErrInvalidState unless the node is paused.
func (c *Cluster) ResumeOnAddress(addr string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.lookup(addr)
	if err != nil {
		return err
	}
	if n.state != types.StatePaused {
		return fmt.Errorf("%w: node %s is %s, resume requires paused", ErrInvalidState, addr, n.state)
	}

	if err := n.ctl.Signal(process.SignalContinue); err != nil {
		return fmt.Errorf("resuming %s: %w", addr, err)
	}

	c.setState(n, types.StateRunning)
	c.broker.Publish(events.NewEvent(events.EventNodeResumed, c.id, n.role, addr, ""))
	resumeLogger := log.WithNode(string(n.role), addr)
	resumeLogger.Info().Msg("Node resumed")
	return nil
}

// Close stops every node still running or paused, removes registry
// records, and deletes the scratch directory unless the spec keeps it.
// Teardown is best-effort: per-node failures are collected and reported
// together, and a single stubborn process never prevents cleanup of the
// rest. A second Close is a no-op.
func (c *Cluster) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.logger.Info().Int("nodes", len(c.nodes)).Msg("Closing cluster")

	errs := c.stopAllLocked()

	if c.registry != nil {
		if err := c.registry.RemoveCluster(c.id); err != nil {
			errs = append(errs, fmt.Errorf("clearing registry: %w", err))
		}
	}
	if c.scratch != "" && !c.spec.KeepScratchOnClose {
		if err := os.RemoveAll(c.scratch); err != nil {
			errs = append(errs, fmt.Errorf("removing scratch dir: %w", err))
		}
	}

	// The handle dissolves; its nodes no longer count toward the gauges.
	for _, n := range c.nodes {
		metrics.NodesTotal.WithLabelValues(string(n.role), string(n.state)).Dec()
	}
	if c.built {
		metrics.ClustersActive.Dec()
	}

	c.broker.Publish(events.NewEvent(events.EventClusterClosed, c.id, "", "", ""))
	if c.ownBroker {
		c.broker.Stop()
	}
	return errors.Join(errs...)
}

// stopAllLocked stops every live node in reverse spawn order, tolerating
// individual failures. Caller holds the lock.
func (c *Cluster) stopAllLocked() []error {
	var errs []error
	for i := len(c.nodes) - 1; i >= 0; i-- {
		n := c.nodes[i]
		if n.state == types.StateStopped {
			continue
		}
		logger := log.WithNode(string(n.role), n.address())

		if n.state == types.StatePaused {
			if err := n.ctl.Signal(process.SignalContinue); err != nil {
				logger.Warn().Err(err).Msg("Failed to resume paused node before stop")
			}
		}

		err := n.ctl.KillAndWait(process.SignalTerminate, c.spec.StopTimeout)
		if errors.Is(err, ErrForcedKill) {
			logger.Warn().Err(err).Msg("Graceful stop escalated to SIGKILL")
			metrics.ForcedKillsTotal.Inc()
			err = nil
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("stopping %s: %w", n.address(), err))
			continue
		}

		c.setState(n, types.StateStopped)
		metrics.NodeStopsTotal.WithLabelValues(string(n.role)).Inc()
		c.unrecord(n)
		c.broker.Publish(events.NewEvent(events.EventNodeStopped, c.id, n.role, n.address(), ""))
	}
	return errs
}

// Snapshot returns a read-only view of every node for debug and status
// tooling: role, address, lifecycle state, and, for live nodes, process
// stats plus any service-reported attributes.
func (c *Cluster) Snapshot() []types.NodeStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]types.NodeStatus, 0, len(c.nodes))
	for _, n := range c.nodes {
		out = append(out, n.status())
	}
	return out
}

// SetNodeAttribute attaches a service-reported status field to a node.
// The supervisor does not interpret it; it simply appears in Snapshot.
func (c *Cluster) SetNodeAttribute(addr, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.lookup(addr)
	if err != nil {
		return err
	}
	n.attrs[key] = value
	return nil
}

// Logs returns the captured output of the node at addr.
func (c *Cluster) Logs(addr string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.lookup(addr)
	if err != nil {
		return "", err
	}
	if n.ctl == nil {
		return "", nil
	}
	return n.ctl.Logs(), nil
}

// MasterAddresses returns the master addresses in spawn order.
func (c *Cluster) MasterAddresses() []string {
	return c.addressesByRole(types.NodeRoleMaster)
}

// WorkerAddresses returns the worker addresses in spawn order.
func (c *Cluster) WorkerAddresses() []string {
	return c.addressesByRole(types.NodeRoleWorker)
}

// MetadataAddress returns the metadata service address, if one was
// spawned.
func (c *Cluster) MetadataAddress() (string, bool) {
	addrs := c.addressesByRole(types.NodeRoleMetadata)
	if len(addrs) == 0 {
		return "", false
	}
	return addrs[0], true
}

func (c *Cluster) addressesByRole(role types.NodeRole) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var addrs []string
	for _, n := range c.nodes {
		if n.role == role {
			addrs = append(addrs, n.address())
		}
	}
	return addrs
}

func (c *Cluster) lookup(addr string) (*node, error) {
	n, ok := c.byAddr[addr]
	if !ok {
		return nil, fmt.Errorf("%w: no node at address %s", ErrNotFound, addr)
	}
	return n, nil
}

// setState transitions a node between lifecycle states and keeps the
// per-state gauges consistent. Caller holds the lock.
func (c *Cluster) setState(n *node, next types.LifecycleState) {
	if n.state == next {
		return
	}
	metrics.NodesTotal.WithLabelValues(string(n.role), string(n.state)).Dec()
	metrics.NodesTotal.WithLabelValues(string(n.role), string(next)).Inc()
	n.state = next
}
