package cluster

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/minicluster/pkg/config"
	"github.com/cuemby/minicluster/pkg/events"
	"github.com/cuemby/minicluster/pkg/log"
	"github.com/cuemby/minicluster/pkg/metrics"
	"github.com/cuemby/minicluster/pkg/probe"
	"github.com/cuemby/minicluster/pkg/process"
	"github.com/cuemby/minicluster/pkg/state"
	"github.com/cuemby/minicluster/pkg/types"
)

// Locally-spawned nodes always listen on loopback.
const defaultHost = "127.0.0.1"

// Option customizes a cluster before Build.
type Option func(*Cluster)

// WithEventBroker attaches an externally-owned broker. The caller keeps
// responsibility for starting and stopping it.
func WithEventBroker(b *events.Broker) Option {
	return func(c *Cluster) { c.broker = b }
}

// WithRegistry persists every spawn into the given registry so a later
// reap can clean up if this process dies without closing the cluster.
func WithRegistry(r *state.Registry) Option {
	return func(c *Cluster) { c.registry = r }
}

// WithProber overrides probe timing, mainly for tests.
func WithProber(p *probe.Prober) Option {
	return func(c *Cluster) { c.prober = p }
}

// Cluster supervises one set of cooperating node processes. It is both
// the builder and the handle: New validates the spec, Build launches
// everything, and the lifecycle methods operate on nodes by their
// host:port address until Close tears the whole thing down.
//
// All operations are serialized; each blocks until its outcome (including
// readiness polling) is known.
type Cluster struct {
	spec types.ClusterSpec
	id   string

	prober    *probe.Prober
	broker    *events.Broker
	ownBroker bool
	registry  *state.Registry
	logger    zerolog.Logger

	mu      sync.Mutex
	scratch string
	nodes   []*node
	byAddr  map[string]*node
	built   bool
	closed  bool
}

// New validates the spec and prepares a cluster. Nothing is spawned until
// Build.
func New(spec types.ClusterSpec, opts ...Option) (*Cluster, error) {
	spec = spec.WithDefaults()
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cluster spec: %w", err)
	}

	c := &Cluster{
		spec:   spec,
		id:     "mc-" + uuid.New().String()[:8],
		prober: probe.New(),
		byAddr: make(map[string]*node),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.broker == nil {
		c.broker = events.NewBroker()
		c.broker.Start()
		c.ownBroker = true
	}
	c.logger = log.WithCluster(c.id)
	return c, nil
}

// ID returns the cluster's unique identifier.
func (c *Cluster) ID() string {
	return c.id
}

// ScratchDir returns the per-cluster scratch directory, empty before
// Build.
func (c *Cluster) ScratchDir() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scratch
}

// Build launches every node in the spec: masters in order, then workers,
// then the metadata service if enabled. It blocks until each node's port
// accepts connections or its start timeout expires. On any failure every
// already-started sibling is stopped before the error is returned — a
// handle is never left referencing a partially-failed cluster (Close is
// still required for scratch cleanup).
func (c *Cluster) Build(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("%w: cluster is closed", ErrInvalidState)
	}
	if c.built {
		return fmt.Errorf("%w: cluster already built", ErrInvalidState)
	}

	timer := metrics.NewTimer()
	c.logger.Info().
		Int("masters", c.spec.Masters).
		Int("workers", c.spec.Workers).
		Bool("metadata", c.spec.EnableMetadata).
		Bool("kerberos", c.spec.KerberosEnabled()).
		Msg("Building cluster")

	bins, err := c.resolveBinaries()
	if err != nil {
		return err
	}
	if err := c.prepareScratch(); err != nil {
		return err
	}

	gen := &config.Generator{
		ScratchDir:        c.scratch,
		EventLogRetention: c.spec.EventLogRetention,
		Security:          c.spec.Security,
	}
	if err := gen.WriteAll(); err != nil {
		return fmt.Errorf("generating config: %w", err)
	}

	// All master ports are reserved up front so every node can be told
	// the full peer list before the first master starts.
	reservations := make([]*reservation, 0, c.spec.Masters)
	defer func() {
		for _, r := range reservations {
			r.release()
		}
	}()
	masterAddrs := make([]string, 0, c.spec.Masters)
	for i := 0; i < c.spec.Masters; i++ {
		res, err := c.reserve(defaultHost, pinnedPort(c.spec.MasterPorts, i))
		if err != nil {
			c.stopAllLocked()
			return err
		}
		reservations = append(reservations, res)
		masterAddrs = append(masterAddrs, net.JoinHostPort(defaultHost, strconv.Itoa(res.port)))
	}

	for i := 0; i < c.spec.Masters; i++ {
		n := c.masterNode(i, bins.master, reservations[i].port, masterAddrs)
		if err := c.launch(ctx, n, reservations[i]); err != nil {
			c.stopAllLocked()
			return err
		}
	}

	for i := 0; i < c.spec.Workers; i++ {
		res, err := c.reserve(defaultHost, pinnedPort(c.spec.WorkerPorts, i))
		if err != nil {
			c.stopAllLocked()
			return err
		}
		n := c.workerNode(i, bins.worker, res.port, masterAddrs)
		if err := c.launch(ctx, n, res); err != nil {
			c.stopAllLocked()
			return err
		}
	}

	if c.spec.EnableMetadata {
		res, err := c.reserve(defaultHost, 0)
		if err != nil {
			c.stopAllLocked()
			return err
		}
		n := c.metadataNode(res.port, bins.metaHome, bins.javaHome)
		if err := c.launch(ctx, n, res); err != nil {
			c.stopAllLocked()
			return err
		}
	}

	c.built = true
	metrics.ClustersActive.Inc()
	timer.ObserveDuration(metrics.BuildDurationSeconds)
	c.broker.Publish(events.NewEvent(events.EventClusterBuilt, c.id, "", "",
		fmt.Sprintf("%d nodes up", len(c.nodes))))
	c.logger.Info().Int("nodes", len(c.nodes)).Str("scratch", c.scratch).Msg("Cluster built")
	return nil
}

// binaries holds everything resolved before the first spawn, so a missing
// binary fails the build before any process exists.
type binaries struct {
	master   string
	worker   string
	metaHome string
	javaHome string
}

func (c *Cluster) resolveBinaries() (binaries, error) {
	var bins binaries
	var err error

	if c.spec.Masters > 0 {
		if bins.master, err = config.ResolveBinary(c.spec.MasterBinary); err != nil {
			return bins, err
		}
	}
	if c.spec.Workers > 0 {
		if bins.worker, err = config.ResolveBinary(c.spec.WorkerBinary); err != nil {
			return bins, err
		}
	}
	if c.spec.EnableMetadata {
		if bins.javaHome, err = config.ResolveHomeDir("java", c.spec.BinDir); err != nil {
			return bins, err
		}
		if bins.metaHome, err = config.ResolveHomeDir("metaserve", c.spec.BinDir); err != nil {
			return bins, err
		}
		if _, err = config.ResolveBinary(filepath.Join(bins.metaHome, "bin", "metaserve")); err != nil {
			return bins, err
		}
	}
	return bins, nil
}

func (c *Cluster) prepareScratch() error {
	scratch := c.spec.ScratchDir
	if scratch == "" {
		scratch = filepath.Join(os.TempDir(), "minicluster-"+c.id)
	}
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return fmt.Errorf("creating scratch dir: %w", err)
	}
	c.scratch = scratch
	return nil
}

// reservation holds a port on the node's behalf between planning and
// spawn. Releasing just before exec leaves the smallest possible window
// for another process to steal the port.
type reservation struct {
	ln   net.Listener
	port int
}

func (r *reservation) release() {
	if r.ln != nil {
		r.ln.Close()
		r.ln = nil
	}
}

func (c *Cluster) reserve(host string, port int) (*reservation, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: reserving %s: %v", ErrLaunchFailure, addr, err)
	}
	return &reservation{ln: ln, port: ln.Addr().(*net.TCPAddr).Port}, nil
}

func pinnedPort(pinned []int, i int) int {
	if i < len(pinned) {
		return pinned[i]
	}
	return 0
}

func (c *Cluster) masterNode(idx int, binary string, port int, masters []string) *node {
	name := fmt.Sprintf("master-%d", idx)
	dir := filepath.Join(c.scratch, name)

	args := []string{"--data-dir=" + filepath.Join(dir, "data")}
	if len(masters) > 1 {
		args = append(args, "--master-addrs="+strings.Join(masters, ","))
	}
	args = append(args, c.spec.ExtraMasterFlags...)
	args = append(args, "--port="+strconv.Itoa(port))

	return &node{
		role:    types.NodeRoleMaster,
		host:    defaultHost,
		port:    port,
		binary:  binary,
		args:    args,
		env:     c.nodeEnv(dir),
		dir:     dir,
		logPath: filepath.Join(dir, name+".log"),
		state:   types.StateStopped,
		attrs:   make(map[string]string),
	}
}

func (c *Cluster) workerNode(idx int, binary string, port int, masters []string) *node {
	name := fmt.Sprintf("worker-%d", idx)
	dir := filepath.Join(c.scratch, name)

	args := []string{"--data-dir=" + filepath.Join(dir, "data")}
	if len(masters) > 0 {
		args = append(args, "--master-addrs="+strings.Join(masters, ","))
	}
	args = append(args, c.spec.ExtraWorkerFlags...)
	args = append(args, "--port="+strconv.Itoa(port))

	return &node{
		role:    types.NodeRoleWorker,
		host:    defaultHost,
		port:    port,
		binary:  binary,
		args:    args,
		env:     c.nodeEnv(dir),
		dir:     dir,
		logPath: filepath.Join(dir, name+".log"),
		state:   types.StateStopped,
		attrs:   make(map[string]string),
	}
}

func (c *Cluster) metadataNode(port int, metaHome, javaHome string) *node {
	name := "metadata-0"
	dir := filepath.Join(c.scratch, name)

	env := c.nodeEnv(dir)
	env["JAVA_HOME"] = javaHome
	env["METASERVE_HOME"] = metaHome
	env["METASERVE_CONF_DIR"] = c.scratch
	env["JAVA_TOOL_OPTIONS"] = config.RuntimeOptions(c.spec.Security)

	return &node{
		role:    types.NodeRoleMetadata,
		host:    defaultHost,
		port:    port,
		binary:  filepath.Join(metaHome, "bin", "metaserve"),
		args:    []string{"--service", "metastore", "-v", "--port=" + strconv.Itoa(port)},
		env:     env,
		dir:     dir,
		logPath: filepath.Join(dir, name+".log"),
		state:   types.StateStopped,
		attrs:   make(map[string]string),
	}
}

// nodeEnv builds a node's fully-specified environment: the parent's PATH,
// a private writable HOME, the security variables, and whatever the spec
// adds. Nothing else from the ambient environment leaks through.
func (c *Cluster) nodeEnv(home string) map[string]string {
	env := map[string]string{
		"PATH": os.Getenv("PATH"),
		"HOME": home,
	}
	for k, v := range config.SecurityEnv(c.spec.Security) {
		env[k] = v
	}
	for k, v := range c.spec.ExtraEnv {
		env[k] = v
	}
	return env
}

// launch releases the node's port reservation, spawns its process, and
// waits for the port to open. On readiness timeout the straggler is
// dumped and killed before the error is returned; the caller handles
// sibling teardown.
func (c *Cluster) launch(ctx context.Context, n *node, res *reservation) error {
	if err := os.MkdirAll(n.dir, 0o755); err != nil {
		return fmt.Errorf("creating node dir: %w", err)
	}

	res.release()
	n.ctl = n.newController()
	if err := n.ctl.Start(); err != nil {
		return fmt.Errorf("launching %s %s: %w", n.role, n.address(), err)
	}
	n.startedAt = time.Now()
	c.record(n)

	waitTimer := metrics.NewTimer()
	err := c.prober.WaitForState(ctx, n.address(), true, c.spec.StartTimeout)
	waitTimer.ObserveDurationVec(metrics.ReadinessWaitSeconds, "open")
	if err != nil {
		c.abortStartup(n)
		return fmt.Errorf("%s %s never became ready: %w", n.role, n.address(), err)
	}

	n.state = types.StateRunning
	c.nodes = append(c.nodes, n)
	c.byAddr[n.address()] = n
	metrics.NodeStartsTotal.WithLabelValues(string(n.role)).Inc()
	metrics.NodesTotal.WithLabelValues(string(n.role), string(types.StateRunning)).Inc()
	c.broker.Publish(events.NewEvent(events.EventNodeStarted, c.id, n.role, n.address(), ""))
	startLogger := log.WithNode(string(n.role), n.address())
	startLogger.Info().
		Int("pid", n.ctl.Pid()).
		Msg("Node started")
	return nil
}

// abortStartup handles a node that failed to become ready: ask for a
// diagnostic dump, give it a moment to flush, then kill it for good.
func (c *Cluster) abortStartup(n *node) {
	logger := log.WithNode(string(n.role), n.address())
	logger.Warn().Msg("Node failed to become ready, requesting diagnostic dump")

	if err := n.ctl.Signal(process.SignalQuit); err == nil {
		time.Sleep(time.Second)
	}
	if err := n.ctl.KillAndWait(process.SignalKill, c.spec.StopTimeout); err != nil {
		logger.Error().Err(err).Msg("Failed to kill unready node")
	}
	if tail := n.ctl.LogsTail(20); tail != "" {
		logger.Warn().Str("output", tail).Msg("Last output from unready node")
	}
	c.unrecord(n)
}

func (c *Cluster) record(n *node) {
	if c.registry == nil {
		return
	}
	pid := n.ctl.Pid()
	err := c.registry.RecordNode(&state.NodeRecord{
		ClusterID:         c.id,
		Role:              n.role,
		Address:           n.address(),
		PID:               pid,
		Binary:            n.binary,
		ScratchDir:        c.scratch,
		StartedAt:         n.startedAt,
		ProcessCreateTime: state.ProcessCreateTime(pid),
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("address", n.address()).Msg("Failed to record node in registry")
	}
}

func (c *Cluster) unrecord(n *node) {
	if c.registry == nil {
		return
	}
	if err := c.registry.RemoveNode(c.id, n.address()); err != nil {
		c.logger.Warn().Err(err).Str("address", n.address()).Msg("Failed to remove node from registry")
	}
}
