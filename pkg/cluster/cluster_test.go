package cluster

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/cuemby/minicluster/pkg/events"
	"github.com/cuemby/minicluster/pkg/probe"
	"github.com/cuemby/minicluster/pkg/state"
	"github.com/cuemby/minicluster/pkg/types"
)

// TestMain doubles as the node binary: when CLUSTER_TEST_MODE is set the
// test executable plays a cluster node instead of running tests. Specs in
// this file point MasterBinary and WorkerBinary back at the test binary.
func TestMain(m *testing.M) {
	if os.Getenv("CLUSTER_TEST_MODE") != "" {
		runFakeNode()
		os.Exit(0)
	}
	os.Exit(m.Run())
}

// runFakeNode implements the node invocation contract: role flags first,
// --port last. The optional --fake-mode flag selects a misbehavior.
func runFakeNode() {
	port := ""
	mode := "serve"
	for _, arg := range os.Args[1:] {
		switch {
		case strings.HasPrefix(arg, "--port="):
			port = strings.TrimPrefix(arg, "--port=")
		case strings.HasPrefix(arg, "--fake-mode="):
			mode = strings.TrimPrefix(arg, "--fake-mode=")
		}
	}
	if port == "" {
		fmt.Fprintln(os.Stderr, "missing --port flag")
		os.Exit(2)
	}

	if mode == "nolisten" {
		fmt.Println("refusing to bind")
		select {}
	}
	if mode == "deaf" {
		signal.Ignore(syscall.SIGTERM)
	}

	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", port))
	if err != nil {
		fmt.Fprintf(os.Stderr, "listen: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("listening on %s\n", ln.Addr())

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	if mode == "deaf" {
		select {} // only SIGKILL ends this one
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM)
	<-sigCh
	ln.Close()
}

func testSpec(t *testing.T, masters, workers int) types.ClusterSpec {
	t.Helper()
	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("resolving test binary: %v", err)
	}
	return types.ClusterSpec{
		Masters:      masters,
		Workers:      workers,
		MasterBinary: exe,
		WorkerBinary: exe,
		ScratchDir:   filepath.Join(t.TempDir(), "scratch"),
		StartTimeout: 15 * time.Second,
		StopTimeout:  5 * time.Second,
		ExtraEnv:     map[string]string{"CLUSTER_TEST_MODE": "1"},
	}
}

func fastProber() *probe.Prober {
	return &probe.Prober{
		DialTimeout: time.Second,
		Interval:    25 * time.Millisecond,
	}
}

func mustBuild(t *testing.T, spec types.ClusterSpec, opts ...Option) *Cluster {
	t.Helper()
	opts = append([]Option{WithProber(fastProber())}, opts...)
	c, err := New(spec, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Build(context.Background()); err != nil {
		t.Fatalf("Build: %v", err)
	}
	return c
}

func checkOpen(t *testing.T, addr string) bool {
	t.Helper()
	return fastProber().CheckOpen(context.Background(), addr)
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("picking free port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func waitForEvent(t *testing.T, sub events.Subscriber, want events.EventType) *events.Event {
	t.Helper()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case ev := <-sub:
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %s event within 10s", want)
		}
	}
}

func TestBuildStartsAllNodes(t *testing.T) {
	c := mustBuild(t, testSpec(t, 1, 3))

	masters := c.MasterAddresses()
	workers := c.WorkerAddresses()
	if len(masters) != 1 || len(workers) != 3 {
		t.Fatalf("got %d masters and %d workers, want 1 and 3", len(masters), len(workers))
	}
	for _, addr := range append(append([]string{}, masters...), workers...) {
		if !checkOpen(t, addr) {
			t.Errorf("address %s not accepting connections after build", addr)
		}
	}

	snap := c.Snapshot()
	if len(snap) != 4 {
		t.Fatalf("snapshot has %d nodes, want 4", len(snap))
	}
	for _, st := range snap {
		if st.State != types.StateRunning {
			t.Errorf("node %s is %s, want running", st.Address, st.State)
		}
		if st.PID <= 0 {
			t.Errorf("node %s has PID %d", st.Address, st.PID)
		}
	}

	scratch := c.ScratchDir()
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	for _, addr := range append(append([]string{}, masters...), workers...) {
		if checkOpen(t, addr) {
			t.Errorf("address %s still open after close", addr)
		}
	}
	if _, err := os.Stat(scratch); !os.IsNotExist(err) {
		t.Errorf("scratch dir %s survived close", scratch)
	}
}

func TestBuildTwiceFails(t *testing.T) {
	c := mustBuild(t, testSpec(t, 1, 0))
	defer c.Close()

	if err := c.Build(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second Build returned %v, want ErrInvalidState", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	c := mustBuild(t, testSpec(t, 1, 0))

	if err := c.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestKillOnAddress(t *testing.T) {
	c := mustBuild(t, testSpec(t, 1, 1))
	defer c.Close()

	master := c.MasterAddresses()[0]
	worker := c.WorkerAddresses()[0]

	if err := c.KillOnAddress(context.Background(), master); err != nil {
		t.Fatalf("KillOnAddress: %v", err)
	}
	if checkOpen(t, master) {
		t.Error("master port still open after kill")
	}
	if !checkOpen(t, worker) {
		t.Error("worker port closed; kill must not touch siblings")
	}

	// Killing a stopped node is a no-op.
	if err := c.KillOnAddress(context.Background(), master); err != nil {
		t.Fatalf("second KillOnAddress: %v", err)
	}

	for _, st := range c.Snapshot() {
		want := types.StateRunning
		if st.Address == master {
			want = types.StateStopped
		}
		if st.State != want {
			t.Errorf("node %s is %s, want %s", st.Address, st.State, want)
		}
	}
}

func TestKillOnUnknownAddress(t *testing.T) {
	c := mustBuild(t, testSpec(t, 1, 0))
	defer c.Close()

	err := c.KillOnAddress(context.Background(), "127.0.0.1:1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestRestartDeadOnAddress(t *testing.T) {
	c := mustBuild(t, testSpec(t, 1, 0))
	defer c.Close()

	master := c.MasterAddresses()[0]

	// Restarting a running node is refused.
	if err := c.RestartDeadOnAddress(context.Background(), master); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("restart of running node returned %v, want ErrInvalidState", err)
	}

	if err := c.KillOnAddress(context.Background(), master); err != nil {
		t.Fatalf("KillOnAddress: %v", err)
	}
	if err := c.RestartDeadOnAddress(context.Background(), master); err != nil {
		t.Fatalf("RestartDeadOnAddress: %v", err)
	}

	if got := c.MasterAddresses()[0]; got != master {
		t.Fatalf("restart moved the node from %s to %s", master, got)
	}
	if !checkOpen(t, master) {
		t.Error("master port not open after restart")
	}

	snap := c.Snapshot()
	if snap[0].Restarts != 1 {
		t.Errorf("restart count = %d, want 1", snap[0].Restarts)
	}
	if snap[0].State != types.StateRunning {
		t.Errorf("restarted node is %s, want running", snap[0].State)
	}

	if err := c.RestartDeadOnAddress(context.Background(), "127.0.0.1:1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("restart of unknown address returned %v, want ErrNotFound", err)
	}
}

func TestRestartAfterCloseFails(t *testing.T) {
	c := mustBuild(t, testSpec(t, 1, 0))
	master := c.MasterAddresses()[0]

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.RestartDeadOnAddress(context.Background(), master); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("restart after close returned %v, want ErrInvalidState", err)
	}
}

func TestPauseAndResume(t *testing.T) {
	c := mustBuild(t, testSpec(t, 1, 0))
	defer c.Close()

	master := c.MasterAddresses()[0]

	if err := c.PauseOnAddress(master); err != nil {
		t.Fatalf("PauseOnAddress: %v", err)
	}
	if err := c.PauseOnAddress(master); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second pause returned %v, want ErrInvalidState", err)
	}
	// A paused process keeps its listener; the kernel completes the
	// handshake even though the node makes no progress.
	if !checkOpen(t, master) {
		t.Error("paused node's port closed; pause must not unbind")
	}
	if got := c.Snapshot()[0].State; got != types.StatePaused {
		t.Errorf("paused node is %s, want paused", got)
	}

	if err := c.ResumeOnAddress(master); err != nil {
		t.Fatalf("ResumeOnAddress: %v", err)
	}
	if err := c.ResumeOnAddress(master); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second resume returned %v, want ErrInvalidState", err)
	}
	if got := c.Snapshot()[0].State; got != types.StateRunning {
		t.Errorf("resumed node is %s, want running", got)
	}

	// Killing a paused node resumes it first so SIGTERM can be handled.
	if err := c.PauseOnAddress(master); err != nil {
		t.Fatalf("re-pause: %v", err)
	}
	if err := c.KillOnAddress(context.Background(), master); err != nil {
		t.Fatalf("kill of paused node: %v", err)
	}
	if checkOpen(t, master) {
		t.Error("port still open after killing paused node")
	}
}

func TestForcedKillEscalation(t *testing.T) {
	spec := testSpec(t, 1, 0)
	spec.ExtraMasterFlags = []string{"--fake-mode=deaf"}
	spec.StopTimeout = time.Second

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()

	c := mustBuild(t, spec, WithEventBroker(broker))
	defer c.Close()

	master := c.MasterAddresses()[0]
	if err := c.KillOnAddress(context.Background(), master); err != nil {
		t.Fatalf("KillOnAddress of SIGTERM-ignoring node: %v", err)
	}
	if checkOpen(t, master) {
		t.Error("port still open after forced kill")
	}
	if got := c.Snapshot()[0].State; got != types.StateStopped {
		t.Errorf("node is %s after forced kill, want stopped", got)
	}

	ev := waitForEvent(t, sub, events.EventForcedKill)
	if ev.Address != master {
		t.Errorf("forced-kill event for %s, want %s", ev.Address, master)
	}
}

func TestBuildFailureStopsSiblings(t *testing.T) {
	masterPort := freePort(t)

	spec := testSpec(t, 1, 1)
	spec.MasterPorts = []int{masterPort}
	spec.ExtraWorkerFlags = []string{"--fake-mode=nolisten"}
	spec.StartTimeout = 2 * time.Second

	c, err := New(spec, WithProber(fastProber()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = c.Build(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Build returned %v, want ErrTimeout", err)
	}

	masterAddr := net.JoinHostPort("127.0.0.1", strconv.Itoa(masterPort))
	if checkOpen(t, masterAddr) {
		t.Error("master still running after failed build; siblings must be torn down")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close after failed build: %v", err)
	}
}

func TestBuildMissingBinaryFailsFast(t *testing.T) {
	spec := testSpec(t, 1, 0)
	spec.MasterBinary = filepath.Join(t.TempDir(), "no-such-master")

	c, err := New(spec)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Build(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Build returned %v, want ErrNotFound", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestEmptyClusterIsValid(t *testing.T) {
	c := mustBuild(t, types.ClusterSpec{})
	if len(c.Snapshot()) != 0 {
		t.Errorf("empty spec produced %d nodes", len(c.Snapshot()))
	}
	if len(c.MasterAddresses()) != 0 || len(c.WorkerAddresses()) != 0 {
		t.Error("empty spec produced addresses")
	}
	if _, ok := c.MetadataAddress(); ok {
		t.Error("empty spec produced a metadata address")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestPinnedMasterPort(t *testing.T) {
	port := freePort(t)
	spec := testSpec(t, 1, 0)
	spec.MasterPorts = []int{port}

	c := mustBuild(t, spec)
	defer c.Close()

	want := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	if got := c.MasterAddresses()[0]; got != want {
		t.Fatalf("master on %s, want pinned %s", got, want)
	}
}

func TestMetadataService(t *testing.T) {
	// Neutralize any ambient installation so resolution goes through
	// BinDir.
	t.Setenv("JAVA_HOME", "")
	t.Setenv("METASERVE_HOME", "")

	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("resolving test binary: %v", err)
	}

	binDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(binDir, "java-home"), 0o755); err != nil {
		t.Fatal(err)
	}
	metaBin := filepath.Join(binDir, "metaserve-home", "bin")
	if err := os.MkdirAll(metaBin, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(exe, filepath.Join(metaBin, "metaserve")); err != nil {
		t.Fatal(err)
	}

	spec := testSpec(t, 1, 0)
	spec.EnableMetadata = true
	spec.BinDir = binDir

	c := mustBuild(t, spec)
	defer c.Close()

	addr, ok := c.MetadataAddress()
	if !ok {
		t.Fatal("no metadata address after build")
	}
	if !checkOpen(t, addr) {
		t.Errorf("metadata service %s not accepting connections", addr)
	}

	foundRole := false
	for _, st := range c.Snapshot() {
		if st.Role == types.NodeRoleMetadata {
			foundRole = true
		}
	}
	if !foundRole {
		t.Error("snapshot missing metadata node")
	}

	// The build also generates the service's config documents.
	site := filepath.Join(c.ScratchDir(), "metaserve-site.properties")
	if _, err := os.Stat(site); err != nil {
		t.Errorf("site document missing: %v", err)
	}
}

func TestLifecycleEvents(t *testing.T) {
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()

	c := mustBuild(t, testSpec(t, 1, 0), WithEventBroker(broker))
	master := c.MasterAddresses()[0]

	waitForEvent(t, sub, events.EventNodeStarted)
	waitForEvent(t, sub, events.EventClusterBuilt)

	if err := c.KillOnAddress(context.Background(), master); err != nil {
		t.Fatalf("KillOnAddress: %v", err)
	}
	waitForEvent(t, sub, events.EventNodeStopped)

	if err := c.RestartDeadOnAddress(context.Background(), master); err != nil {
		t.Fatalf("RestartDeadOnAddress: %v", err)
	}
	waitForEvent(t, sub, events.EventNodeRestarted)

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	waitForEvent(t, sub, events.EventClusterClosed)
}

func TestSetNodeAttribute(t *testing.T) {
	c := mustBuild(t, testSpec(t, 1, 0))
	defer c.Close()

	master := c.MasterAddresses()[0]
	if err := c.SetNodeAttribute(master, "build.version", "1.2.3"); err != nil {
		t.Fatalf("SetNodeAttribute: %v", err)
	}
	if got := c.Snapshot()[0].Attributes["build.version"]; got != "1.2.3" {
		t.Errorf("attribute = %q, want 1.2.3", got)
	}

	if err := c.SetNodeAttribute("127.0.0.1:1", "k", "v"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestLogsCaptured(t *testing.T) {
	c := mustBuild(t, testSpec(t, 1, 0))
	defer c.Close()

	master := c.MasterAddresses()[0]

	// Capture is asynchronous; give the pipe a moment.
	deadline := time.Now().Add(5 * time.Second)
	for {
		logs, err := c.Logs(master)
		if err != nil {
			t.Fatalf("Logs: %v", err)
		}
		if strings.Contains(logs, "listening on") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("node output never captured, have: %q", logs)
		}
		time.Sleep(50 * time.Millisecond)
	}

	if _, err := c.Logs("127.0.0.1:1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestRegistryRecordsNodes(t *testing.T) {
	reg, err := state.Open(filepath.Join(t.TempDir(), "registry.db"))
	if err != nil {
		t.Fatalf("opening registry: %v", err)
	}
	defer reg.Close()

	c := mustBuild(t, testSpec(t, 1, 1), WithRegistry(reg))

	records, err := reg.ListNodes()
	if err != nil {
		t.Fatalf("ListNodes: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("registry has %d records, want 2", len(records))
	}
	for _, rec := range records {
		if rec.ClusterID != c.ID() {
			t.Errorf("record for cluster %s, want %s", rec.ClusterID, c.ID())
		}
		if rec.PID <= 0 {
			t.Errorf("record for %s has PID %d", rec.Address, rec.PID)
		}
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	records, err = reg.ListNodes()
	if err != nil {
		t.Fatalf("ListNodes after close: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("registry still has %d records after close", len(records))
	}
}

func TestNewRejectsInvalidSpec(t *testing.T) {
	tests := []struct {
		name string
		spec types.ClusterSpec
	}{
		{
			name: "negative masters",
			spec: types.ClusterSpec{Masters: -1},
		},
		{
			name: "masters without binary",
			spec: types.ClusterSpec{Masters: 1},
		},
		{
			name: "port list length mismatch",
			spec: types.ClusterSpec{
				Masters:      2,
				MasterBinary: "/bin/true",
				MasterPorts:  []int{7051},
			},
		},
		{
			name: "duplicate pinned ports",
			spec: types.ClusterSpec{
				Masters:      1,
				Workers:      1,
				MasterBinary: "/bin/true",
				WorkerBinary: "/bin/true",
				MasterPorts:  []int{7051},
				WorkerPorts:  []int{7051},
			},
		},
		{
			name: "incomplete security config",
			spec: types.ClusterSpec{
				Security: &types.SecurityConfig{ServicePrincipal: "svc/host"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.spec); err == nil {
				t.Fatal("New accepted an invalid spec")
			}
		})
	}
}
