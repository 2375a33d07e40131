package cluster

import (
	"net"
	"strconv"
	"time"

	gops "github.com/shirou/gopsutil/process"

	"github.com/cuemby/minicluster/pkg/process"
	"github.com/cuemby/minicluster/pkg/types"
)

// node is one supervised process. The port is chosen at first spawn and
// never changes: a restart rebinds the same address, so test code can hold
// an address across a kill/restart cycle. The argv and environment are
// likewise computed once and reused verbatim on restart.
type node struct {
	role types.NodeRole
	host string
	port int

	binary  string
	args    []string
	env     map[string]string
	dir     string
	logPath string

	state     types.LifecycleState
	ctl       *process.Controller
	startedAt time.Time
	restarts  int
	attrs     map[string]string
}

func (n *node) address() string {
	return net.JoinHostPort(n.host, strconv.Itoa(n.port))
}

// newController builds a fresh controller carrying the node's recorded
// launch configuration.
func (n *node) newController() *process.Controller {
	ctl := process.NewController(n.binary)
	ctl.Args = n.args
	ctl.Env = n.env
	ctl.Dir = n.dir
	ctl.LogPath = n.logPath
	return ctl
}

// status projects the node into its read-only snapshot form, sampling
// process stats for nodes that still have a live process.
func (n *node) status() types.NodeStatus {
	st := types.NodeStatus{
		Role:     n.role,
		Address:  n.address(),
		State:    n.state,
		Restarts: n.restarts,
	}
	if len(n.attrs) > 0 {
		st.Attributes = make(map[string]string, len(n.attrs))
		for k, v := range n.attrs {
			st.Attributes[k] = v
		}
	}
	if n.state == types.StateStopped || n.ctl == nil {
		return st
	}

	st.PID = n.ctl.Pid()
	st.StartedAt = n.startedAt

	if proc, err := gops.NewProcess(int32(st.PID)); err == nil {
		if mem, err := proc.MemoryInfo(); err == nil {
			st.RSSBytes = mem.RSS
		}
		if cpu, err := proc.CPUPercent(); err == nil {
			st.CPUPercent = cpu
		}
	}
	return st
}
