package cluster

import (
	"github.com/cuemby/minicluster/pkg/config"
	"github.com/cuemby/minicluster/pkg/probe"
	"github.com/cuemby/minicluster/pkg/process"
)

// The supervisor's error taxonomy. Each sentinel is an alias for the one
// defined by the package that first detects the condition, so errors.Is
// matches regardless of which layer produced the error.
var (
	// ErrNotFound: a required binary, home directory, or node address is
	// absent.
	ErrNotFound = config.ErrNotFound

	// ErrTimeout: a port did not reach the desired state within its
	// deadline.
	ErrTimeout = probe.ErrTimeout

	// ErrLaunchFailure: a node process could not be spawned.
	ErrLaunchFailure = process.ErrLaunchFailure

	// ErrInvalidState: the operation does not apply to the node's current
	// lifecycle state.
	ErrInvalidState = process.ErrInvalidState

	// ErrForcedKill: a graceful stop escalated to SIGKILL. Soft warning;
	// the process is gone.
	ErrForcedKill = process.ErrForcedKill

	// ErrUnsupported: the platform or signal cannot express the request.
	ErrUnsupported = process.ErrUnsupported
)
