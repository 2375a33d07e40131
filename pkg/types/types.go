package types

import (
	"fmt"
	"time"
)

// Defaults applied by ClusterSpec.WithDefaults.
const (
	// DefaultStartTimeout bounds how long a node may take to open its port.
	DefaultStartTimeout = 60 * time.Second

	// DefaultStopTimeout bounds a graceful stop before escalating to a kill.
	DefaultStopTimeout = 10 * time.Second

	// DefaultEventLogRetention is written into the generated site document
	// as the metadata service's event-log time-to-live.
	DefaultEventLogRetention = 24 * time.Hour
)

// NodeRole defines the role of a supervised node
type NodeRole string

const (
	NodeRoleMaster   NodeRole = "master"
	NodeRoleWorker   NodeRole = "worker"
	NodeRoleMetadata NodeRole = "metadata"
)

// LifecycleState represents the current state of a supervised node
type LifecycleState string

const (
	StateStopped LifecycleState = "stopped"
	StateRunning LifecycleState = "running"
	StatePaused  LifecycleState = "paused"
)

// ProtectionLevel names the wire-protection level written into generated
// config when security is enabled
type ProtectionLevel string

const (
	ProtectionAuthentication ProtectionLevel = "authentication"
	ProtectionIntegrity      ProtectionLevel = "integrity"
	ProtectionPrivacy        ProtectionLevel = "privacy"
)

// SecurityConfig carries the credentials a secured node runs under.
// Once a cluster is built with it, it is immutable for the cluster's lifetime.
type SecurityConfig struct {
	// CredentialCachePath is the Kerberos configuration/credential-cache
	// path exported to spawned processes (KRB5CCNAME) and injected into
	// their runtime options.
	CredentialCachePath string

	// ServicePrincipal is the Kerberos principal the node authenticates as
	ServicePrincipal string

	// KeytabFile holds the principal's keys
	KeytabFile string

	// Protection selects the wire-protection level (default: authentication)
	Protection ProtectionLevel
}

// Validate checks that all required credential fields are present
func (s *SecurityConfig) Validate() error {
	if s.CredentialCachePath == "" {
		return fmt.Errorf("security: CredentialCachePath cannot be empty")
	}
	if s.ServicePrincipal == "" {
		return fmt.Errorf("security: ServicePrincipal cannot be empty")
	}
	if s.KeytabFile == "" {
		return fmt.Errorf("security: KeytabFile cannot be empty")
	}
	switch s.Protection {
	case "", ProtectionAuthentication, ProtectionIntegrity, ProtectionPrivacy:
	default:
		return fmt.Errorf("security: unknown protection level %q", s.Protection)
	}
	return nil
}

// ProtectionOrDefault returns the configured protection level, defaulting
// to authentication when unset
func (s *SecurityConfig) ProtectionOrDefault() ProtectionLevel {
	if s == nil || s.Protection == "" {
		return ProtectionAuthentication
	}
	return s.Protection
}

// ClusterSpec defines the shape of a test cluster. It is immutable once
// handed to the supervisor.
type ClusterSpec struct {
	// Masters is the number of master nodes to spawn
	Masters int
	// Workers is the number of worker nodes to spawn
	Workers int
	// EnableMetadata additionally spawns one metadata-service process
	EnableMetadata bool

	// MasterBinary is the path to the master executable (required when Masters > 0)
	MasterBinary string
	// WorkerBinary is the path to the worker executable (required when Workers > 0)
	WorkerBinary string
	// BinDir is the root used to resolve the metadata service's home
	// directories when the corresponding *_HOME env vars are unset
	BinDir string

	// ExtraMasterFlags/ExtraWorkerFlags are appended to each node's argv
	// before the trailing --port flag
	ExtraMasterFlags []string
	ExtraWorkerFlags []string

	// MasterPorts/WorkerPorts optionally pin listen ports. If set, the
	// slice length must equal the node count; a zero entry means
	// "pick an ephemeral port for this node".
	MasterPorts []int
	WorkerPorts []int

	// ScratchDir holds generated config and node data. Empty means create
	// a fresh per-cluster temp directory. No two live clusters may share one.
	ScratchDir string

	// Security enables kerberized startup when non-nil; nil selects the
	// unauthenticated "simple" mode explicitly in generated config
	Security *SecurityConfig

	// StartTimeout bounds each node's port-open wait (default: 60s)
	StartTimeout time.Duration
	// StopTimeout bounds a graceful stop before escalating (default: 10s)
	StopTimeout time.Duration
	// EventLogRetention is rendered into the site document in seconds (default: 24h)
	EventLogRetention time.Duration

	// ExtraEnv is merged into each node's otherwise fully-specified environment
	ExtraEnv map[string]string

	// KeepScratchOnClose preserves the scratch directory for debugging
	KeepScratchOnClose bool
}

// WithDefaults returns a copy with unset timing fields filled in
func (s ClusterSpec) WithDefaults() ClusterSpec {
	if s.StartTimeout <= 0 {
		s.StartTimeout = DefaultStartTimeout
	}
	if s.StopTimeout <= 0 {
		s.StopTimeout = DefaultStopTimeout
	}
	if s.EventLogRetention <= 0 {
		s.EventLogRetention = DefaultEventLogRetention
	}
	return s
}

// Validate checks the spec for configuration errors. Ambiguous or duplicate
// pinned ports are rejected here rather than silently resolved.
func (s *ClusterSpec) Validate() error {
	if s.Masters < 0 {
		return fmt.Errorf("Masters must be >= 0, got %d", s.Masters)
	}
	if s.Workers < 0 {
		return fmt.Errorf("Workers must be >= 0, got %d", s.Workers)
	}
	if s.Masters > 0 && s.MasterBinary == "" {
		return fmt.Errorf("MasterBinary cannot be empty with %d masters", s.Masters)
	}
	if s.Workers > 0 && s.WorkerBinary == "" {
		return fmt.Errorf("WorkerBinary cannot be empty with %d workers", s.Workers)
	}
	if len(s.MasterPorts) > 0 && len(s.MasterPorts) != s.Masters {
		return fmt.Errorf("MasterPorts has %d entries for %d masters", len(s.MasterPorts), s.Masters)
	}
	if len(s.WorkerPorts) > 0 && len(s.WorkerPorts) != s.Workers {
		return fmt.Errorf("WorkerPorts has %d entries for %d workers", len(s.WorkerPorts), s.Workers)
	}

	seen := make(map[int]bool)
	for _, p := range append(append([]int{}, s.MasterPorts...), s.WorkerPorts...) {
		if p < 0 || p > 65535 {
			return fmt.Errorf("pinned port %d out of range", p)
		}
		if p == 0 {
			continue // auto-assign
		}
		if seen[p] {
			return fmt.Errorf("duplicate pinned port %d", p)
		}
		seen[p] = true
	}

	if s.Security != nil {
		if err := s.Security.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// KerberosEnabled reports whether nodes run under a secured identity
func (s *ClusterSpec) KerberosEnabled() bool {
	return s.Security != nil
}

// NodeCount returns the total number of processes the spec describes
func (s *ClusterSpec) NodeCount() int {
	n := s.Masters + s.Workers
	if s.EnableMetadata {
		n++
	}
	return n
}

// NodeStatus is the read-only per-node snapshot exposed to debug and
// status tooling. Attributes carries service-reported fields the
// supervisor does not interpret.
type NodeStatus struct {
	Role       NodeRole          `json:"role"`
	Address    string            `json:"address"`
	State      LifecycleState    `json:"state"`
	PID        int               `json:"pid,omitempty"`
	StartedAt  time.Time         `json:"started_at,omitempty"`
	Restarts   int               `json:"restarts"`
	RSSBytes   uint64            `json:"rss_bytes,omitempty"`
	CPUPercent float64           `json:"cpu_percent,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}
