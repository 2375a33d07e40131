/*
Package types defines the core data structures used throughout minicluster.

This package contains the fundamental types describing a supervised test
cluster: the cluster specification, node roles and lifecycle states, the
security configuration for kerberized startups, and the per-node status
snapshot exposed to debug tooling. All other packages build on these types
for orchestration, persistence, and status reporting.

# Core Types

Cluster Shape:
  - ClusterSpec: Immutable description of the cluster to build (node counts,
    binaries, ports, scratch directory, timeouts, security)
  - NodeRole: Master, worker, or metadata service
  - LifecycleState: Stopped, running, or paused

Security:
  - SecurityConfig: Credential-cache path, service principal, keytab, and
    wire-protection level for secured nodes
  - ProtectionLevel: Authentication, integrity, or privacy

Status:
  - NodeStatus: Read-only snapshot record per node (role, address, state,
    PID, restart count, process stats, uninterpreted attributes)

# Usage

Building a spec:

	spec := types.ClusterSpec{
		Masters:      1,
		Workers:      3,
		MasterBinary: "/opt/svc/bin/svc-master",
		WorkerBinary: "/opt/svc/bin/svc-worker",
	}
	if err := spec.Validate(); err != nil {
		return err
	}
	spec = spec.WithDefaults()

Enabling security:

	spec.Security = &types.SecurityConfig{
		CredentialCachePath: "/tmp/krb5cc_test",
		ServicePrincipal:    "svc/127.0.0.1",
		KeytabFile:          "/tmp/svc.keytab",
		Protection:          types.ProtectionPrivacy,
	}

# Design Patterns

Enumeration Pattern:

	All enums use typed string constants for safety and clarity:
	  type LifecycleState string
	  const (
	      StateStopped LifecycleState = "stopped"
	      StateRunning LifecycleState = "running"
	  )

Optional Fields:

	Optional configuration uses pointers:
	  - *SecurityConfig: nil = unauthenticated "simple" mode

Validation:

	Specs are validated once, up front, before any process is spawned.
	Duplicate pinned ports are a configuration error, never silently
	resolved, because address-keyed lookup requires unique addresses.

# Integration Points

This package integrates with:

  - pkg/cluster: Consumes ClusterSpec, produces NodeStatus snapshots
  - pkg/config: Reads SecurityConfig when generating site documents
  - pkg/state: Persists node records keyed by role and address
  - pkg/api: Serializes NodeStatus for the /statusz endpoint

# Thread Safety

All types in this package are plain values. ClusterSpec is treated as
immutable once handed to the supervisor; NodeStatus snapshots are copies
and safe to retain.
*/
package types
