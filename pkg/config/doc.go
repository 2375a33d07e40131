/*
Package config generates the on-disk configuration consumed by cluster
node processes.

Test clusters live and die by reproducibility: a node must see exactly the
configuration the supervisor computed, never a system default that leaked
in from the host. Everything here is therefore a pure function of explicit
inputs — rendering twice with the same inputs produces byte-identical
files, and retrying a failed build is always safe.

# Architecture

	┌─────────────────────────────────────────────┐
	│                 Generator                   │
	│  ScratchDir + Security + EventLogRetention  │
	└──────┬───────────────────────┬──────────────┘
	       │                       │
	       ▼                       ▼
	metaserve-site.properties  runtime-identity.properties
	(service configuration)    (single auth-mode property)

	SecurityEnv / RuntimeOptions ──▶ child process environment
	ResolveHomeDir / ResolveBinary ─▶ launch preconditions

# Generated Documents

## Site Document

The main configuration for the metadata service:

	metastore.warehouse.dir=file:///scratch/warehouse/
	metastore.db.url=mem:/scratch/metadb;create=true
	metastore.event.ttl=86400s
	metastore.sasl.enabled=true
	metastore.kerberos.keytab.file=/creds/metaserve.keytab
	metastore.kerberos.principal=metaserve/host@REALM
	metastore.rpc.protection=privacy

The storage backend is an in-memory database scoped to the scratch
directory, so nothing survives the cluster and parallel clusters never
collide. Event log retention is expressed in seconds with an explicit
unit suffix.

## Identity Document

A single property, always written, always explicit:

	runtime.security.authentication=simple

The runtime's identity layer discovers its configuration separately from
the service's own, which is why this lives in its own file rather than
being folded into the site document. The mode is stated even when it is
the default: an omitted property would fall back to whatever the host
happens to have configured.

# Usage Examples

## Render a Cluster's Configuration

	gen := &config.Generator{
		ScratchDir:        "/tmp/minicluster-183f",
		EventLogRetention: 24 * time.Hour,
		Security:          spec.Security, // nil for unauthenticated
	}
	if err := gen.WriteAll(); err != nil {
		return err
	}

## Build a Secured Environment

	env := config.SecurityEnv(spec.Security) // KRB5CCNAME when secured
	env["JAVA_TOOL_OPTIONS"] = config.RuntimeOptions(spec.Security)

## Resolve Launch Preconditions

	home, err := config.ResolveHomeDir("metaserve", spec.BinDir)
	if errors.Is(err, config.ErrNotFound) {
		// METASERVE_HOME not set and <binDir>/metaserve-home absent
	}

# See Also

  - pkg/cluster - Calls the generator once per build and reuses the
    documents across node restarts
  - pkg/types - SecurityConfig and its validation rules
*/
package config
