/*
Package state persists a registry of spawned node processes so they can be
found again after the supervising test run dies.

A test-only supervisor has no init system behind it. When a test binary
crashes or is SIGKILLed mid-run, its node processes keep running and keep
their ports, and the next run fails confusingly. The registry records
every spawn in a bbolt database shared per user; the reaper sweeps it and
kills whatever the previous runs leaked.

# Architecture

	┌────────────────┐   RecordNode / RemoveNode   ┌──────────────┐
	│   Supervisor   │────────────────────────────▶│   Registry   │
	└────────────────┘                             │  (bbolt, one │
	                                               │  file per    │
	┌────────────────┐    ListNodes / sweep        │  user)       │
	│     Reaper     │◀────────────────────────────└──────────────┘
	│  (minicluster  │
	│     reap)      │──▶ verify PID identity ──▶ SIGKILL leaked
	└────────────────┘    via create time          processes

## Reap Decision Table

	process gone                      → drop record
	create time unverifiable          → drop record, do not kill
	create time mismatch (PID reuse)  → drop record, do not kill
	create time matches               → SIGKILL, drop record

PID reuse is the dangerous case: between the crash and the sweep the
kernel may hand the recorded PID to an unrelated process. The kernel's
process create time is immutable for a PID's lifetime, so comparing it
against the recorded value proves identity before anything is killed.

# Usage Examples

## Record a Spawn

	reg, err := state.Open(state.DefaultPath())
	if err != nil {
		return err
	}
	defer reg.Close()

	reg.RecordNode(&state.NodeRecord{
		ClusterID:         clusterID,
		Role:              types.NodeRoleMaster,
		Address:           "127.0.0.1:7051",
		PID:               pid,
		Binary:            spec.MasterBinary,
		ScratchDir:        scratch,
		StartedAt:         time.Now(),
		ProcessCreateTime: state.ProcessCreateTime(pid),
	})

## Sweep Leaked Processes

	killed, err := state.Reap(ctx, reg)
	fmt.Printf("reaped %d orphaned processes\n", killed)

# See Also

  - pkg/cluster - Records every spawn and removes records on clean stops
  - cmd/minicluster - The reap subcommand
*/
package state
