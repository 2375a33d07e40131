package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/shirou/gopsutil/process"

	"github.com/cuemby/minicluster/pkg/log"
	"github.com/cuemby/minicluster/pkg/metrics"
)

// createTimeSkewMs is the tolerance when comparing a recorded process
// create time against the kernel's. The two come from the same source, but
// clock rounding differs across platforms.
const createTimeSkewMs = 2000

// ProcessCreateTime returns the kernel start time of a PID in milliseconds
// since the epoch, or zero if it cannot be determined.
func ProcessCreateTime(pid int) int64 {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return 0
	}
	created, err := proc.CreateTime()
	if err != nil {
		return 0
	}
	return created
}

// Reap walks the registry and cleans up after crashed runs: records whose
// process is gone are dropped, and processes that are verifiably still the
// recorded ones are killed. A PID whose create time does not match the
// record belongs to somebody else now and is left alone.
//
// Returns the number of processes killed. Per-record failures are
// aggregated rather than aborting the sweep.
func Reap(ctx context.Context, reg *Registry) (int, error) {
	records, err := reg.ListNodes()
	if err != nil {
		return 0, fmt.Errorf("listing registry: %w", err)
	}

	logger := log.WithComponent("reaper")

	var (
		killed int
		errs   []error
	)
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return killed, err
		}

		drop := func() {
			if err := reg.RemoveNode(rec.ClusterID, rec.Address); err != nil {
				errs = append(errs, fmt.Errorf("removing record %s/%s: %w", rec.ClusterID, rec.Address, err))
			}
		}

		proc, err := process.NewProcess(int32(rec.PID))
		if err != nil {
			// Process is gone; the record is stale.
			drop()
			continue
		}

		created, err := proc.CreateTime()
		if err != nil || !sameProcess(rec.ProcessCreateTime, created) {
			// Either unverifiable or the PID has been reused. Killing
			// here could take down an unrelated process.
			logger.Warn().
				Int("pid", rec.PID).
				Str("address", rec.Address).
				Msg("PID no longer matches record, dropping without kill")
			drop()
			continue
		}

		if err := proc.Kill(); err != nil {
			errs = append(errs, fmt.Errorf("killing PID %d (%s): %w", rec.PID, rec.Address, err))
			continue
		}

		logger.Info().
			Int("pid", rec.PID).
			Str("cluster_id", rec.ClusterID).
			Str("address", rec.Address).
			Msg("Reaped orphaned node process")
		metrics.ReapedProcessesTotal.Inc()
		killed++
		drop()
	}

	return killed, errors.Join(errs...)
}

func sameProcess(recorded, actual int64) bool {
	if recorded == 0 {
		// Old record without a create time; treat a live PID as a match.
		return true
	}
	diff := recorded - actual
	if diff < 0 {
		diff = -diff
	}
	return diff <= createTimeSkewMs
}
