package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

const (
	// DefaultInterval is the delay between consecutive connection attempts
	DefaultInterval = 200 * time.Millisecond

	// DefaultDialTimeout bounds a single connection attempt
	DefaultDialTimeout = 1 * time.Second
)

// ErrTimeout indicates a port did not reach the desired state in time
var ErrTimeout = errors.New("timed out")

// Prober checks TCP reachability of node addresses. A port that accepts a
// connection is considered open; a refused or timed-out dial means closed.
// The same poll loop serves both startup (wait for open) and shutdown
// (wait for closed) detection.
type Prober struct {
	DialTimeout time.Duration
	Interval    time.Duration
}

// New creates a prober with default timing
func New() *Prober {
	return &Prober{
		DialTimeout: DefaultDialTimeout,
		Interval:    DefaultInterval,
	}
}

// CheckOpen performs a single connection attempt and reports whether the
// address is accepting connections. The probe connection is closed
// immediately on success.
func (p *Prober) CheckOpen(ctx context.Context, address string) bool {
	dialer := &net.Dialer{Timeout: p.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// WaitForState polls the address until it reaches the desired state or the
// deadline expires. The state is checked immediately, then once per
// interval. Returns nil as soon as the observed state matches wantOpen,
// an error wrapping ErrTimeout once the deadline has elapsed, or the
// context error if the context is cancelled first.
func (p *Prober) WaitForState(ctx context.Context, address string, wantOpen bool, deadline time.Duration) error {
	tracker := NewDeadlineTracker()
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		if p.CheckOpen(ctx, address) == wantOpen {
			return nil
		}
		if tracker.Expired(deadline) {
			return fmt.Errorf("address %s not %s after %v: %w", address, stateWord(wantOpen), deadline, ErrTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func stateWord(open bool) string {
	if open {
		return "open"
	}
	return "closed"
}
