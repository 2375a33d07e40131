package probe

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

// startListener opens a real TCP listener on an ephemeral port and returns
// it with its address.
func startListener(t *testing.T) (net.Listener, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	return ln, ln.Addr().String()
}

// closedAddr returns an address that was just released and is therefore
// not accepting connections.
func closedAddr(t *testing.T) string {
	t.Helper()
	ln, addr := startListener(t)
	ln.Close()
	return addr
}

func TestCheckOpen(t *testing.T) {
	ln, addr := startListener(t)
	defer ln.Close()

	p := New()
	ctx := context.Background()

	if !p.CheckOpen(ctx, addr) {
		t.Errorf("expected %s to be open", addr)
	}

	if p.CheckOpen(ctx, closedAddr(t)) {
		t.Error("expected released port to be closed")
	}
}

func TestWaitForStateAlreadyOpen(t *testing.T) {
	ln, addr := startListener(t)
	defer ln.Close()

	p := New()
	start := time.Now()
	if err := p.WaitForState(context.Background(), addr, true, 5*time.Second); err != nil {
		t.Fatalf("WaitForState failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("immediate match took %v, expected fast return", elapsed)
	}
}

func TestWaitForStateOpensLater(t *testing.T) {
	// Reserve an address, release it, then re-listen after a delay.
	ln, addr := startListener(t)
	ln.Close()

	var late net.Listener
	timer := time.AfterFunc(150*time.Millisecond, func() {
		var err error
		late, err = net.Listen("tcp", addr)
		if err != nil {
			t.Errorf("failed to re-listen on %s: %v", addr, err)
		}
	})
	defer timer.Stop()
	defer func() {
		if late != nil {
			late.Close()
		}
	}()

	p := New()
	p.Interval = 25 * time.Millisecond
	if err := p.WaitForState(context.Background(), addr, true, 5*time.Second); err != nil {
		t.Fatalf("WaitForState failed: %v", err)
	}
}

func TestWaitForStateClosesLater(t *testing.T) {
	ln, addr := startListener(t)
	timer := time.AfterFunc(150*time.Millisecond, func() { ln.Close() })
	defer timer.Stop()

	p := New()
	p.Interval = 25 * time.Millisecond
	if err := p.WaitForState(context.Background(), addr, false, 5*time.Second); err != nil {
		t.Fatalf("WaitForState failed: %v", err)
	}
}

func TestWaitForStateTimeout(t *testing.T) {
	addr := closedAddr(t)

	p := New()
	p.Interval = 25 * time.Millisecond
	err := p.WaitForState(context.Background(), addr, true, 200*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}

func TestWaitForStateContextCancelled(t *testing.T) {
	addr := closedAddr(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New()
	err := p.WaitForState(ctx, addr, true, time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestDeadlineTracker(t *testing.T) {
	current := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return current }

	tracker := NewDeadlineTrackerWithClock(clock)

	if got := tracker.Elapsed(); got != 0 {
		t.Errorf("expected zero elapsed, got %v", got)
	}
	if tracker.Expired(time.Second) {
		t.Error("tracker expired immediately")
	}
	if got := tracker.Remaining(10 * time.Second); got != 10*time.Second {
		t.Errorf("expected 10s remaining, got %v", got)
	}

	current = current.Add(4 * time.Second)

	if got := tracker.Elapsed(); got != 4*time.Second {
		t.Errorf("expected 4s elapsed, got %v", got)
	}
	if tracker.Expired(10 * time.Second) {
		t.Error("tracker expired before deadline")
	}
	if !tracker.Expired(4 * time.Second) {
		t.Error("tracker not expired at exact deadline")
	}
	if got := tracker.Remaining(10 * time.Second); got != 6*time.Second {
		t.Errorf("expected 6s remaining, got %v", got)
	}

	current = current.Add(10 * time.Second)

	if got := tracker.Remaining(10 * time.Second); got != 0 {
		t.Errorf("expected zero remaining past deadline, got %v", got)
	}
}
