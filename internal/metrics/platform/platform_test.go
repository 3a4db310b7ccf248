package platform

import (
	"context"
	"testing"
)

func TestCollect_ReturnsGoroutineCount(t *testing.T) {
	snap := Collect(context.Background())
	if snap.Goroutines <= 0 {
		t.Errorf("expected a positive goroutine count, got %d", snap.Goroutines)
	}
}

func TestCollect_MemoryPercentWithinRange(t *testing.T) {
	snap := Collect(context.Background())
	if snap.MemoryUsedPct < 0 || snap.MemoryUsedPct > 100 {
		t.Errorf("expected memory percent in [0,100], got %f", snap.MemoryUsedPct)
	}
}

func TestMemoryLimitBytes_NoPanicOnUnsupportedHost(t *testing.T) {
	// A cgroup limit, 0 when none is found, or a parse error — the
	// important invariant is that reading never panics and never
	// returns a negative limit when it succeeds.
	limit, err := MemoryLimitBytes()
	if err == nil && limit < 0 {
		t.Errorf("expected a non-negative memory limit, got %d", limit)
	}
}
