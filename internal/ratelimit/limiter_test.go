package ratelimit

import (
	"testing"
	"time"
)

func newTestLimiter() *Limiter {
	return New(Config{
		Global:  TierConfig{QPS: 5000, Burst: 5000},
		Address: TierConfig{QPS: 20, Burst: 20},
		User:    TierConfig{QPS: 1, Burst: 1},
	}, time.Minute)
}

func TestLimiter_UserTierRejectsSecondRequestWithinOneSecond(t *testing.T) {
	l := newTestLimiter()
	defer l.Close()

	first := l.Allow("10.0.0.1", "user1")
	if !first.Allowed {
		t.Fatalf("expected first request allowed, got %+v", first)
	}

	second := l.Allow("10.0.0.1", "user1")
	if second.Allowed {
		t.Fatal("expected second request within 1s to be rejected")
	}
	if second.Tier != "user" {
		t.Errorf("expected tier=user, got %q", second.Tier)
	}
	if second.RetryAfter < 900*time.Millisecond || second.RetryAfter > 1100*time.Millisecond {
		t.Errorf("expected retry_after ~1s, got %v", second.RetryAfter)
	}
}

func TestLimiter_UserTierAllowsAfterRefill(t *testing.T) {
	l := newTestLimiter()
	defer l.Close()

	if !l.Allow("10.0.0.1", "user1").Allowed {
		t.Fatal("expected first request allowed")
	}

	time.Sleep(1100 * time.Millisecond)

	if !l.Allow("10.0.0.1", "user1").Allowed {
		t.Fatal("expected request after refill window to be allowed")
	}
}

func TestLimiter_DifferentUsersHaveIndependentBuckets(t *testing.T) {
	l := newTestLimiter()
	defer l.Close()

	if !l.Allow("10.0.0.1", "user1").Allowed {
		t.Fatal("expected user1 first request allowed")
	}
	if !l.Allow("10.0.0.1", "user2").Allowed {
		t.Fatal("expected user2 first request allowed despite user1 exhausting its bucket")
	}
}

func TestLimiter_AddressTierRejectsBeyondBurst(t *testing.T) {
	l := New(Config{
		Global:  TierConfig{QPS: 5000, Burst: 5000},
		Address: TierConfig{QPS: 2, Burst: 2},
		User:    TierConfig{QPS: 5000, Burst: 5000},
	}, time.Minute)
	defer l.Close()

	for i := 0; i < 2; i++ {
		if res := l.Allow("10.0.0.2", "userA"); !res.Allowed {
			t.Fatalf("expected request %d within burst to be allowed", i)
		}
	}

	res := l.Allow("10.0.0.2", "userB")
	if res.Allowed {
		t.Fatal("expected third rapid request from the same address to be rejected")
	}
	if res.Tier != "address" {
		t.Errorf("expected tier=address, got %q", res.Tier)
	}
}

func TestLimiter_GlobalTierRejectsBeyondBurst(t *testing.T) {
	l := New(Config{
		Global:  TierConfig{QPS: 1, Burst: 1},
		Address: TierConfig{QPS: 5000, Burst: 5000},
		User:    TierConfig{QPS: 5000, Burst: 5000},
	}, time.Minute)
	defer l.Close()

	if !l.Allow("10.0.0.1", "user1").Allowed {
		t.Fatal("expected first request allowed")
	}
	res := l.Allow("10.0.0.2", "user2")
	if res.Allowed {
		t.Fatal("expected second request to exhaust the global bucket regardless of address/user")
	}
	if res.Tier != "global" {
		t.Errorf("expected tier=global, got %q", res.Tier)
	}
}

func TestLimiter_UpdateConfigAppliesToNewBuckets(t *testing.T) {
	l := newTestLimiter()
	defer l.Close()

	l.UpdateConfig("user", TierConfig{QPS: 5000, Burst: 5000})

	// A brand-new user bucket is built from the updated template.
	if !l.Allow("10.0.0.1", "freshuser").Allowed {
		t.Fatal("expected first request allowed")
	}
	if !l.Allow("10.0.0.1", "freshuser").Allowed {
		t.Fatal("expected second request allowed after raising the user tier's burst")
	}
}

func TestLimiter_UpdateConfigDoesNotDisturbExistingBuckets(t *testing.T) {
	l := newTestLimiter()
	defer l.Close()

	// Allocate user1's bucket under the original QPS=1/Burst=1 template
	// and exhaust it.
	if !l.Allow("10.0.0.1", "user1").Allowed {
		t.Fatal("expected user1 first request allowed")
	}
	if l.Allow("10.0.0.1", "user1").Allowed {
		t.Fatal("expected user1 second request within 1s to be rejected before the config update")
	}

	// Raising the user tier's burst must not retroactively refill or
	// resize user1's already-allocated bucket.
	l.UpdateConfig("user", TierConfig{QPS: 5000, Burst: 5000})

	if l.Allow("10.0.0.1", "user1").Allowed {
		t.Fatal("expected user1's existing bucket to remain exhausted after the template update")
	}
}
