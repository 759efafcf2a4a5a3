package service

import (
	"context"
	"testing"
	"time"
)

func newThrottleForTest(now *time.Time) *LoginThrottle {
	clock := func() time.Time { return *now }
	store := NewMemoryThrottleStore()
	store.clock = clock
	return NewLoginThrottle(store, 3, 30*time.Second).WithClock(clock)
}

func TestThrottleLocksAfterThreeConsecutiveFailures(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	throttle := newThrottleForTest(&now)

	out, err := throttle.RecordFailure(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("first failure: %v", err)
	}
	if out.Locked || out.Remaining != 2 {
		t.Fatalf("expected 2 remaining after first failure, got %+v", out)
	}

	out, err = throttle.RecordFailure(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("second failure: %v", err)
	}
	if out.Locked || out.Remaining != 1 {
		t.Fatalf("expected 1 remaining after second failure, got %+v", out)
	}

	out, err = throttle.RecordFailure(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("third failure: %v", err)
	}
	if !out.Locked {
		t.Fatalf("expected lock after third failure, got %+v", out)
	}
	if out.RetryAfter != 30*time.Second {
		t.Fatalf("expected 30s retry-after, got %v", out.RetryAfter)
	}

	decision, err := throttle.Check(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("check while locked: %v", err)
	}
	if decision.Allowed {
		t.Fatal("locked address must be blocked")
	}
	if decision.RetryAfter <= 0 || decision.RetryAfter > 30*time.Second {
		t.Fatalf("unexpected retry-after %v", decision.RetryAfter)
	}
}

func TestThrottleBlockPersistsUntilWindowElapses(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	throttle := newThrottleForTest(&now)

	for i := 0; i < 3; i++ {
		if _, err := throttle.RecordFailure(ctx, "1.2.3.4"); err != nil {
			t.Fatalf("failure %d: %v", i+1, err)
		}
	}

	now = now.Add(29 * time.Second)
	decision, err := throttle.Check(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("check at 29s: %v", err)
	}
	if decision.Allowed {
		t.Fatal("block must persist one second before the window elapses")
	}

	now = now.Add(2 * time.Second)
	decision, err = throttle.Check(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("check at 31s: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("lock must lapse once the window elapses")
	}

	// The elapsed lock resets the counter: three fresh failures are needed
	// to re-lock, not one.
	out, err := throttle.RecordFailure(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("post-expiry failure: %v", err)
	}
	if out.Locked || out.Remaining != 2 {
		t.Fatalf("expected a fresh window after lock expiry, got %+v", out)
	}
}

func TestThrottleResetOnSuccess(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	throttle := newThrottleForTest(&now)

	for i := 0; i < 2; i++ {
		if _, err := throttle.RecordFailure(ctx, "1.2.3.4"); err != nil {
			t.Fatalf("failure %d: %v", i+1, err)
		}
	}
	if err := throttle.RecordSuccess(ctx, "1.2.3.4"); err != nil {
		t.Fatalf("record success: %v", err)
	}

	out, err := throttle.RecordFailure(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("failure after success: %v", err)
	}
	if out.Locked || out.Remaining != 2 {
		t.Fatalf("success must reset the counter, got %+v", out)
	}
}

func TestThrottleIsolatesAddresses(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	throttle := newThrottleForTest(&now)

	for i := 0; i < 3; i++ {
		if _, err := throttle.RecordFailure(ctx, "1.2.3.4"); err != nil {
			t.Fatalf("failure %d: %v", i+1, err)
		}
	}

	decision, err := throttle.Check(ctx, "5.6.7.8")
	if err != nil {
		t.Fatalf("check other address: %v", err)
	}
	if !decision.Allowed {
		t.Fatal("an unrelated address must not inherit the lock")
	}
}
