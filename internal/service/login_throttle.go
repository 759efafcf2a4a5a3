package service

import (
	"context"
	"time"

	"github.com/tradepost/tradepost/internal/observability"
)

// Decision is the throttle's answer to "may this address attempt a login".
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// FailureOutcome reports the state after a recorded credential failure.
type FailureOutcome struct {
	Locked     bool
	Remaining  int
	RetryAfter time.Duration
}

// LoginThrottle bounds credential-guessing per client network address with a
// fixed-window lockout: maxAttempts consecutive failures lock the address for
// lockWindow. It is advisory rate-limiting layered in front of the hasher,
// not a security boundary of its own.
//
// State machine per address:
//
//	Open(0) -> Open(n<max) -> Locked(until) -> Open(0)
//
// Lock expiry is observed lazily on the next Check; there is no background
// timer.
type LoginThrottle struct {
	store       ThrottleStore
	maxAttempts int
	lockWindow  time.Duration
	clock       func() time.Time
}

func NewLoginThrottle(store ThrottleStore, maxAttempts int, lockWindow time.Duration) *LoginThrottle {
	return &LoginThrottle{
		store:       store,
		maxAttempts: maxAttempts,
		lockWindow:  lockWindow,
		clock:       time.Now,
	}
}

// WithClock replaces the time source. Test hook.
func (t *LoginThrottle) WithClock(clock func() time.Time) *LoginThrottle {
	t.clock = clock
	return t
}

// Check must run before any credential verification. A blocked address fails
// closed: the caller must not touch the credential store or the hasher.
func (t *LoginThrottle) Check(ctx context.Context, addr string) (Decision, error) {
	now := t.clock()
	state, err := t.store.Get(ctx, addr)
	if err != nil {
		return Decision{}, err
	}
	if state.Locked(now) {
		retryAfter := state.LockUntil.Sub(now)
		observability.RecordThrottleDecision(ctx, "blocked")
		observability.RecordLockout(ctx, retryAfter)
		return Decision{Allowed: false, RetryAfter: retryAfter}, nil
	}
	if !state.LockUntil.IsZero() {
		// Lock elapsed: reset the counter so the address starts a fresh
		// window instead of re-locking on its first post-lock failure.
		if _, err := t.store.Update(ctx, addr, func(ThrottleState) (ThrottleState, time.Duration) {
			return ThrottleState{}, 0
		}); err != nil {
			return Decision{}, err
		}
	}
	observability.RecordThrottleDecision(ctx, "allowed")
	return Decision{Allowed: true}, nil
}

// RecordFailure is called after a failed credential check. Unknown-email and
// wrong-password failures are recorded identically; the caller never learns
// which it was.
func (t *LoginThrottle) RecordFailure(ctx context.Context, addr string) (FailureOutcome, error) {
	now := t.clock()
	state, err := t.store.Update(ctx, addr, func(current ThrottleState) (ThrottleState, time.Duration) {
		if !current.LockUntil.IsZero() && !current.Locked(now) {
			current = ThrottleState{}
		}
		current.Attempts++
		if current.Attempts >= t.maxAttempts {
			current.LockUntil = now.Add(t.lockWindow)
		}
		return current, t.retention()
	})
	if err != nil {
		return FailureOutcome{}, err
	}
	if state.Locked(now) {
		retryAfter := state.LockUntil.Sub(now)
		observability.RecordLockout(ctx, retryAfter)
		return FailureOutcome{Locked: true, RetryAfter: retryAfter}, nil
	}
	return FailureOutcome{Remaining: t.maxAttempts - state.Attempts}, nil
}

// RecordSuccess resets the address immediately after a successful login.
func (t *LoginThrottle) RecordSuccess(ctx context.Context, addr string) error {
	return t.store.Clear(ctx, addr)
}

// retention keeps store entries around long enough to cover the lock window
// plus slack for the lazy expiry read.
func (t *LoginThrottle) retention() time.Duration {
	retention := 2 * t.lockWindow
	if retention < time.Minute {
		retention = time.Minute
	}
	return retention
}
