package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tradepost/tradepost/internal/repository"
)

func newSessionServiceForTest(t *testing.T, now *time.Time) *SessionService {
	t.Helper()
	repo := repository.NewSessionRepository(newTestDB(t))
	return NewSessionService(repo, 30*time.Second).
		WithClock(func() time.Time { return *now })
}

func TestSessionCreateAndValidate(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newSessionServiceForTest(t, &now)

	created, err := svc.Create(ctx, 7, []string{"user"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(created.SessionID) != 32 {
		t.Fatalf("unexpected session id %q", created.SessionID)
	}
	if created.CSRFToken == "" {
		t.Fatal("expected a csrf token on the new session")
	}

	got, err := svc.Validate(ctx, created.SessionID)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got.UserID != 7 {
		t.Fatalf("expected user 7, got %d", got.UserID)
	}
	if !got.HasRole("user") {
		t.Fatalf("expected role user, got %v", got.Roles)
	}
}

func TestSessionValidateUnknownID(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newSessionServiceForTest(t, &now)

	if _, err := svc.Validate(ctx, "no-such-session"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := svc.Validate(ctx, ""); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for empty id, got %v", err)
	}
}

func TestSessionIdleWindowSlides(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newSessionServiceForTest(t, &now)

	created, err := svc.Create(ctx, 7, []string{"user"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Each validation inside the window refreshes the deadline.
	for i := 0; i < 4; i++ {
		now = now.Add(25 * time.Second)
		if _, err := svc.Validate(ctx, created.SessionID); err != nil {
			t.Fatalf("validate after %d slides: %v", i+1, err)
		}
	}
}

func TestSessionExpiresAfterIdleTimeout(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newSessionServiceForTest(t, &now)

	created, err := svc.Create(ctx, 7, []string{"user"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	now = now.Add(31 * time.Second)
	if _, err := svc.Validate(ctx, created.SessionID); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}

	// Expiry destroys the record, so a later request inside any window
	// still fails, now as not-found.
	if _, err := svc.Validate(ctx, created.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after expiry, got %v", err)
	}
}

func TestSessionRotateInvalidatesPresentedID(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newSessionServiceForTest(t, &now)

	old, err := svc.Create(ctx, 7, []string{"user"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	rotated, err := svc.Rotate(ctx, old.SessionID, 7, []string{"user"})
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if rotated.SessionID == old.SessionID {
		t.Fatal("rotation must mint a fresh session id")
	}
	if rotated.CSRFToken == old.CSRFToken {
		t.Fatal("rotation must mint a fresh csrf token")
	}

	if _, err := svc.Validate(ctx, old.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("pre-rotation id must stop resolving, got %v", err)
	}
	if _, err := svc.Validate(ctx, rotated.SessionID); err != nil {
		t.Fatalf("rotated id must resolve: %v", err)
	}
}

func TestSessionRotateWithUnknownIDCreates(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newSessionServiceForTest(t, &now)

	session, err := svc.Rotate(ctx, "stale-cookie-value", 7, []string{"user"})
	if err != nil {
		t.Fatalf("rotate with unknown id: %v", err)
	}
	if _, err := svc.Validate(ctx, session.SessionID); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestSessionDestroyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newSessionServiceForTest(t, &now)

	created, err := svc.Create(ctx, 7, []string{"user"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Destroy(ctx, created.SessionID); err != nil {
		t.Fatalf("first destroy: %v", err)
	}
	if err := svc.Destroy(ctx, created.SessionID); err != nil {
		t.Fatalf("second destroy must be a no-op: %v", err)
	}
	if err := svc.Destroy(ctx, ""); err != nil {
		t.Fatalf("destroy with empty id must be a no-op: %v", err)
	}
}

func TestSessionPurgeIdle(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newSessionServiceForTest(t, &now)

	idle, err := svc.Create(ctx, 7, []string{"user"})
	if err != nil {
		t.Fatalf("create idle: %v", err)
	}
	now = now.Add(40 * time.Second)
	fresh, err := svc.Create(ctx, 8, []string{"user"})
	if err != nil {
		t.Fatalf("create fresh: %v", err)
	}

	n, err := svc.PurgeIdle(ctx)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 purged session, got %d", n)
	}
	if _, err := svc.Validate(ctx, idle.SessionID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("idle session must be gone, got %v", err)
	}
	if _, err := svc.Validate(ctx, fresh.SessionID); err != nil {
		t.Fatalf("fresh session must survive the sweep: %v", err)
	}
}
